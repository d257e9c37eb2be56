package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"cryptonorm/logger"
)

// WebsocketDialer opens gorilla/websocket connections.
type WebsocketDialer struct {
	opts   Options
	dialer *websocket.Dialer
	log    *logger.Log
}

func NewWebsocketDialer(opts Options) *WebsocketDialer {
	opts = opts.withDefaults()
	return &WebsocketDialer{
		opts: opts,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
			ReadBufferSize:   opts.ReadBufferBytes,
		},
		log: logger.GetLogger(),
	}
}

func (d *WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	header := http.Header{}
	if d.opts.UserAgent != "" {
		header.Set("User-Agent", d.opts.UserAgent)
	}
	conn, resp, err := d.dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %s)", url, err, resp.Status)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	c := &wsConn{
		conn:   conn,
		opts:   d.opts,
		frames: make(chan inbound, 64),
		done:   make(chan struct{}),
		log:    d.log.WithComponent("transport").WithFields(logger.Fields{"url": url}),
	}
	conn.SetReadDeadline(time.Now().Add(d.opts.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(d.opts.ReadTimeout))
	})

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()
	return c, nil
}

type inbound struct {
	data []byte
	err  error
}

type wsConn struct {
	conn    *websocket.Conn
	opts    Options
	frames  chan inbound
	done    chan struct{}
	writeMu sync.Mutex
	once    sync.Once
	wg      sync.WaitGroup
	log     *logger.Entry
}

func (c *wsConn) readLoop() {
	defer c.wg.Done()
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case c.frames <- inbound{err: c.readError(err)}:
			case <-c.done:
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
		select {
		case c.frames <- inbound{data: msg}:
		case <-c.done:
			return
		}
	}
}

func (c *wsConn) readError(err error) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("read timeout after %s: %w", c.opts.ReadTimeout, err)
	}
	return err
}

func (c *wsConn) pingLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteTimeout)); err != nil {
				c.log.WithError(err).Warn("failed to send websocket ping")
				return
			}
		}
	}
}

func (c *wsConn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case in := <-c.frames:
		return in.data, in.err
	case <-c.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *wsConn) Send(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	deadline := time.Now().Add(c.opts.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (c *wsConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
		c.wg.Wait()
	})
	return err
}
