// Package mock provides scripted in-memory transport connections.
package mock

import (
	"context"
	"fmt"
	"sync"

	"cryptonorm/internal/transport"
)

// Script describes one connection. Frames are delivered in order, then End is
// returned from Receive. A nil End keeps the connection open until closed.
type Script struct {
	Frames  [][]byte
	End     error
	DialErr error
	SendErr error
}

// Frames is shorthand for a script of string frames that stays open.
func Frames(frames ...string) Script {
	s := Script{}
	for _, f := range frames {
		s.Frames = append(s.Frames, []byte(f))
	}
	return s
}

// Dialer hands out one scripted connection per Dial, in order. Dials past the
// last script fail.
type Dialer struct {
	mu      sync.Mutex
	scripts []Script
	urls    []string
	conns   []*Conn

	// Dialed receives every successfully dialed connection.
	Dialed chan *Conn
}

func NewDialer(scripts ...Script) *Dialer {
	return &Dialer{scripts: scripts, Dialed: make(chan *Conn, len(scripts)+16)}
}

// Add appends scripts for later dials.
func (d *Dialer) Add(scripts ...Script) {
	d.mu.Lock()
	d.scripts = append(d.scripts, scripts...)
	d.mu.Unlock()
}

func (d *Dialer) Dial(ctx context.Context, url string) (transport.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.urls = append(d.urls, url)
	if len(d.scripts) == 0 {
		d.mu.Unlock()
		return nil, fmt.Errorf("mock: no script left for %s", url)
	}
	script := d.scripts[0]
	d.scripts = d.scripts[1:]
	if script.DialErr != nil {
		d.mu.Unlock()
		return nil, script.DialErr
	}
	c := newConn(url, script)
	d.conns = append(d.conns, c)
	d.mu.Unlock()

	select {
	case d.Dialed <- c:
	default:
	}
	return c, nil
}

// URLs returns every url dialed so far, failed dials included.
func (d *Dialer) URLs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.urls...)
}

func (d *Dialer) Conns() []*Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Conn(nil), d.conns...)
}

type Conn struct {
	URL string

	script   Script
	incoming chan []byte
	closed   chan struct{}
	once     sync.Once

	mu   sync.Mutex
	sent [][]byte
}

func newConn(url string, script Script) *Conn {
	c := &Conn{
		URL:      url,
		script:   script,
		incoming: make(chan []byte, len(script.Frames)+1024),
		closed:   make(chan struct{}),
	}
	for _, f := range script.Frames {
		c.incoming <- f
	}
	return c
}

// Push queues a frame after the scripted ones.
func (c *Conn) Push(frame string) {
	c.incoming <- []byte(frame)
}

func (c *Conn) Send(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-c.closed:
		return transport.ErrClosed
	default:
	}
	if c.script.SendErr != nil {
		return c.script.SendErr
	}
	c.mu.Lock()
	c.sent = append(c.sent, append([]byte(nil), frame...))
	c.mu.Unlock()
	return nil
}

func (c *Conn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case <-c.closed:
		return nil, transport.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	select {
	case f := <-c.incoming:
		return f, nil
	default:
	}
	if c.script.End != nil {
		return nil, c.script.End
	}
	select {
	case f := <-c.incoming:
		return f, nil
	case <-c.closed:
		return nil, transport.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Conn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// Sent returns a copy of every frame written to the connection.
func (c *Conn) Sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sent))
	copy(out, c.sent)
	return out
}

// Done is closed once the connection is closed.
func (c *Conn) Done() <-chan struct{} { return c.closed }

// Router dispatches each dial to the Dialer registered for its url.
type Router map[string]*Dialer

func (r Router) Dial(ctx context.Context, url string) (transport.Conn, error) {
	d, ok := r[url]
	if !ok {
		return nil, fmt.Errorf("mock: no dialer for %s", url)
	}
	return d.Dial(ctx, url)
}
