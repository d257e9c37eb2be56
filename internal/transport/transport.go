// Package transport is the duplex frame connection a connection group streams
// over.
package transport

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by Receive and Send once the connection is closed,
// locally or by the peer.
var ErrClosed = errors.New("transport: connection closed")

// Conn is one duplex connection carrying whole text frames.
type Conn interface {
	Send(ctx context.Context, frame []byte) error
	// Receive blocks until the next inbound frame, ctx is done or the
	// connection fails.
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// Options tunes the websocket dialer. Zero values take the defaults below.
type Options struct {
	HandshakeTimeout time.Duration
	// PingInterval is the cadence of websocket control pings.
	PingInterval time.Duration
	// ReadTimeout is how long the connection may stay silent, pongs included.
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ReadBufferBytes int
	UserAgent       string
}

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultPingInterval     = 20 * time.Second
	defaultReadTimeout      = 60 * time.Second
	defaultWriteTimeout     = 5 * time.Second
)

func (o Options) withDefaults() Options {
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = defaultHandshakeTimeout
	}
	if o.PingInterval <= 0 {
		o.PingInterval = defaultPingInterval
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = defaultReadTimeout
	}
	if o.ReadTimeout < o.PingInterval {
		o.ReadTimeout = 2 * o.PingInterval
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = defaultWriteTimeout
	}
	return o
}
