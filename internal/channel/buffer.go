// Package channel provides the bounded buffers events travel through between
// connection groups and consumers.
package channel

import (
	"context"
	"sync"
	"sync/atomic"

	"cryptonorm/logger"
)

type Stats struct {
	Sent int64
	// Blocked counts sends that found the buffer full and had to wait.
	Blocked int64
	// Abandoned counts sends given up because the context ended first.
	Abandoned int64
}

// Buffer is a named bounded channel. Sends block while it is full; nothing is
// dropped.
type Buffer[T any] struct {
	C    chan T
	name string

	sent      atomic.Int64
	blocked   atomic.Int64
	abandoned atomic.Int64
	once      sync.Once
	log       *logger.Log
}

func NewBuffer[T any](name string, size int) *Buffer[T] {
	if size < 0 {
		size = 0
	}
	b := &Buffer[T]{
		C:    make(chan T, size),
		name: name,
		log:  logger.GetLogger(),
	}
	b.log.WithComponent("channels").WithFields(logger.Fields{
		"buffer":      name,
		"buffer_size": size,
	}).Debug("buffer initialized")
	return b
}

// Send delivers v, waiting for room while the buffer is full. It reports false
// when ctx ends first.
func (b *Buffer[T]) Send(ctx context.Context, v T) bool {
	select {
	case b.C <- v:
		b.sent.Add(1)
		return true
	default:
	}
	b.blocked.Add(1)
	select {
	case b.C <- v:
		b.sent.Add(1)
		return true
	case <-ctx.Done():
		b.abandoned.Add(1)
		return false
	}
}

// Close closes C. Only the last producer may call it.
func (b *Buffer[T]) Close() {
	b.once.Do(func() {
		close(b.C)
		b.log.WithComponent("channels").WithFields(logger.Fields{"buffer": b.name}).Debug("buffer closed")
	})
}

func (b *Buffer[T]) Name() string { return b.name }
func (b *Buffer[T]) Len() int     { return len(b.C) }
func (b *Buffer[T]) Cap() int     { return cap(b.C) }

func (b *Buffer[T]) GetStats() Stats {
	return Stats{
		Sent:      b.sent.Load(),
		Blocked:   b.blocked.Load(),
		Abandoned: b.abandoned.Load(),
	}
}
