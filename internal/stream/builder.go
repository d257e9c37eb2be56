package stream

import (
	"context"
	"errors"
	"fmt"

	"cryptonorm/internal/exchange"
	"cryptonorm/internal/exchange/registry"
	"cryptonorm/internal/model"
	"cryptonorm/internal/subscription"
	"cryptonorm/internal/transport"
	"cryptonorm/logger"
)

// Registry resolves an exchange to its connector.
type Registry interface {
	Lookup(id model.ExchangeID) (exchange.Connector, error)
}

type Option func(*Builder)

func WithDialer(d transport.Dialer) Option {
	return func(b *Builder) { b.dialer = d }
}

func WithRegistry(r Registry) Option {
	return func(b *Builder) { b.registry = r }
}

func WithReconnect(p Policy) Option {
	return func(b *Builder) { b.policy = p }
}

// WithBuffers sizes the per-group, per-exchange and joined buffers. Values
// <= 0 keep the defaults.
func WithBuffers(group, exchange, join int) Option {
	return func(b *Builder) {
		if group > 0 {
			b.groupBuffer = group
		}
		if exchange > 0 {
			b.exchangeBuffer = exchange
		}
		if join > 0 {
			b.joinBuffer = join
		}
	}
}

func WithLogger(l *logger.Log) Option {
	return func(b *Builder) { b.log = l }
}

// Builder collects subscription batches. Each batch becomes one connection
// group, so every subscription in a batch must target the same exchange.
type Builder struct {
	dialer         transport.Dialer
	registry       Registry
	policy         Policy
	groupBuffer    int
	exchangeBuffer int
	joinBuffer     int
	log            *logger.Log
	batches        [][]subscription.Subscription
}

func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		registry:       registry.Default,
		policy:         DefaultPolicy(),
		groupBuffer:    1024,
		exchangeBuffer: 4096,
		joinBuffer:     8192,
		log:            logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.dialer == nil {
		b.dialer = transport.NewWebsocketDialer(transport.Options{})
	}
	return b
}

// Subscribe adds one batch.
func (b *Builder) Subscribe(subs ...subscription.Subscription) *Builder {
	batch := make([]subscription.Subscription, len(subs))
	copy(batch, subs)
	b.batches = append(b.batches, batch)
	return b
}

// Init validates every batch and only then starts the connection groups. All
// validation problems across batches are returned together and no connection
// is opened when there is any.
func (b *Builder) Init(ctx context.Context) (*Streams, error) {
	log := b.log.WithComponent("stream_builder")
	if len(b.batches) == 0 {
		return nil, ErrNoBatches
	}

	groups := make([]*group, 0, len(b.batches))
	var errs []error
	for i, batch := range b.batches {
		g, err := b.buildGroup(batch)
		if err != nil {
			errs = append(errs, fmt.Errorf("batch %d: %w", i, err))
			continue
		}
		groups = append(groups, g)
	}
	if len(errs) > 0 {
		err := errors.Join(errs...)
		log.WithError(err).Error("subscription validation failed")
		return nil, err
	}

	s := newStreams(ctx, groups, b.exchangeBuffer, b.joinBuffer, b.log)
	log.WithFields(logger.Fields{
		"groups":    len(groups),
		"exchanges": len(s.order),
	}).Info("streams initialized")
	return s, nil
}

func (b *Builder) buildGroup(batch []subscription.Subscription) (*group, error) {
	if len(batch) == 0 {
		return nil, fmt.Errorf("empty subscription batch")
	}
	id := batch[0].Exchange
	for _, sub := range batch[1:] {
		if sub.Exchange != id {
			return nil, fmt.Errorf("batch mixes exchanges %s and %s", id, sub.Exchange)
		}
	}
	connector, err := b.registry.Lookup(id)
	if err != nil {
		return nil, err
	}
	meta, err := exchange.BuildMeta(connector, batch)
	if err != nil {
		return nil, err
	}
	url, err := connector.URL(batch)
	if err != nil {
		return nil, err
	}
	return newGroup(groupConfig{
		connector: connector,
		subs:      batch,
		meta:      meta,
		url:       url,
		dialer:    b.dialer,
		policy:    b.policy,
		buffer:    b.groupBuffer,
		log:       b.log,
	}), nil
}
