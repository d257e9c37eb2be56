// Package exchange defines the per-venue connector contract and the helpers
// shared by every venue implementation.
package exchange

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"cryptonorm/internal/model"
	"cryptonorm/internal/subscription"
)

// Connector knows one exchange segment's wire dialect: where to connect, how
// to spell channels and markets, what to send to subscribe and how to turn
// inbound frames into market events. Implementations are stateless.
type Connector interface {
	ID() model.ExchangeID
	// URL returns the websocket endpoint that serves the whole batch.
	URL(subs []subscription.Subscription) (string, error)
	// Channel returns the venue channel token for a subscription, or an
	// *model.UnsupportedError when the venue cannot serve its kind.
	Channel(sub subscription.Subscription) (string, error)
	// Market returns the venue market spelling used in subscription ids.
	Market(inst model.Instrument) string
	// Requests returns the subscribe frames for the batch.
	Requests(subs []subscription.Subscription) ([][]byte, error)
	// Heartbeat returns the application level keepalive. A zero interval
	// disables it.
	Heartbeat() (time.Duration, []byte)
	// RequestRate bounds how fast subscribe frames are written.
	RequestRate() (rate.Limit, int)
	NewTransformer(instruments subscription.Map[model.Instrument]) Transformer
}

// Transformer turns one inbound frame into zero or more market events.
// Control frames (acks, pongs, heartbeats) yield no events and no error.
type Transformer interface {
	Transform(frame []byte) ([]model.MarketEvent, error)
}

// SubscriptionRejectedError is returned by a transformer when the venue
// answers a subscribe request with an error.
type SubscriptionRejectedError struct {
	Exchange model.ExchangeID
	Reason   string
}

func (e *SubscriptionRejectedError) Error() string {
	return fmt.Sprintf("%s rejected subscription: %s", e.Exchange, e.Reason)
}

// BuildMeta validates a batch against the connector and builds the id lookup
// and subscribe frames. All problems in the batch are reported together.
func BuildMeta(c Connector, subs []subscription.Subscription) (subscription.Meta, error) {
	if len(subs) == 0 {
		return subscription.Meta{}, fmt.Errorf("%s: empty subscription batch", c.ID())
	}

	instruments := make(subscription.Map[model.Instrument], len(subs))
	seen := make(map[subscription.ID]subscription.Subscription, len(subs))
	var errs []error
	for _, sub := range subs {
		if sub.Exchange != c.ID() {
			errs = append(errs, fmt.Errorf("%s: subscription %s belongs to another exchange", c.ID(), sub))
			continue
		}
		if _, err := subscription.Validate(sub); err != nil {
			errs = append(errs, err)
			continue
		}
		channel, err := c.Channel(sub)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		id := subscription.NewID(channel, c.Market(sub.Instrument))
		if first, dup := seen[id]; dup {
			errs = append(errs, &subscription.DuplicateIDError{ID: id, First: first, Again: sub})
			continue
		}
		seen[id] = sub
		instruments[id] = sub.Instrument
	}
	if len(errs) > 0 {
		return subscription.Meta{}, errors.Join(errs...)
	}

	if _, err := c.URL(subs); err != nil {
		return subscription.Meta{}, err
	}
	payloads, err := c.Requests(subs)
	if err != nil {
		return subscription.Meta{}, err
	}
	return subscription.Meta{Instruments: instruments, Payloads: payloads}, nil
}

// Unsupported is the error for a kind or interval a venue cannot serve.
func Unsupported(id model.ExchangeID, sub subscription.Subscription) error {
	return &model.UnsupportedError{Entity: id.String(), Item: sub.Kind.String()}
}

// Chunk splits items into groups of at most n.
func Chunk[T any](items []T, n int) [][]T {
	if n <= 0 {
		n = len(items)
	}
	var out [][]T
	for len(items) > 0 {
		end := n
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[:end])
		items = items[end:]
	}
	return out
}
