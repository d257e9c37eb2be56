package subscription

import (
	"fmt"

	"cryptonorm/internal/model"
)

// ID is the wire identity of a subscription: the venue channel token and the
// venue market spelling joined by "|", e.g. "@kline_1m|BNBBTC".
type ID string

func NewID(channel, market string) ID {
	return ID(channel + "|" + market)
}

// Map resolves inbound subscription ids to the value registered for them,
// normally the canonical instrument. A Map is built once per connection and
// only read afterwards.
type Map[T any] map[ID]T

// Find returns the value for id or an *model.UnidentifiableError.
func (m Map[T]) Find(id ID) (T, error) {
	v, ok := m[id]
	if !ok {
		var zero T
		return zero, &model.UnidentifiableError{ID: string(id)}
	}
	return v, nil
}

// Meta is everything a connection needs before it opens: the id lookup and
// the subscribe frames to send.
type Meta struct {
	Instruments Map[model.Instrument]
	Payloads    [][]byte
}

// DuplicateIDError reports two subscriptions in one batch that map to the same
// wire id.
type DuplicateIDError struct {
	ID    ID
	First Subscription
	Again Subscription
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("duplicate subscription id %q: %s and %s", e.ID, e.First, e.Again)
}
