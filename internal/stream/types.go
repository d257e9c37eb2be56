// Package stream turns subscription batches into live connection groups and
// exposes their normalised events as per-exchange and joined streams.
package stream

import (
	"errors"
	"fmt"
	"time"

	"cryptonorm/internal/model"
	"cryptonorm/internal/subscription"
)

var (
	ErrNoBatches       = errors.New("stream: no subscription batches")
	ErrNotSubscribed   = errors.New("stream: no subscriptions for exchange")
	ErrAlreadySelected = errors.New("stream: exchange already selected")
)

// Item is one element of an output stream: an event, or the terminal error of
// a connection group. A group emits at most one error item and nothing after
// it.
type Item struct {
	Event model.MarketEvent
	Err   error
}

// GroupError ends a connection group that could not be kept alive.
type GroupError struct {
	GroupID  string
	Exchange model.ExchangeID
	Err      error
}

func (e *GroupError) Error() string {
	return fmt.Sprintf("connection group %s (%s) failed: %v", e.GroupID, e.Exchange, e.Err)
}

func (e *GroupError) Unwrap() error { return e.Err }

// Policy decides whether and how a failed connection group reconnects.
// MaxAttempts counts consecutive failed attempts; zero means unlimited.
type Policy struct {
	Enabled     bool
	MaxAttempts int
	MinDelay    time.Duration
	MaxDelay    time.Duration
	Factor      float64
}

func DefaultPolicy() Policy {
	return Policy{
		Enabled:  true,
		MinDelay: 500 * time.Millisecond,
		MaxDelay: 30 * time.Second,
		Factor:   2,
	}
}

// NoReconnect fails a group on its first transport error.
var NoReconnect = Policy{}

type State int32

const (
	StateBuilding State = iota
	StateConnecting
	StateStreaming
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateBuilding:
		return "building"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// GroupInfo describes one connection group.
type GroupInfo struct {
	ID            string
	Exchange      model.ExchangeID
	URL           string
	Subscriptions []subscription.Subscription
	State         State
}
