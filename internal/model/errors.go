package model

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupported    = errors.New("unsupported")
	ErrUnidentifiable = errors.New("unidentifiable subscription id")
	ErrDecode         = errors.New("decode failed")
)

// UnsupportedError is returned when an exchange cannot serve an item, such as
// an instrument kind, a subscription kind or a candle interval.
type UnsupportedError struct {
	Entity string
	Item   string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%s does not support %s", e.Entity, e.Item)
}

func (e *UnsupportedError) Is(target error) bool { return target == ErrUnsupported }

// UnidentifiableError is returned when an inbound message carries a
// subscription id that the connection never subscribed to.
type UnidentifiableError struct {
	ID string
}

func (e *UnidentifiableError) Error() string {
	return fmt.Sprintf("unidentifiable subscription id %q", e.ID)
}

func (e *UnidentifiableError) Is(target error) bool { return target == ErrUnidentifiable }

// DecodeError wraps a frame that could not be parsed into a venue record.
type DecodeError struct {
	Exchange ExchangeID
	Payload  string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: failed to decode %q: %v", e.Exchange, truncate(e.Payload, 256), e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
