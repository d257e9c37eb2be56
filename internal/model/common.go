// internal/model/common.go
// @tag models, data_structure, core
package model

import (
	"fmt"
	"strings"
)

// Side is the aggressor side of a trade or the side of a liquidated order.
type Side uint8

const (
	Buy Side = iota + 1
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

// ParseSide accepts the spellings venues use on the wire ("buy", "Buy", "BUY", "b").
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy", "b", "bid":
		return Buy, nil
	case "sell", "s", "ask", "offer":
		return Sell, nil
	default:
		return 0, fmt.Errorf("invalid side %q", s)
	}
}

func (s Side) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Level is a single price level in an order book.
type Level struct {
	Price  float64 `json:"price"`
	Amount float64 `json:"amount"`
}
