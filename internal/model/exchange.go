package model

import (
	"fmt"
	"strings"
)

// ExchangeID names one venue market segment. Each segment owns its own
// endpoint and wire dialect.
type ExchangeID string

const (
	BinanceSpot        ExchangeID = "binance_spot"
	BinanceFuturesUsd  ExchangeID = "binance_futures_usd"
	BybitSpot          ExchangeID = "bybit_spot"
	BybitPerpetualsUsd ExchangeID = "bybit_perpetuals_usd"
	Okx                ExchangeID = "okx"
	Coinbase           ExchangeID = "coinbase"
	Kraken             ExchangeID = "kraken"
)

var exchangeIDs = []ExchangeID{
	BinanceSpot,
	BinanceFuturesUsd,
	BybitSpot,
	BybitPerpetualsUsd,
	Okx,
	Coinbase,
	Kraken,
}

// Exchanges returns every known exchange in declaration order.
func Exchanges() []ExchangeID {
	out := make([]ExchangeID, len(exchangeIDs))
	copy(out, exchangeIDs)
	return out
}

func ParseExchangeID(s string) (ExchangeID, error) {
	id := ExchangeID(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range exchangeIDs {
		if id == known {
			return id, nil
		}
	}
	return "", fmt.Errorf("unknown exchange %q", s)
}

func (e ExchangeID) String() string { return string(e) }

func (e *ExchangeID) UnmarshalText(b []byte) error {
	id, err := ParseExchangeID(string(b))
	if err != nil {
		return err
	}
	*e = id
	return nil
}

// SupportsSpot reports whether the segment lists spot instruments.
func (e ExchangeID) SupportsSpot() bool {
	switch e {
	case BinanceSpot, BybitSpot, Okx, Coinbase, Kraken:
		return true
	default:
		return false
	}
}

// SupportsFutures reports whether the segment lists perpetual futures.
func (e ExchangeID) SupportsFutures() bool {
	switch e {
	case BinanceFuturesUsd, BybitPerpetualsUsd, Okx:
		return true
	default:
		return false
	}
}

// Venue is the operator behind the segment, e.g. "binance" for both Binance
// segments.
func (e ExchangeID) Venue() string {
	switch e {
	case BinanceSpot, BinanceFuturesUsd:
		return "binance"
	case BybitSpot, BybitPerpetualsUsd:
		return "bybit"
	default:
		return string(e)
	}
}
