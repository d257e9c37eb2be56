package model

import (
	"fmt"
	"strings"
)

// SubKindType selects which normalized payload a subscription yields.
type SubKindType uint8

const (
	KindPublicTrades SubKindType = iota + 1
	KindCandles
	KindOrderBooksL1
	KindOrderBooksL2
	KindLiquidations
)

func (t SubKindType) String() string {
	switch t {
	case KindPublicTrades:
		return "public_trades"
	case KindCandles:
		return "candles"
	case KindOrderBooksL1:
		return "order_books_l1"
	case KindOrderBooksL2:
		return "order_books_l2"
	case KindLiquidations:
		return "liquidations"
	default:
		return "unknown"
	}
}

func ParseSubKindType(s string) (SubKindType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "public_trades", "trades":
		return KindPublicTrades, nil
	case "candles", "klines":
		return KindCandles, nil
	case "order_books_l1", "l1":
		return KindOrderBooksL1, nil
	case "order_books_l2", "l2":
		return KindOrderBooksL2, nil
	case "liquidations":
		return KindLiquidations, nil
	default:
		return 0, fmt.Errorf("invalid subscription kind %q", s)
	}
}

// SubKind is the subscription kind. Interval is set only for candles.
type SubKind struct {
	Type     SubKindType
	Interval Interval
}

var (
	PublicTrades = SubKind{Type: KindPublicTrades}
	OrderBooksL1 = SubKind{Type: KindOrderBooksL1}
	OrderBooksL2 = SubKind{Type: KindOrderBooksL2}
	Liquidations = SubKind{Type: KindLiquidations}
)

// Candles returns the candle kind for the given interval.
func Candles(i Interval) SubKind {
	return SubKind{Type: KindCandles, Interval: i}
}

// ParseSubKind builds a SubKind from its config spelling. interval is only
// consulted for candles.
func ParseSubKind(kind, interval string) (SubKind, error) {
	t, err := ParseSubKindType(kind)
	if err != nil {
		return SubKind{}, err
	}
	if t != KindCandles {
		return SubKind{Type: t}, nil
	}
	if interval == "" {
		return SubKind{}, fmt.Errorf("candles require an interval")
	}
	i, err := ParseInterval(interval)
	if err != nil {
		return SubKind{}, err
	}
	return Candles(i), nil
}

func (k SubKind) String() string {
	if k.Type == KindCandles {
		return fmt.Sprintf("%s_%s", k.Type, k.Interval)
	}
	return k.Type.String()
}

// Valid reports whether the kind is well formed: a known type, with a valid
// interval exactly when it is a candle kind.
func (k SubKind) Valid() bool {
	switch k.Type {
	case KindCandles:
		return k.Interval.Valid()
	case KindPublicTrades, KindOrderBooksL1, KindOrderBooksL2, KindLiquidations:
		return k.Interval == 0
	default:
		return false
	}
}
