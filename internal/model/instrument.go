package model

import (
	"fmt"
	"strings"
)

// InstrumentKind distinguishes spot pairs from perpetual futures.
type InstrumentKind uint8

const (
	Spot InstrumentKind = iota + 1
	FuturePerpetual
)

func (k InstrumentKind) String() string {
	switch k {
	case Spot:
		return "spot"
	case FuturePerpetual:
		return "future_perpetual"
	default:
		return "unknown"
	}
}

// ParseInstrumentKind parses the config/JSON spelling of an instrument kind.
func ParseInstrumentKind(s string) (InstrumentKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "spot":
		return Spot, nil
	case "future_perpetual", "perpetual", "perp", "swap":
		return FuturePerpetual, nil
	default:
		return 0, fmt.Errorf("invalid instrument kind %q", s)
	}
}

func (k InstrumentKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *InstrumentKind) UnmarshalText(b []byte) error {
	parsed, err := ParseInstrumentKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Instrument identifies a tradeable pair independent of any venue. Base and
// quote are stored lowercase so equal pairs compare equal regardless of how
// they were configured.
type Instrument struct {
	Base  string         `json:"base"`
	Quote string         `json:"quote"`
	Kind  InstrumentKind `json:"kind"`
}

func NewInstrument(base, quote string, kind InstrumentKind) Instrument {
	return Instrument{
		Base:  strings.ToLower(strings.TrimSpace(base)),
		Quote: strings.ToLower(strings.TrimSpace(quote)),
		Kind:  kind,
	}
}

func (i Instrument) String() string {
	return fmt.Sprintf("(%s_%s, %s)", i.Base, i.Quote, i.Kind)
}

// Less orders instruments by base, then quote, then kind.
func (i Instrument) Less(o Instrument) bool {
	if i.Base != o.Base {
		return i.Base < o.Base
	}
	if i.Quote != o.Quote {
		return i.Quote < o.Quote
	}
	return i.Kind < o.Kind
}
