// Package subscription holds the canonical subscription, its validation and
// the per-connection lookup from wire subscription id to instrument.
package subscription

import (
	"encoding/json"
	"fmt"

	"cryptonorm/internal/model"
)

// Subscription asks one exchange for one kind of data about one instrument.
// It is a comparable value and is never mutated after construction.
type Subscription struct {
	Exchange   model.ExchangeID
	Instrument model.Instrument
	Kind       model.SubKind
}

func New(exchange model.ExchangeID, base, quote string, instrumentKind model.InstrumentKind, kind model.SubKind) Subscription {
	return Subscription{
		Exchange:   exchange,
		Instrument: model.NewInstrument(base, quote, instrumentKind),
		Kind:       kind,
	}
}

// Parse builds a subscription from config spellings, e.g.
// Parse("binance_spot", "btc", "usdt", "spot", "candles", "1m").
func Parse(exchange, base, quote, instrumentKind, kind, interval string) (Subscription, error) {
	id, err := model.ParseExchangeID(exchange)
	if err != nil {
		return Subscription{}, err
	}
	ik, err := model.ParseInstrumentKind(instrumentKind)
	if err != nil {
		return Subscription{}, err
	}
	sk, err := model.ParseSubKind(kind, interval)
	if err != nil {
		return Subscription{}, err
	}
	if base == "" || quote == "" {
		return Subscription{}, fmt.Errorf("base and quote are required")
	}
	return New(id, base, quote, ik, sk), nil
}

func (s Subscription) String() string {
	return fmt.Sprintf("%s_%s%s", s.Exchange, s.Kind, s.Instrument)
}

type jsonSubscription struct {
	Exchange       string `json:"exchange"`
	Base           string `json:"base"`
	Quote          string `json:"quote"`
	InstrumentType string `json:"instrument_type"`
	Kind           string `json:"kind"`
	Interval       string `json:"interval,omitempty"`
}

func (s Subscription) MarshalJSON() ([]byte, error) {
	out := jsonSubscription{
		Exchange:       s.Exchange.String(),
		Base:           s.Instrument.Base,
		Quote:          s.Instrument.Quote,
		InstrumentType: s.Instrument.Kind.String(),
		Kind:           s.Kind.Type.String(),
	}
	if s.Kind.Type == model.KindCandles {
		out.Interval = s.Kind.Interval.String()
	}
	return json.Marshal(out)
}

func (s *Subscription) UnmarshalJSON(b []byte) error {
	var in jsonSubscription
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	parsed, err := Parse(in.Exchange, in.Base, in.Quote, in.InstrumentType, in.Kind, in.Interval)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Validate checks that the exchange lists the subscription's instrument kind.
// It performs no I/O and returns the subscription unchanged on success.
func Validate(s Subscription) (Subscription, error) {
	if !s.Kind.Valid() {
		return s, fmt.Errorf("%s: malformed subscription kind %s", s.Exchange, s.Kind)
	}
	if s.Instrument.Base == "" || s.Instrument.Quote == "" {
		return s, fmt.Errorf("%s: instrument requires base and quote", s.Exchange)
	}
	switch s.Instrument.Kind {
	case model.Spot:
		if s.Exchange.SupportsSpot() {
			return s, nil
		}
	case model.FuturePerpetual:
		if s.Exchange.SupportsFutures() {
			return s, nil
		}
	}
	return s, &model.UnsupportedError{Entity: s.Exchange.String(), Item: s.Instrument.Kind.String()}
}
