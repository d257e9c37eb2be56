// Package okx implements the OKX v5 public and business websocket channels.
package okx

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"cryptonorm/internal/exchange"
	"cryptonorm/internal/model"
	"cryptonorm/internal/subscription"
	"cryptonorm/internal/symbols"
)

const (
	PublicURL   = "wss://ws.okx.com:8443/ws/v5/public"
	BusinessURL = "wss://ws.okx.com:8443/ws/v5/business"

	maxArgsPerRequest = 50
	defaultKeepAlive  = 25 * time.Second
)

const (
	ChannelTrades      = "trades"
	ChannelOrderBookL1 = "bbo-tbt"
	ChannelOrderBookL2 = "books"
	ChannelCandles     = "candle"
)

// ErrMixedEndpoints is returned for a batch that mixes candle channels, served
// on the business endpoint, with channels served on the public endpoint.
var ErrMixedEndpoints = errors.New("okx: candles and other channels need separate batches")

// klineIntervals leaves out 8h, which OKX does not serve.
var klineIntervals = map[model.Interval]string{
	model.Minute1:  "1m",
	model.Minute3:  "3m",
	model.Minute5:  "5m",
	model.Minute15: "15m",
	model.Minute30: "30m",
	model.Hour1:    "1H",
	model.Hour2:    "2H",
	model.Hour4:    "4H",
	model.Hour6:    "6H",
	model.Hour12:   "12H",
	model.Day1:     "1D",
	model.Day3:     "3D",
	model.Week1:    "1W",
	model.Month1:   "1M",
	model.Month3:   "3M",
}

var pingFrame = []byte("ping")

type Connector struct {
	publicURL   string
	businessURL string
}

func New() *Connector {
	return &Connector{publicURL: PublicURL, businessURL: BusinessURL}
}

// WithURLs overrides the endpoints; empty values keep the defaults.
func (c *Connector) WithURLs(public, business string) *Connector {
	cp := *c
	if public != "" {
		cp.publicURL = public
	}
	if business != "" {
		cp.businessURL = business
	}
	return &cp
}

func (c *Connector) ID() model.ExchangeID { return model.Okx }

func (c *Connector) URL(subs []subscription.Subscription) (string, error) {
	var candles, other int
	for _, sub := range subs {
		if sub.Kind.Type == model.KindCandles {
			candles++
		} else {
			other++
		}
	}
	switch {
	case candles > 0 && other > 0:
		return "", ErrMixedEndpoints
	case candles > 0:
		return c.businessURL, nil
	default:
		return c.publicURL, nil
	}
}

func (c *Connector) Channel(sub subscription.Subscription) (string, error) {
	switch sub.Kind.Type {
	case model.KindPublicTrades:
		return ChannelTrades, nil
	case model.KindCandles:
		if interval, ok := klineIntervals[sub.Kind.Interval]; ok {
			return ChannelCandles + interval, nil
		}
	case model.KindOrderBooksL1:
		return ChannelOrderBookL1, nil
	case model.KindOrderBooksL2:
		return ChannelOrderBookL2, nil
	}
	return "", exchange.Unsupported(model.Okx, sub)
}

func (c *Connector) Market(inst model.Instrument) string {
	return symbols.Market(model.Okx, inst)
}

type arg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

type subscribeRequest struct {
	Op   string `json:"op"`
	Args []arg  `json:"args"`
}

// Requests builds {"op":"subscribe","args":[{"channel":"trades","instId":"BTC-USDT"}]}.
func (c *Connector) Requests(subs []subscription.Subscription) ([][]byte, error) {
	args := make([]arg, 0, len(subs))
	for _, sub := range subs {
		channel, err := c.Channel(sub)
		if err != nil {
			return nil, err
		}
		args = append(args, arg{Channel: channel, InstID: c.Market(sub.Instrument)})
	}
	var out [][]byte
	for _, chunk := range exchange.Chunk(args, maxArgsPerRequest) {
		b, err := json.Marshal(subscribeRequest{Op: "subscribe", Args: chunk})
		if err != nil {
			return nil, fmt.Errorf("marshal okx subscribe: %w", err)
		}
		out = append(out, b)
	}
	return out, nil
}

// Heartbeat sends the text frame "ping"; OKX closes connections silent for 30s.
func (c *Connector) Heartbeat() (time.Duration, []byte) { return defaultKeepAlive, pingFrame }

// RequestRate keeps under 3 subscribe requests per second.
func (c *Connector) RequestRate() (rate.Limit, int) { return rate.Limit(3), 1 }

func (c *Connector) NewTransformer(instruments subscription.Map[model.Instrument]) exchange.Transformer {
	return &transformer{instruments: instruments, now: time.Now}
}

// intervalFromChannel reverses the candle channel table.
func intervalFromChannel(channel string) (model.Interval, bool) {
	for i, suffix := range klineIntervals {
		if ChannelCandles+suffix == channel {
			return i, true
		}
	}
	return 0, false
}
