// Package kraken implements the Kraken v1 public websocket API.
package kraken

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"cryptonorm/internal/exchange"
	"cryptonorm/internal/model"
	"cryptonorm/internal/subscription"
	"cryptonorm/internal/symbols"
)

const (
	URL = "wss://ws.kraken.com"

	bookDepth        = 10
	defaultKeepAlive = 30 * time.Second
)

const (
	ChannelTrades      = "trade"
	ChannelOrderBookL1 = "spread"
	ChannelCandles     = "ohlc"
	ChannelOrderBook   = "book"
)

// ChannelOrderBookL2 is the channel name Kraken echoes for a depth 10 book.
var ChannelOrderBookL2 = ChannelOrderBook + "-" + strconv.Itoa(bookDepth)

// ohlcMinutes holds the intervals Kraken serves, in minutes.
var ohlcMinutes = map[model.Interval]int{
	model.Minute1:  1,
	model.Minute5:  5,
	model.Minute15: 15,
	model.Minute30: 30,
	model.Hour1:    60,
	model.Hour4:    240,
	model.Day1:     1440,
	model.Week1:    10080,
}

var pingFrame = []byte(`{"event":"ping"}`)

type Connector struct {
	url string
}

func New() *Connector {
	return &Connector{url: URL}
}

func (c *Connector) WithURL(url string) *Connector {
	cp := *c
	if url != "" {
		cp.url = url
	}
	return &cp
}

func (c *Connector) ID() model.ExchangeID { return model.Kraken }

func (c *Connector) URL([]subscription.Subscription) (string, error) { return c.url, nil }

// Channel returns the channel name as echoed in data frames, e.g. "ohlc-5".
func (c *Connector) Channel(sub subscription.Subscription) (string, error) {
	switch sub.Kind.Type {
	case model.KindPublicTrades:
		return ChannelTrades, nil
	case model.KindCandles:
		if minutes, ok := ohlcMinutes[sub.Kind.Interval]; ok {
			return ChannelCandles + "-" + strconv.Itoa(minutes), nil
		}
	case model.KindOrderBooksL1:
		return ChannelOrderBookL1, nil
	case model.KindOrderBooksL2:
		return ChannelOrderBookL2, nil
	}
	return "", exchange.Unsupported(model.Kraken, sub)
}

func (c *Connector) Market(inst model.Instrument) string {
	return symbols.Market(model.Kraken, inst)
}

type subscriptionParams struct {
	Name     string `json:"name"`
	Interval int    `json:"interval,omitempty"`
	Depth    int    `json:"depth,omitempty"`
}

type subscribeRequest struct {
	Event        string             `json:"event"`
	Pair         []string           `json:"pair"`
	Subscription subscriptionParams `json:"subscription"`
}

// Requests sends one frame per distinct subscription params, e.g.
// {"event":"subscribe","pair":["XBT/USD"],"subscription":{"name":"ohlc","interval":5}}.
func (c *Connector) Requests(subs []subscription.Subscription) ([][]byte, error) {
	var order []subscriptionParams
	pairs := map[subscriptionParams][]string{}
	for _, sub := range subs {
		if _, err := c.Channel(sub); err != nil {
			return nil, err
		}
		var params subscriptionParams
		switch sub.Kind.Type {
		case model.KindPublicTrades:
			params.Name = ChannelTrades
		case model.KindCandles:
			params = subscriptionParams{Name: ChannelCandles, Interval: ohlcMinutes[sub.Kind.Interval]}
		case model.KindOrderBooksL1:
			params.Name = ChannelOrderBookL1
		case model.KindOrderBooksL2:
			params = subscriptionParams{Name: ChannelOrderBook, Depth: bookDepth}
		}
		if _, ok := pairs[params]; !ok {
			order = append(order, params)
		}
		pairs[params] = append(pairs[params], c.Market(sub.Instrument))
	}

	out := make([][]byte, 0, len(order))
	for _, params := range order {
		b, err := json.Marshal(subscribeRequest{Event: "subscribe", Pair: pairs[params], Subscription: params})
		if err != nil {
			return nil, fmt.Errorf("marshal kraken subscribe: %w", err)
		}
		out = append(out, b)
	}
	return out, nil
}

func (c *Connector) Heartbeat() (time.Duration, []byte) { return defaultKeepAlive, pingFrame }

func (c *Connector) RequestRate() (rate.Limit, int) { return rate.Limit(5), 1 }

func (c *Connector) NewTransformer(instruments subscription.Map[model.Instrument]) exchange.Transformer {
	return &transformer{instruments: instruments, now: time.Now}
}
