// Package bybit implements the Bybit v5 public spot and linear perpetual
// streams.
package bybit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"cryptonorm/internal/exchange"
	"cryptonorm/internal/model"
	"cryptonorm/internal/subscription"
	"cryptonorm/internal/symbols"
)

const (
	SpotURL   = "wss://stream.bybit.com/v5/public/spot"
	LinearURL = "wss://stream.bybit.com/v5/public/linear"

	// spot rejects requests with more than 10 args
	maxArgsPerRequest = 10

	defaultKeepAlive = 20 * time.Second
)

// Topic prefixes; the topic is the prefix followed by the market.
const (
	ChannelTrades       = "publicTrade."
	ChannelOrderBookL1  = "orderbook.1."
	ChannelOrderBookL2  = "orderbook.50."
	ChannelLiquidations = "allLiquidation."
	ChannelCandles      = "kline."
)

// klineIntervals marks 8h, 3d and 3M as unsupported by leaving them out.
var klineIntervals = map[model.Interval]string{
	model.Minute1:  "1",
	model.Minute3:  "3",
	model.Minute5:  "5",
	model.Minute15: "15",
	model.Minute30: "30",
	model.Hour1:    "60",
	model.Hour2:    "120",
	model.Hour4:    "240",
	model.Hour6:    "360",
	model.Hour12:   "720",
	model.Day1:     "D",
	model.Week1:    "W",
	model.Month1:   "M",
}

var pingFrame = []byte(`{"op":"ping"}`)

type Connector struct {
	id  model.ExchangeID
	url string
}

func NewSpot() *Connector {
	return &Connector{id: model.BybitSpot, url: SpotURL}
}

func NewPerpetualsUsd() *Connector {
	return &Connector{id: model.BybitPerpetualsUsd, url: LinearURL}
}

func (c *Connector) WithURL(url string) *Connector {
	cp := *c
	if url != "" {
		cp.url = url
	}
	return &cp
}

func (c *Connector) ID() model.ExchangeID { return c.id }

func (c *Connector) URL([]subscription.Subscription) (string, error) { return c.url, nil }

func (c *Connector) Channel(sub subscription.Subscription) (string, error) {
	switch sub.Kind.Type {
	case model.KindPublicTrades:
		return ChannelTrades, nil
	case model.KindCandles:
		if interval, ok := klineIntervals[sub.Kind.Interval]; ok {
			return ChannelCandles + interval + ".", nil
		}
	case model.KindOrderBooksL1:
		return ChannelOrderBookL1, nil
	case model.KindOrderBooksL2:
		return ChannelOrderBookL2, nil
	case model.KindLiquidations:
		if c.id == model.BybitPerpetualsUsd {
			return ChannelLiquidations, nil
		}
	}
	return "", exchange.Unsupported(c.id, sub)
}

func (c *Connector) Market(inst model.Instrument) string {
	return symbols.Market(c.id, inst)
}

type subscribeRequest struct {
	ReqID string   `json:"req_id"`
	Op    string   `json:"op"`
	Args  []string `json:"args"`
}

// Requests builds {"req_id":"...","op":"subscribe","args":["publicTrade.BTCUSDT"]}.
func (c *Connector) Requests(subs []subscription.Subscription) ([][]byte, error) {
	topics := make([]string, 0, len(subs))
	for _, sub := range subs {
		channel, err := c.Channel(sub)
		if err != nil {
			return nil, err
		}
		topics = append(topics, channel+c.Market(sub.Instrument))
	}

	var out [][]byte
	for _, chunk := range exchange.Chunk(topics, maxArgsPerRequest) {
		b, err := json.Marshal(subscribeRequest{ReqID: uuid.NewString(), Op: "subscribe", Args: chunk})
		if err != nil {
			return nil, fmt.Errorf("marshal bybit subscribe: %w", err)
		}
		out = append(out, b)
	}
	return out, nil
}

// Heartbeat sends {"op":"ping"}; Bybit drops connections idle for 30s.
func (c *Connector) Heartbeat() (time.Duration, []byte) { return defaultKeepAlive, pingFrame }

func (c *Connector) RequestRate() (rate.Limit, int) { return rate.Limit(5), 1 }

func (c *Connector) NewTransformer(instruments subscription.Map[model.Instrument]) exchange.Transformer {
	return &transformer{id: c.id, instruments: instruments, now: time.Now}
}
