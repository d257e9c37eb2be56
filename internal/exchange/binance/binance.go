// Package binance implements the Binance spot and USD-M futures market
// streams.
package binance

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"cryptonorm/internal/exchange"
	"cryptonorm/internal/model"
	"cryptonorm/internal/subscription"
	"cryptonorm/internal/symbols"
)

const (
	SpotURL    = "wss://stream.binance.com:9443/ws"
	FuturesURL = "wss://fstream.binance.com/ws"

	// streams per SUBSCRIBE request
	maxStreamsPerRequest = 50
)

// Channel tokens. The token doubles as the stream name suffix and as the
// channel half of the subscription id.
const (
	ChannelTrades       = "@trade"
	ChannelOrderBookL1  = "@bookTicker"
	ChannelOrderBookL2  = "@depth@100ms"
	ChannelLiquidations = "@forceOrder"
	ChannelCandles      = "@kline_"
)

// klineIntervals covers every interval; Binance serves all of them.
var klineIntervals = map[model.Interval]string{
	model.Minute1:  "1m",
	model.Minute3:  "3m",
	model.Minute5:  "5m",
	model.Minute15: "15m",
	model.Minute30: "30m",
	model.Hour1:    "1h",
	model.Hour2:    "2h",
	model.Hour4:    "4h",
	model.Hour6:    "6h",
	model.Hour8:    "8h",
	model.Hour12:   "12h",
	model.Day1:     "1d",
	model.Day3:     "3d",
	model.Week1:    "1w",
	model.Month1:   "1M",
	model.Month3:   "3M",
}

type Connector struct {
	id  model.ExchangeID
	url string
}

func NewSpot() *Connector {
	return &Connector{id: model.BinanceSpot, url: SpotURL}
}

func NewFuturesUsd() *Connector {
	return &Connector{id: model.BinanceFuturesUsd, url: FuturesURL}
}

// WithURL returns a copy of the connector that dials url, e.g. a testnet.
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
		if suffix, ok := klineIntervals[sub.Kind.Interval]; ok {
			return ChannelCandles + suffix, nil
		}
	case model.KindOrderBooksL1:
		return ChannelOrderBookL1, nil
	case model.KindOrderBooksL2:
		return ChannelOrderBookL2, nil
	case model.KindLiquidations:
		if c.id == model.BinanceFuturesUsd {
			return ChannelLiquidations, nil
		}
	}
	return "", exchange.Unsupported(c.id, sub)
}

func (c *Connector) Market(inst model.Instrument) string {
	return symbols.Market(c.id, inst)
}

type subscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int      `json:"id"`
}

// Requests builds SUBSCRIBE frames such as
// {"method":"SUBSCRIBE","params":["btcusdt@kline_1m"],"id":1}.
func (c *Connector) Requests(subs []subscription.Subscription) ([][]byte, error) {
	streams := make([]string, 0, len(subs))
	for _, sub := range subs {
		channel, err := c.Channel(sub)
		if err != nil {
			return nil, err
		}
		streams = append(streams, strings.ToLower(c.Market(sub.Instrument))+channel)
	}

	var out [][]byte
	for i, chunk := range exchange.Chunk(streams, maxStreamsPerRequest) {
		b, err := json.Marshal(subscribeRequest{Method: "SUBSCRIBE", Params: chunk, ID: i + 1})
		if err != nil {
			return nil, fmt.Errorf("marshal binance subscribe: %w", err)
		}
		out = append(out, b)
	}
	return out, nil
}

// Heartbeat is disabled: Binance pings at the websocket layer and the
// transport answers with pongs.
func (c *Connector) Heartbeat() (time.Duration, []byte) { return 0, nil }

// RequestRate keeps under the 5 incoming messages per second limit.
func (c *Connector) RequestRate() (rate.Limit, int) { return rate.Limit(5), 1 }

func (c *Connector) NewTransformer(instruments subscription.Map[model.Instrument]) exchange.Transformer {
	return &transformer{id: c.id, instruments: instruments, now: time.Now}
}
