// Package coinbase implements the Coinbase Exchange websocket feed.
package coinbase

import (
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"cryptonorm/internal/exchange"
	"cryptonorm/internal/model"
	"cryptonorm/internal/subscription"
	"cryptonorm/internal/symbols"
)

const URL = "wss://ws-feed.exchange.coinbase.com"

const (
	ChannelTrades      = "matches"
	ChannelOrderBookL1 = "ticker"
	ChannelOrderBookL2 = "level2_batch"
)

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

func (c *Connector) ID() model.ExchangeID { return model.Coinbase }

func (c *Connector) URL([]subscription.Subscription) (string, error) { return c.url, nil }

// Channel rejects candles and liquidations, which the feed does not publish.
func (c *Connector) Channel(sub subscription.Subscription) (string, error) {
	switch sub.Kind.Type {
	case model.KindPublicTrades:
		return ChannelTrades, nil
	case model.KindOrderBooksL1:
		return ChannelOrderBookL1, nil
	case model.KindOrderBooksL2:
		return ChannelOrderBookL2, nil
	}
	return "", exchange.Unsupported(model.Coinbase, sub)
}

func (c *Connector) Market(inst model.Instrument) string {
	return symbols.Market(model.Coinbase, inst)
}

type channelRequest struct {
	Name       string   `json:"name"`
	ProductIDs []string `json:"product_ids"`
}

type subscribeRequest struct {
	Type     string           `json:"type"`
	Channels []channelRequest `json:"channels"`
}

// Requests builds one frame listing every channel with its products:
// {"type":"subscribe","channels":[{"name":"matches","product_ids":["BTC-USD"]}]}.
func (c *Connector) Requests(subs []subscription.Subscription) ([][]byte, error) {
	var order []string
	products := map[string][]string{}
	for _, sub := range subs {
		channel, err := c.Channel(sub)
		if err != nil {
			return nil, err
		}
		if _, ok := products[channel]; !ok {
			order = append(order, channel)
		}
		products[channel] = append(products[channel], c.Market(sub.Instrument))
	}

	req := subscribeRequest{Type: "subscribe"}
	for _, name := range order {
		req.Channels = append(req.Channels, channelRequest{Name: name, ProductIDs: products[name]})
	}
	b, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal coinbase subscribe: %w", err)
	}
	return [][]byte{b}, nil
}

func (c *Connector) Heartbeat() (time.Duration, []byte) { return 0, nil }

func (c *Connector) RequestRate() (rate.Limit, int) { return rate.Limit(5), 1 }

func (c *Connector) NewTransformer(instruments subscription.Map[model.Instrument]) exchange.Transformer {
	return &transformer{instruments: instruments, now: time.Now}
}
