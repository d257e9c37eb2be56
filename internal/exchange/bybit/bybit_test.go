package bybit

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"cryptonorm/internal/exchange"
	"cryptonorm/internal/model"
	"cryptonorm/internal/subscription"
)

func newTestTransformer(t *testing.T, c *Connector, subs ...subscription.Subscription) exchange.Transformer {
	t.Helper()
	meta, err := exchange.BuildMeta(c, subs)
	if err != nil {
		t.Fatalf("BuildMeta: %v", err)
	}
	return c.NewTransformer(meta.Instruments)
}

func TestCandleIntervalTable(t *testing.T) {
	c := NewPerpetualsUsd()
	unsupported := map[model.Interval]bool{model.Hour8: true, model.Day3: true, model.Month3: true}
	seen := map[string]bool{}
	for _, i := range model.Intervals() {
		sub := subscription.New(model.BybitPerpetualsUsd, "btc", "usdt", model.FuturePerpetual, model.Candles(i))
		channel, err := c.Channel(sub)
		if unsupported[i] {
			if !errors.Is(err, model.ErrUnsupported) {
				t.Errorf("%s: expected unsupported, got %q %v", i, channel, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: %v", i, err)
		}
		if seen[channel] {
			t.Fatalf("%s: duplicate channel %s", i, channel)
		}
		seen[channel] = true
	}
}

func TestLiquidationsPerpOnly(t *testing.T) {
	spot := subscription.New(model.BybitSpot, "btc", "usdt", model.Spot, model.Liquidations)
	if _, err := NewSpot().Channel(spot); !errors.Is(err, model.ErrUnsupported) {
		t.Fatalf("expected unsupported for spot liquidations, got %v", err)
	}
}

func TestRequests(t *testing.T) {
	c := NewSpot()
	var subs []subscription.Subscription
	for _, base := range []string{"btc", "eth", "sol", "xrp", "ada", "dot", "ltc", "bch", "trx", "link", "atom"} {
		subs = append(subs, subscription.New(model.BybitSpot, base, "usdt", model.Spot, model.PublicTrades))
	}
	frames, err := c.Requests(subs)
	if err != nil {
		t.Fatalf("Requests: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	var req subscribeRequest
	if err := json.Unmarshal(frames[0], &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if req.Op != "subscribe" || req.ReqID == "" || len(req.Args) != 10 || req.Args[0] != "publicTrade.BTCUSDT" {
		t.Fatalf("unexpected request %+v", req)
	}
}

func TestTransformTrades(t *testing.T) {
	sub := subscription.New(model.BybitPerpetualsUsd, "btc", "usdt", model.FuturePerpetual, model.PublicTrades)
	tr := newTestTransformer(t, NewPerpetualsUsd(), sub)

	frame := `{"topic":"publicTrade.BTCUSDT","type":"snapshot","ts":1672304486868,"data":[
	{"T":1672304486865,"s":"BTCUSDT","S":"Buy","v":"0.001","p":"16578.50","L":"PlusTick","i":"a1","BT":false},
	{"T":1672304486866,"s":"BTCUSDT","S":"Sell","v":"0.002","p":"16578.00","L":"MinusTick","i":"a2","BT":false}]}`
	events, err := tr.Transform([]byte(frame))
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	first := events[0].Kind.(model.PublicTrade)
	second := events[1].Kind.(model.PublicTrade)
	if first.ID != "a1" || first.Side != model.Buy || first.Price != 16578.5 || first.Amount != 0.001 {
		t.Fatalf("unexpected trade %+v", first)
	}
	if second.Side != model.Sell {
		t.Fatalf("unexpected side %v", second.Side)
	}
	if !events[1].ExchangeTime.Equal(time.UnixMilli(1672304486866)) {
		t.Fatalf("unexpected exchange time %v", events[1].ExchangeTime)
	}
}

func TestTransformCandle(t *testing.T) {
	sub := subscription.New(model.BybitSpot, "btc", "usdt", model.Spot, model.Candles(model.Minute5))
	tr := newTestTransformer(t, NewSpot(), sub)

	frame := `{"topic":"kline.5.BTCUSDT","data":[{"start":1672324800000,"end":1672325099999,"interval":"5",
	"open":"16649.5","close":"16677","high":"16677","low":"16608","volume":"2.081","turnover":"34666.4005",
	"confirm":false,"timestamp":1672324988882}],"ts":1672324988882,"type":"snapshot"}`
	events, err := tr.Transform([]byte(frame))
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	c := events[0].Kind.(model.Candle)
	if c.Open != 16649.5 || c.Close != 16677 || c.Low != 16608 || c.Volume != 2.081 {
		t.Fatalf("unexpected candle %+v", c)
	}
	if !c.CloseTime.Equal(time.UnixMilli(1672325099999)) {
		t.Fatalf("unexpected close time %v", c.CloseTime)
	}
}

func TestTransformOrderBooks(t *testing.T) {
	l1 := subscription.New(model.BybitPerpetualsUsd, "btc", "usdt", model.FuturePerpetual, model.OrderBooksL1)
	l2 := subscription.New(model.BybitPerpetualsUsd, "eth", "usdt", model.FuturePerpetual, model.OrderBooksL2)
	tr := newTestTransformer(t, NewPerpetualsUsd(), l1, l2)

	events, err := tr.Transform([]byte(`{"topic":"orderbook.1.BTCUSDT","type":"snapshot","ts":1672304484978,
	"data":{"s":"BTCUSDT","b":[["16493.50","0.006"]],"a":[["16611.00","0.029"]],"u":18521288,"seq":7961638724}}`))
	if err != nil {
		t.Fatalf("Transform l1: %v", err)
	}
	book := events[0].Kind.(model.OrderBookL1)
	if book.BestBid.Price != 16493.5 || book.BestAsk.Amount != 0.029 {
		t.Fatalf("unexpected l1 %+v", book)
	}

	events, err = tr.Transform([]byte(`{"topic":"orderbook.50.ETHUSDT","type":"delta","ts":1672304484978,
	"data":{"s":"ETHUSDT","b":[["1200.5","0"]],"a":[],"u":42,"seq":7961638725}}`))
	if err != nil {
		t.Fatalf("Transform l2: %v", err)
	}
	delta := events[0].Kind.(model.OrderBookDelta)
	if delta.Snapshot || delta.Sequence != 42 || len(delta.Bids) != 1 || len(delta.Asks) != 0 {
		t.Fatalf("unexpected l2 %+v", delta)
	}
}

func TestTransformLiquidation(t *testing.T) {
	sub := subscription.New(model.BybitPerpetualsUsd, "rose", "usdt", model.FuturePerpetual, model.Liquidations)
	tr := newTestTransformer(t, NewPerpetualsUsd(), sub)

	events, err := tr.Transform([]byte(`{"topic":"allLiquidation.ROSEUSDT","type":"snapshot","ts":1739502303204,
	"data":[{"T":1739502302929,"s":"ROSEUSDT","S":"Sell","v":"20000","p":"0.04499"}]}`))
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	liq := events[0].Kind.(model.Liquidation)
	if liq.Side != model.Sell || liq.Quantity != 20000 || liq.Price != 0.04499 {
		t.Fatalf("unexpected liquidation %+v", liq)
	}
}

func TestTransformControlFrames(t *testing.T) {
	sub := subscription.New(model.BybitSpot, "btc", "usdt", model.Spot, model.PublicTrades)
	tr := newTestTransformer(t, NewSpot(), sub)

	for _, frame := range []string{
		`{"success":true,"ret_msg":"subscribe","conn_id":"c1","req_id":"r1","op":"subscribe"}`,
		`{"success":true,"ret_msg":"pong","conn_id":"c1","op":"ping"}`,
		`{"op":"pong","args":["1672304486868"],"conn_id":"c1"}`,
	} {
		events, err := tr.Transform([]byte(frame))
		if err != nil || len(events) != 0 {
			t.Fatalf("%s: expected ignore, got %v %v", frame, events, err)
		}
	}

	_, err := tr.Transform([]byte(`{"success":false,"ret_msg":"error:handler not found,topic:foo","op":"subscribe"}`))
	var rejected *exchange.SubscriptionRejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected rejection, got %v", err)
	}
}

func TestTransformUnknownTopic(t *testing.T) {
	sub := subscription.New(model.BybitSpot, "btc", "usdt", model.Spot, model.PublicTrades)
	tr := newTestTransformer(t, NewSpot(), sub)

	_, err := tr.Transform([]byte(`{"topic":"publicTrade.ETHUSDT","ts":1,"data":[]}`))
	if !errors.Is(err, model.ErrUnidentifiable) {
		t.Fatalf("expected unidentifiable, got %v", err)
	}
}

func TestSplitTopic(t *testing.T) {
	tests := []struct {
		topic   string
		channel string
		market  string
		ok      bool
	}{
		{"kline.5.BTCUSDT", "kline.5.", "BTCUSDT", true},
		{"publicTrade.BTCUSDT", "publicTrade.", "BTCUSDT", true},
		{"orderbook.50.ETHUSDT", "orderbook.50.", "ETHUSDT", true},
		{"nodot", "", "", false},
		{"trailing.", "", "", false},
	}
	for _, tt := range tests {
		channel, market, ok := splitTopic(tt.topic)
		if channel != tt.channel || market != tt.market || ok != tt.ok {
			t.Errorf("splitTopic(%q)=%q,%q,%v", tt.topic, channel, market, ok)
		}
	}
}

func TestHeartbeat(t *testing.T) {
	interval, ping := NewSpot().Heartbeat()
	if interval != 20*time.Second {
		t.Fatalf("unexpected interval %v", interval)
	}
	var frame struct {
		Op string `json:"op"`
	}
	if err := json.Unmarshal(ping, &frame); err != nil || frame.Op != "ping" {
		t.Fatalf("unexpected ping frame %s: %v", ping, err)
	}
}
