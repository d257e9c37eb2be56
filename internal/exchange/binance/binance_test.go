package binance

import (
	"errors"
	"strings"
	"testing"
	"time"

	"cryptonorm/internal/exchange"
	"cryptonorm/internal/model"
	"cryptonorm/internal/subscription"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestTransformer(t *testing.T, c *Connector, subs ...subscription.Subscription) exchange.Transformer {
	t.Helper()
	meta, err := exchange.BuildMeta(c, subs)
	if err != nil {
		t.Fatalf("BuildMeta: %v", err)
	}
	tr := c.NewTransformer(meta.Instruments).(*transformer)
	tr.now = func() time.Time { return fixedNow }
	return tr
}

func TestCandleIntervalsTotalAndDistinct(t *testing.T) {
	c := NewSpot()
	seen := map[string]model.Interval{}
	for _, i := range model.Intervals() {
		sub := subscription.New(model.BinanceSpot, "btc", "usdt", model.Spot, model.Candles(i))
		channel, err := c.Channel(sub)
		if err != nil {
			t.Fatalf("interval %s unsupported: %v", i, err)
		}
		if other, dup := seen[channel]; dup {
			t.Fatalf("intervals %s and %s share channel %s", i, other, channel)
		}
		seen[channel] = i
		if channel != "@kline_"+i.String() {
			t.Errorf("interval %s mapped to %s", i, channel)
		}
	}
}

func TestChannel(t *testing.T) {
	tests := []struct {
		c    *Connector
		kind model.SubKind
		inst model.InstrumentKind
		want string
		ok   bool
	}{
		{NewSpot(), model.PublicTrades, model.Spot, "@trade", true},
		{NewSpot(), model.OrderBooksL1, model.Spot, "@bookTicker", true},
		{NewSpot(), model.OrderBooksL2, model.Spot, "@depth@100ms", true},
		{NewSpot(), model.Liquidations, model.Spot, "", false},
		{NewFuturesUsd(), model.Liquidations, model.FuturePerpetual, "@forceOrder", true},
		{NewFuturesUsd(), model.Candles(model.Month3), model.FuturePerpetual, "@kline_3M", true},
	}
	for _, tt := range tests {
		sub := subscription.New(tt.c.ID(), "btc", "usdt", tt.inst, tt.kind)
		got, err := tt.c.Channel(sub)
		if (err == nil) != tt.ok {
			t.Errorf("%s %s: err=%v", tt.c.ID(), tt.kind, err)
			continue
		}
		if err != nil && !errors.Is(err, model.ErrUnsupported) {
			t.Errorf("expected unsupported error, got %v", err)
		}
		if got != tt.want {
			t.Errorf("%s %s: got %q want %q", tt.c.ID(), tt.kind, got, tt.want)
		}
	}
}

func TestRequests(t *testing.T) {
	c := NewSpot()
	subs := []subscription.Subscription{
		subscription.New(model.BinanceSpot, "btc", "usdt", model.Spot, model.PublicTrades),
		subscription.New(model.BinanceSpot, "bnb", "btc", model.Spot, model.Candles(model.Minute1)),
	}
	frames, err := c.Requests(subs)
	if err != nil {
		t.Fatalf("Requests: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	want := `{"method":"SUBSCRIBE","params":["btcusdt@trade","bnbbtc@kline_1m"],"id":1}`
	if string(frames[0]) != want {
		t.Fatalf("got %s want %s", frames[0], want)
	}
}

func TestRequestsChunked(t *testing.T) {
	c := NewSpot()
	var subs []subscription.Subscription
	for i := 0; i < maxStreamsPerRequest+1; i++ {
		base := "c" + strings.Repeat("x", i)
		subs = append(subs, subscription.New(model.BinanceSpot, base, "usdt", model.Spot, model.PublicTrades))
	}
	frames, err := c.Requests(subs)
	if err != nil {
		t.Fatalf("Requests: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
}

func TestTransformCandle(t *testing.T) {
	sub := subscription.New(model.BinanceSpot, "bnb", "btc", model.Spot, model.Candles(model.Minute1))
	tr := newTestTransformer(t, NewSpot(), sub)

	frame := `{
	  "e": "kline", "E": 123456789, "s": "BNBBTC",
	  "k": {"t": 123400000, "T": 123460000, "s": "BNBBTC", "i": "1m", "f": 100, "L": 200,
	        "o": "0.0010", "c": "0.0020", "h": "0.0025", "l": "0.0015", "v": "1000", "n": 100,
	        "x": false, "q": "1.0000", "V": "500", "Q": "0.500", "B": "123456"}
	}`
	events, err := tr.Transform([]byte(frame))
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.Instrument != sub.Instrument {
		t.Fatalf("unexpected instrument %v", ev.Instrument)
	}
	if !ev.ExchangeTime.Equal(time.UnixMilli(123456789)) {
		t.Fatalf("unexpected exchange time %v", ev.ExchangeTime)
	}
	want := model.Candle{
		CloseTime:  time.UnixMilli(123460000).UTC(),
		Open:       0.001,
		High:       0.0025,
		Low:        0.0015,
		Close:      0.002,
		Volume:     1000,
		TradeCount: 100,
	}
	got, ok := ev.Kind.(model.Candle)
	if !ok {
		t.Fatalf("unexpected payload %T", ev.Kind)
	}
	if !got.CloseTime.Equal(want.CloseTime) || got.Open != want.Open || got.High != want.High ||
		got.Low != want.Low || got.Close != want.Close || got.Volume != want.Volume || got.TradeCount != want.TradeCount {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func TestTransformCandleOtherIntervalUnidentifiable(t *testing.T) {
	sub := subscription.New(model.BinanceSpot, "bnb", "btc", model.Spot, model.Candles(model.Minute5))
	tr := newTestTransformer(t, NewSpot(), sub)

	frame := `{"e":"kline","E":1,"s":"BNBBTC","k":{"T":2,"i":"1m","o":"1","c":"1","h":"1","l":"1","v":"1","n":1}}`
	_, err := tr.Transform([]byte(frame))
	var unidentifiable *model.UnidentifiableError
	if !errors.As(err, &unidentifiable) {
		t.Fatalf("expected unidentifiable error, got %v", err)
	}
	if unidentifiable.ID != "@kline_1m|BNBBTC" {
		t.Fatalf("unexpected id %q", unidentifiable.ID)
	}
}

func TestTransformTrade(t *testing.T) {
	sub := subscription.New(model.BinanceFuturesUsd, "eth", "usdt", model.FuturePerpetual, model.PublicTrades)
	tr := newTestTransformer(t, NewFuturesUsd(), sub)

	frame := `{"e":"trade","E":1649839266194,"T":1749354825200,"s":"ETHUSDT","t":1000000000,"p":"10000.19","q":"0.239000","X":"MARKET","m":true}`
	events, err := tr.Transform([]byte(frame))
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	trade := events[0].Kind.(model.PublicTrade)
	if trade.ID != "1000000000" || trade.Price != 10000.19 || trade.Amount != 0.239 || trade.Side != model.Sell {
		t.Fatalf("unexpected trade %+v", trade)
	}
	if !events[0].ExchangeTime.Equal(time.UnixMilli(1749354825200)) {
		t.Fatalf("unexpected exchange time %v", events[0].ExchangeTime)
	}
	if !events[0].ReceivedTime.Equal(fixedNow) {
		t.Fatalf("unexpected received time %v", events[0].ReceivedTime)
	}
}

func TestTransformBookTickerSpot(t *testing.T) {
	sub := subscription.New(model.BinanceSpot, "bnb", "usdt", model.Spot, model.OrderBooksL1)
	tr := newTestTransformer(t, NewSpot(), sub)

	frame := `{"u":400900217,"s":"BNBUSDT","b":"25.35190000","B":"31.21000000","a":"25.36520000","A":"40.66000000"}`
	events, err := tr.Transform([]byte(frame))
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	book := events[0].Kind.(model.OrderBookL1)
	if book.BestBid != (model.Level{Price: 25.3519, Amount: 31.21}) || book.BestAsk != (model.Level{Price: 25.3652, Amount: 40.66}) {
		t.Fatalf("unexpected book %+v", book)
	}
	if !events[0].ExchangeTime.Equal(fixedNow) {
		t.Fatalf("spot book ticker should use receive time")
	}
}

func TestTransformDepth(t *testing.T) {
	sub := subscription.New(model.BinanceFuturesUsd, "btc", "usdt", model.FuturePerpetual, model.OrderBooksL2)
	tr := newTestTransformer(t, NewFuturesUsd(), sub)

	frame := `{"e":"depthUpdate","E":123456789,"T":123456788,"s":"BTCUSDT","U":157,"u":160,"pu":149,
	"b":[["0.0024","10"]],"a":[["0.0026","100"],["0.0027","0"]]}`
	events, err := tr.Transform([]byte(frame))
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	delta := events[0].Kind.(model.OrderBookDelta)
	if delta.Sequence != 160 || len(delta.Bids) != 1 || len(delta.Asks) != 2 || delta.Snapshot {
		t.Fatalf("unexpected delta %+v", delta)
	}
	if delta.Asks[1].Amount != 0 {
		t.Fatalf("expected removal level")
	}
	if !events[0].ExchangeTime.Equal(time.UnixMilli(123456788)) {
		t.Fatalf("expected transaction time, got %v", events[0].ExchangeTime)
	}
}

func TestTransformLiquidation(t *testing.T) {
	sub := subscription.New(model.BinanceFuturesUsd, "btc", "usdt", model.FuturePerpetual, model.Liquidations)
	tr := newTestTransformer(t, NewFuturesUsd(), sub)

	frame := `{"e":"forceOrder","E":1568014460893,"o":{"s":"BTCUSDT","S":"SELL","o":"LIMIT","f":"IOC",
	"q":"0.014","p":"9910","ap":"9910","X":"FILLED","l":"0.014","z":"0.014","T":1568014460893}}`
	events, err := tr.Transform([]byte(frame))
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	liq := events[0].Kind.(model.Liquidation)
	if liq.Side != model.Sell || liq.Price != 9910 || liq.Quantity != 0.014 {
		t.Fatalf("unexpected liquidation %+v", liq)
	}
}

func TestTransformControlFrames(t *testing.T) {
	sub := subscription.New(model.BinanceSpot, "btc", "usdt", model.Spot, model.PublicTrades)
	tr := newTestTransformer(t, NewSpot(), sub)

	events, err := tr.Transform([]byte(`{"result":null,"id":1}`))
	if err != nil || len(events) != 0 {
		t.Fatalf("ack should be ignored: %v %v", events, err)
	}

	_, err = tr.Transform([]byte(`{"error":{"code":2,"msg":"Invalid request"},"id":1}`))
	var rejected *exchange.SubscriptionRejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected rejection, got %v", err)
	}
}

func TestTransformMalformed(t *testing.T) {
	sub := subscription.New(model.BinanceSpot, "btc", "usdt", model.Spot, model.PublicTrades)
	tr := newTestTransformer(t, NewSpot(), sub)

	inputs := []string{
		`not json`,
		`{"e":"trade","s":"BTCUSDT"}`,
		`{"e":"unknown","s":"BTCUSDT"}`,
		`{"e":"trade","E":1,"T":1,"s":"BTCUSDT","t":1,"p":"abc","q":"1","m":true}`,
	}
	for _, in := range inputs {
		_, err := tr.Transform([]byte(in))
		if !errors.Is(err, model.ErrDecode) {
			t.Errorf("%s: expected decode error, got %v", in, err)
		}
	}
}

func TestTransformIdempotent(t *testing.T) {
	sub := subscription.New(model.BinanceSpot, "btc", "usdt", model.Spot, model.PublicTrades)
	tr := newTestTransformer(t, NewSpot(), sub)

	frame := []byte(`{"e":"trade","E":1,"T":2,"s":"BTCUSDT","t":7,"p":"1.5","q":"2","m":false}`)
	first, err := tr.Transform(frame)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	second, err := tr.Transform(frame)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if first[0] != second[0] {
		t.Fatalf("decoding the same frame twice differs: %+v %+v", first[0], second[0])
	}
}

func TestIDRoundTrip(t *testing.T) {
	c := NewFuturesUsd()
	kinds := []model.SubKind{model.PublicTrades, model.OrderBooksL1, model.OrderBooksL2, model.Liquidations, model.Candles(model.Hour4)}
	for _, kind := range kinds {
		sub := subscription.New(model.BinanceFuturesUsd, "sol", "usdt", model.FuturePerpetual, kind)
		meta, err := exchange.BuildMeta(c, []subscription.Subscription{sub})
		if err != nil {
			t.Fatalf("BuildMeta(%s): %v", kind, err)
		}
		channel, _ := c.Channel(sub)
		inst, err := meta.Instruments.Find(subscription.NewID(channel, "SOLUSDT"))
		if err != nil || inst != sub.Instrument {
			t.Fatalf("%s: id does not round trip: %v", kind, err)
		}
	}
}
