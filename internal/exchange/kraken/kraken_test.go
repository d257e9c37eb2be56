package kraken

import (
	"errors"
	"testing"
	"time"

	"cryptonorm/internal/exchange"
	"cryptonorm/internal/model"
	"cryptonorm/internal/subscription"
)

func newTestTransformer(t *testing.T, subs ...subscription.Subscription) exchange.Transformer {
	t.Helper()
	meta, err := exchange.BuildMeta(New(), subs)
	if err != nil {
		t.Fatalf("BuildMeta: %v", err)
	}
	return New().NewTransformer(meta.Instruments)
}

func TestChannel(t *testing.T) {
	c := New()
	tests := []struct {
		kind model.SubKind
		want string
		ok   bool
	}{
		{model.PublicTrades, "trade", true},
		{model.OrderBooksL1, "spread", true},
		{model.OrderBooksL2, "book-10", true},
		{model.Candles(model.Minute5), "ohlc-5", true},
		{model.Candles(model.Week1), "ohlc-10080", true},
		{model.Candles(model.Minute3), "", false},
		{model.Liquidations, "", false},
	}
	for _, tt := range tests {
		got, err := c.Channel(subscription.New(model.Kraken, "btc", "usd", model.Spot, tt.kind))
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("%s: got %q err=%v", tt.kind, got, err)
		}
	}
}

func TestRequests(t *testing.T) {
	subs := []subscription.Subscription{
		subscription.New(model.Kraken, "btc", "usd", model.Spot, model.Candles(model.Minute5)),
		subscription.New(model.Kraken, "eth", "usd", model.Spot, model.Candles(model.Minute5)),
		subscription.New(model.Kraken, "btc", "usd", model.Spot, model.OrderBooksL2),
	}
	frames, err := New().Requests(subs)
	if err != nil {
		t.Fatalf("Requests: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	want := `{"event":"subscribe","pair":["XBT/USD","ETH/USD"],"subscription":{"name":"ohlc","interval":5}}`
	if string(frames[0]) != want {
		t.Fatalf("got %s want %s", frames[0], want)
	}
	want = `{"event":"subscribe","pair":["XBT/USD"],"subscription":{"name":"book","depth":10}}`
	if string(frames[1]) != want {
		t.Fatalf("got %s want %s", frames[1], want)
	}
}

func TestTransformTrades(t *testing.T) {
	tr := newTestTransformer(t, subscription.New(model.Kraken, "btc", "usd", model.Spot, model.PublicTrades))

	frame := `[0,[["5541.20000","0.15850568","1534614057.321597","s","l",""],["6060.00000","0.02455000","1534614057.324998","b","l",""]],"trade","XBT/USD"]`
	events, err := tr.Transform([]byte(frame))
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	first := events[0].Kind.(model.PublicTrade)
	if first.Price != 5541.2 || first.Side != model.Sell || first.ID == "" {
		t.Fatalf("unexpected trade %+v", first)
	}
	want := time.Unix(1534614057, 321597000).UTC()
	if !events[0].ExchangeTime.Equal(want) {
		t.Fatalf("unexpected time %v want %v", events[0].ExchangeTime, want)
	}
	if events[1].Kind.(model.PublicTrade).Side != model.Buy {
		t.Fatalf("unexpected side for second trade")
	}
}

func TestTransformOHLC(t *testing.T) {
	tr := newTestTransformer(t, subscription.New(model.Kraken, "btc", "usd", model.Spot, model.Candles(model.Minute5)))

	frame := `[42,["1542057314.748456","1542057360.435743","3586.70000","3586.70000","3586.60000","3586.60000","3586.68894","0.03373000",2],"ohlc-5","XBT/USD"]`
	events, err := tr.Transform([]byte(frame))
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	c := events[0].Kind.(model.Candle)
	if c.Open != 3586.7 || c.Low != 3586.6 || c.Volume != 0.03373 || c.TradeCount != 2 {
		t.Fatalf("unexpected candle %+v", c)
	}
	if !c.CloseTime.Equal(time.Unix(1542057360, 435743000)) {
		t.Fatalf("unexpected close time %v", c.CloseTime)
	}

	_, err = tr.Transform([]byte(`[42,["1","2","1","1","1","1","1","1",2],"ohlc-1","XBT/USD"]`))
	if !errors.Is(err, model.ErrUnidentifiable) {
		t.Fatalf("expected unidentifiable for another interval, got %v", err)
	}
}

func TestTransformSpread(t *testing.T) {
	tr := newTestTransformer(t, subscription.New(model.Kraken, "btc", "usd", model.Spot, model.OrderBooksL1))

	events, err := tr.Transform([]byte(`[0,["5698.40000","5700.00000","1542057299.545897","1.01234567","0.98765432"],"spread","XBT/USD"]`))
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	book := events[0].Kind.(model.OrderBookL1)
	if book.BestBid != (model.Level{Price: 5698.4, Amount: 1.01234567}) || book.BestAsk != (model.Level{Price: 5700, Amount: 0.98765432}) {
		t.Fatalf("unexpected spread %+v", book)
	}
}

func TestTransformBook(t *testing.T) {
	tr := newTestTransformer(t, subscription.New(model.Kraken, "btc", "usd", model.Spot, model.OrderBooksL2))

	events, err := tr.Transform([]byte(`[0,{"as":[["5541.30000","2.50700000","1534614248.123678"]],"bs":[["5541.20000","1.52900000","1534614248.765567"]]},"book-10","XBT/USD"]`))
	if err != nil {
		t.Fatalf("Transform snapshot: %v", err)
	}
	snap := events[0].Kind.(model.OrderBookDelta)
	if !snap.Snapshot || len(snap.Asks) != 1 || len(snap.Bids) != 1 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if !events[0].ExchangeTime.Equal(time.Unix(1534614248, 765567000)) {
		t.Fatalf("unexpected time %v", events[0].ExchangeTime)
	}

	events, err = tr.Transform([]byte(`[1234,{"a":[["5541.30000","0.00000000","1534614335.345903"]]},{"b":[["5541.20000","3.0","1534614335.345904"]]},"book-10","XBT/USD"]`))
	if err != nil {
		t.Fatalf("Transform update: %v", err)
	}
	update := events[0].Kind.(model.OrderBookDelta)
	if update.Snapshot || len(update.Asks) != 1 || len(update.Bids) != 1 || update.Asks[0].Amount != 0 {
		t.Fatalf("unexpected update %+v", update)
	}
}

func TestTransformEvents(t *testing.T) {
	tr := newTestTransformer(t, subscription.New(model.Kraken, "btc", "usd", model.Spot, model.PublicTrades))

	for _, frame := range []string{
		`{"event":"heartbeat"}`,
		`{"connectionID":8628615390848610000,"event":"systemStatus","status":"online","version":"1.0.0"}`,
		`{"channelID":10001,"channelName":"trade","event":"subscriptionStatus","pair":"XBT/USD","status":"subscribed","subscription":{"name":"trade"}}`,
	} {
		events, err := tr.Transform([]byte(frame))
		if err != nil || len(events) != 0 {
			t.Fatalf("%s: expected ignore, got %v %v", frame, events, err)
		}
	}

	_, err := tr.Transform([]byte(`{"errorMessage":"Currency pair not supported XBT/ABC","event":"subscriptionStatus","pair":"XBT/ABC","status":"error","subscription":{"name":"trade"}}`))
	var rejected *exchange.SubscriptionRejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected rejection, got %v", err)
	}
}
