package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cryptonorm/config"
	"cryptonorm/internal/model"
	"cryptonorm/internal/subscription"
)

type fakeSource struct {
	listing Listing
	err     error
	calls   int
}

func (f *fakeSource) Listing(context.Context) (Listing, error) {
	f.calls++
	return f.listing, f.err
}

func (f *fakeSource) Trading(status string) bool { return status == "open" }

func TestVerify(t *testing.T) {
	src := &fakeSource{listing: Listing{"BTCUSDT": "open", "LUNAUSDT": "halted"}}
	c := New(map[model.ExchangeID]Source{model.BinanceSpot: src})

	subs := []subscription.Subscription{
		subscription.New(model.BinanceSpot, "btc", "usdt", model.Spot, model.PublicTrades),
		subscription.New(model.BinanceSpot, "btc", "usdt", model.Spot, model.OrderBooksL1),
		subscription.New(model.Kraken, "btc", "usd", model.Spot, model.PublicTrades),
	}
	if err := c.Verify(context.Background(), subs); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if src.calls != 1 {
		t.Fatalf("listing fetched %d times", src.calls)
	}

	subs = append(subs,
		subscription.New(model.BinanceSpot, "luna", "usdt", model.Spot, model.PublicTrades),
		subscription.New(model.BinanceSpot, "xyz", "usdt", model.Spot, model.PublicTrades),
	)
	err := c.Verify(context.Background(), subs)
	if !errors.Is(err, ErrNotListed) {
		t.Fatalf("expected ErrNotListed, got %v", err)
	}
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok || len(joined.Unwrap()) != 2 {
		t.Fatalf("expected 2 joined errors, got %v", err)
	}
	var notListed *NotListedError
	if !errors.As(err, &notListed) || notListed.Market != "LUNAUSDT" || notListed.Status != "halted" {
		t.Fatalf("unexpected first error %+v", notListed)
	}
}

func TestVerifySourceError(t *testing.T) {
	c := New(map[model.ExchangeID]Source{model.BybitSpot: &fakeSource{err: errors.New("boom")}})
	err := c.Verify(context.Background(), []subscription.Subscription{
		subscription.New(model.BybitSpot, "btc", "usdt", model.Spot, model.PublicTrades),
	})
	if err == nil || errors.Is(err, ErrNotListed) {
		t.Fatalf("expected fetch error, got %v", err)
	}
}

func newListingServer(t *testing.T, body string) (*httptest.Server, *string) {
	t.Helper()
	agent := new(string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*agent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, agent
}

func TestBinanceSpotListing(t *testing.T) {
	srv, agent := newListingServer(t, `{"timezone":"UTC","serverTime":1,"symbols":[
		{"symbol":"BTCUSDT","status":"TRADING","baseAsset":"BTC","quoteAsset":"USDT"},
		{"symbol":"LUNAUSDT","status":"BREAK","baseAsset":"LUNA","quoteAsset":"USDT"}]}`)

	src := NewBinanceSpot(Options{BaseURL: srv.URL, Timeout: time.Second, UserAgent: "cryptonorm-test"})
	listing, err := src.Listing(context.Background())
	if err != nil {
		t.Fatalf("Listing: %v", err)
	}
	if len(listing) != 2 || !src.Trading(listing["BTCUSDT"]) || src.Trading(listing["LUNAUSDT"]) {
		t.Fatalf("unexpected listing %v", listing)
	}
	if *agent != "cryptonorm-test" {
		t.Fatalf("unexpected user agent %q", *agent)
	}
}

func TestBybitListing(t *testing.T) {
	srv, _ := newListingServer(t, `{"retCode":0,"retMsg":"OK","result":{"category":"linear","nextPageCursor":"",
		"list":[{"symbol":"BTCUSDT","status":"Trading"},{"symbol":"ETHUSDT","status":"PreLaunch"}]},"time":1}`)

	src := NewBybit("linear", Options{BaseURL: srv.URL, Timeout: time.Second})
	listing, err := src.Listing(context.Background())
	if err != nil {
		t.Fatalf("Listing: %v", err)
	}
	if !src.Trading(listing["BTCUSDT"]) || src.Trading(listing["ETHUSDT"]) {
		t.Fatalf("unexpected listing %v", listing)
	}
}

func TestFromConfig(t *testing.T) {
	c := FromConfig(config.CatalogConfig{Timeout: time.Second}, "")
	for _, id := range []model.ExchangeID{model.BinanceSpot, model.BinanceFuturesUsd, model.BybitSpot, model.BybitPerpetualsUsd} {
		if _, ok := c.sources[id]; !ok {
			t.Fatalf("missing source for %s", id)
		}
	}
	if _, ok := c.sources[model.Kraken]; ok {
		t.Fatalf("kraken has no listing source")
	}
}
