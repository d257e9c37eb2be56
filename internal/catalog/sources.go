package catalog

import (
	"time"

	"cryptonorm/config"
	"cryptonorm/internal/model"
)

// Options configures the REST client of one source.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// FromConfig builds the sources for every exchange with a REST listing.
// cfg.URLs overrides base URLs by exchange id.
func FromConfig(cfg config.CatalogConfig, userAgent string) *Catalog {
	opts := func(id model.ExchangeID) Options {
		return Options{BaseURL: cfg.URLs[id.String()], Timeout: cfg.Timeout, UserAgent: userAgent}
	}
	return New(map[model.ExchangeID]Source{
		model.BinanceSpot:        NewBinanceSpot(opts(model.BinanceSpot)),
		model.BinanceFuturesUsd:  NewBinanceFutures(opts(model.BinanceFuturesUsd)),
		model.BybitSpot:          NewBybit("spot", opts(model.BybitSpot)),
		model.BybitPerpetualsUsd: NewBybit("linear", opts(model.BybitPerpetualsUsd)),
	})
}
