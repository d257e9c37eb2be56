// Package registry resolves an exchange id to its connector.
package registry

import (
	"cryptonorm/internal/exchange"
	"cryptonorm/internal/exchange/binance"
	"cryptonorm/internal/exchange/bybit"
	"cryptonorm/internal/exchange/coinbase"
	"cryptonorm/internal/exchange/kraken"
	"cryptonorm/internal/exchange/okx"
	"cryptonorm/internal/model"
)

// OkxBusinessKey overrides the OKX endpoint that serves candles.
const OkxBusinessKey = "okx_business"

// Registry hands out connectors, optionally pointed at overridden endpoints.
// Keys of Endpoints are exchange ids plus OkxBusinessKey.
type Registry struct {
	Endpoints map[string]string
}

// Default resolves every exchange to its production endpoint.
var Default = &Registry{}

func New(endpoints map[string]string) *Registry {
	return &Registry{Endpoints: endpoints}
}

// Lookup returns the connector for id or an *model.UnsupportedError.
func (r *Registry) Lookup(id model.ExchangeID) (exchange.Connector, error) {
	url := r.endpoint(string(id))
	switch id {
	case model.BinanceSpot:
		return binance.NewSpot().WithURL(url), nil
	case model.BinanceFuturesUsd:
		return binance.NewFuturesUsd().WithURL(url), nil
	case model.BybitSpot:
		return bybit.NewSpot().WithURL(url), nil
	case model.BybitPerpetualsUsd:
		return bybit.NewPerpetualsUsd().WithURL(url), nil
	case model.Okx:
		return okx.New().WithURLs(url, r.endpoint(OkxBusinessKey)), nil
	case model.Coinbase:
		return coinbase.New().WithURL(url), nil
	case model.Kraken:
		return kraken.New().WithURL(url), nil
	}
	return nil, &model.UnsupportedError{Entity: "registry", Item: string(id)}
}

func (r *Registry) endpoint(key string) string {
	if r == nil {
		return ""
	}
	return r.Endpoints[key]
}
