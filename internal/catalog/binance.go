package catalog

import (
	"context"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
)

const binanceTrading = "TRADING"

type binanceSpot struct {
	client *binance.Client
}

// NewBinanceSpot lists markets from the spot exchangeInfo endpoint. An empty
// baseURL keeps the SDK default.
func NewBinanceSpot(opts Options) Source {
	client := binance.NewClient("", "")
	client.HTTPClient = newHTTPClient(opts.Timeout, opts.UserAgent)
	if opts.BaseURL != "" {
		client.BaseURL = opts.BaseURL
	}
	return &binanceSpot{client: client}
}

func (s *binanceSpot) Listing(ctx context.Context) (Listing, error) {
	info, err := s.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, err
	}
	out := make(Listing, len(info.Symbols))
	for _, sym := range info.Symbols {
		out[sym.Symbol] = sym.Status
	}
	return out, nil
}

func (s *binanceSpot) Trading(status string) bool { return status == binanceTrading }

type binanceFutures struct {
	client *futures.Client
}

// NewBinanceFutures lists USD-M perpetual markets.
func NewBinanceFutures(opts Options) Source {
	client := futures.NewClient("", "")
	client.HTTPClient = newHTTPClient(opts.Timeout, opts.UserAgent)
	if opts.BaseURL != "" {
		client.SetApiEndpoint(opts.BaseURL)
	}
	return &binanceFutures{client: client}
}

func (s *binanceFutures) Listing(ctx context.Context) (Listing, error) {
	info, err := s.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, err
	}
	out := make(Listing, len(info.Symbols))
	for _, sym := range info.Symbols {
		if sym.ContractType != futures.ContractTypePerpetual {
			continue
		}
		out[sym.Symbol] = sym.Status
	}
	return out, nil
}

func (s *binanceFutures) Trading(status string) bool { return status == binanceTrading }
