package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	bybit "github.com/bybit-exchange/bybit.go.api"
)

const bybitTrading = "Trading"

type bybitSource struct {
	client   *bybit.Client
	category string
}

// NewBybit lists markets of one v5 category, "spot" or "linear".
func NewBybit(category string, opts Options) Source {
	var clientOpts []bybit.ClientOption
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, bybit.WithBaseURL(opts.BaseURL))
	}
	client := bybit.NewBybitHttpClient("", "", clientOpts...)
	client.HTTPClient = newHTTPClient(opts.Timeout, opts.UserAgent)
	return &bybitSource{client: client, category: category}
}

type bybitInstruments struct {
	NextPageCursor string `json:"nextPageCursor"`
	List           []struct {
		Symbol string `json:"symbol"`
		Status string `json:"status"`
	} `json:"list"`
}

func (s *bybitSource) Listing(ctx context.Context) (Listing, error) {
	out := Listing{}
	cursor := ""
	for {
		params := map[string]interface{}{"category": s.category, "limit": 1000}
		if cursor != "" {
			params["cursor"] = cursor
		}
		resp, err := s.client.NewUtaBybitServiceWithParams(params).GetInstrumentInfo(ctx)
		if err != nil {
			return nil, err
		}
		if resp.RetCode != 0 {
			return nil, fmt.Errorf("bybit instruments-info: %d %s", resp.RetCode, resp.RetMsg)
		}
		payload, err := json.Marshal(resp.Result)
		if err != nil {
			return nil, err
		}
		var page bybitInstruments
		if err := json.Unmarshal(payload, &page); err != nil {
			return nil, fmt.Errorf("decode bybit instruments: %w", err)
		}
		for _, inst := range page.List {
			out[inst.Symbol] = inst.Status
		}
		if page.NextPageCursor == "" || page.NextPageCursor == cursor {
			return out, nil
		}
		cursor = page.NextPageCursor
	}
}

func (s *bybitSource) Trading(status string) bool { return status == bybitTrading }
