package symbols

import (
	"strings"

	"cryptonorm/internal/model"
)

// Market returns the exchange specific market spelling of an instrument, as
// echoed back by the venue in its stream messages.
//
//	binance, bybit: BTCUSDT
//	okx:            BTC-USDT, BTC-USDT-SWAP for perpetuals
//	coinbase:       BTC-USD
//	kraken:         XBT/USD
func Market(exchange model.ExchangeID, inst model.Instrument) string {
	base := strings.ToUpper(inst.Base)
	quote := strings.ToUpper(inst.Quote)
	switch exchange {
	case model.Okx:
		if inst.Kind == model.FuturePerpetual {
			return base + "-" + quote + "-SWAP"
		}
		return base + "-" + quote
	case model.Coinbase:
		return base + "-" + quote
	case model.Kraken:
		return KrakenAsset(base) + "/" + KrakenAsset(quote)
	default:
		return base + quote
	}
}

// ToBinance converts various exchange-specific symbol formats to Binance style.
// It ensures symbols are uppercase without separators and uses BTC instead of XBT.
// It is used to label logs and metrics with one symbol spelling across venues.
func ToBinance(exchange, sym string) string {
	sym = strings.ToUpper(sym)
	switch strings.ToLower(exchange) {
	case "binance":
		switch sym {
		case "1000BONKUSDT":
			sym = "BONKUSDT"
		case "1000PEPEUSDT":
			sym = "PEPEUSDT"
		case "1000SHIBUSDT":
			sym = "SHIBUSDT"
		}
	case "bybit":
		switch sym {
		case "1000BONKUSDT":
			sym = "BONKUSDT"
		case "1000PEPEUSDT":
			sym = "PEPEUSDT"
		case "SHIB1000USDT":
			sym = "SHIBUSDT"
		}
	case "coinbase":
		sym = strings.ReplaceAll(sym, "-", "")
	case "kraken":
		parts := strings.FieldsFunc(sym, func(r rune) bool { return r == '/' || r == '-' })
		for i := range parts {
			parts[i] = NormalizeKrakenAsset(parts[i])
		}
		sym = strings.Join(parts, "")
	case "okx":
		sym = strings.TrimSuffix(sym, "-SWAP")
		sym = strings.ReplaceAll(sym, "-", "")
	default:
		// others already use the desired format
	}
	return sym
}
