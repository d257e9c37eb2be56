package symbols

import "strings"

var krakenAssets = map[string]string{
	"BTC":  "XBT",
	"DOGE": "XDG",
}

// KrakenAsset converts a common asset code to the code Kraken uses on its
// websocket feed.
// Examples:
//
//	BTC  -> XBT
//	DOGE -> XDG
//	ETH  -> ETH
func KrakenAsset(asset string) string {
	asset = strings.ToUpper(strings.TrimSpace(asset))
	if alias, ok := krakenAssets[asset]; ok {
		return alias
	}
	return asset
}

// NormalizeKrakenAsset maps a Kraken asset code back to its common form.
func NormalizeKrakenAsset(asset string) string {
	asset = strings.ToUpper(strings.TrimSpace(asset))
	for common, alias := range krakenAssets {
		if asset == alias {
			return common
		}
	}
	return asset
}
