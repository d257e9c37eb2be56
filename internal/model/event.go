package model

import "time"

// MarketEvent is the normalized form of every inbound market data update.
// ExchangeTime comes from the venue payload, ReceivedTime from the local clock.
type MarketEvent struct {
	ExchangeTime time.Time  `json:"exchange_time"`
	ReceivedTime time.Time  `json:"received_time"`
	Exchange     ExchangeID `json:"exchange"`
	Instrument   Instrument `json:"instrument"`
	Kind         Payload    `json:"kind"`
}

// Payload is implemented by each normalized payload type. The set is closed:
// PublicTrade, Candle, OrderBookL1, OrderBookDelta and Liquidation.
type Payload interface {
	SubKindType() SubKindType
}

// PublicTrade is a single executed trade.
type PublicTrade struct {
	ID     string  `json:"id"`
	Price  float64 `json:"price"`
	Amount float64 `json:"amount"`
	Side   Side    `json:"side"`
}

func (PublicTrade) SubKindType() SubKindType { return KindPublicTrades }

// Candle is an OHLCV bar. OHLC ordering is taken as reported.
type Candle struct {
	CloseTime  time.Time `json:"close_time"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     float64   `json:"volume"`
	TradeCount uint64    `json:"trade_count"`
}

func (Candle) SubKindType() SubKindType { return KindCandles }

// OrderBookL1 is the best bid and ask.
type OrderBookL1 struct {
	LastUpdateTime time.Time `json:"last_update_time"`
	BestBid        Level     `json:"best_bid"`
	BestAsk        Level     `json:"best_ask"`
}

func (OrderBookL1) SubKindType() SubKindType { return KindOrderBooksL1 }

// MidPrice is the unweighted mean of the best bid and ask.
func (b OrderBookL1) MidPrice() float64 {
	return (b.BestBid.Price + b.BestAsk.Price) / 2
}

// OrderBookDelta carries level updates. A level with zero amount is a removal.
// Snapshot is set when the venue sent a full book that replaces local state.
type OrderBookDelta struct {
	Snapshot bool    `json:"snapshot"`
	Sequence uint64  `json:"sequence"`
	Bids     []Level `json:"bids"`
	Asks     []Level `json:"asks"`
}

func (OrderBookDelta) SubKindType() SubKindType { return KindOrderBooksL2 }
