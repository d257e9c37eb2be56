package model

import "time"

// Liquidation captures a forced close of a leveraged position.
type Liquidation struct {
	Side     Side      `json:"side"` // buy/sell
	Price    float64   `json:"price"`
	Quantity float64   `json:"quantity"`
	Time     time.Time `json:"time"`
}

func (Liquidation) SubKindType() SubKindType { return KindLiquidations }
