package coinbase

import (
	"encoding/json"
	"fmt"
	"time"

	"cryptonorm/internal/exchange"
	"cryptonorm/internal/model"
	"cryptonorm/internal/subscription"
)

type transformer struct {
	instruments subscription.Map[model.Instrument]
	now         func() time.Time
}

func (t *transformer) Transform(frame []byte) ([]model.MarketEvent, error) {
	f, err := exchange.DecodeFields(frame)
	if err != nil {
		return nil, exchange.Decode(model.Coinbase, frame, err)
	}
	kind, err := f.String("type")
	if err != nil {
		return nil, exchange.Decode(model.Coinbase, frame, err)
	}

	var channel string
	switch kind {
	case "subscriptions", "heartbeat":
		return nil, nil
	case "error":
		return nil, &exchange.SubscriptionRejectedError{
			Exchange: model.Coinbase,
			Reason:   fmt.Sprintf("%s: %s", f.StringOr("", "message"), f.StringOr("", "reason")),
		}
	case "match", "last_match":
		channel = ChannelTrades
	case "ticker":
		channel = ChannelOrderBookL1
	case "snapshot", "l2update":
		channel = ChannelOrderBookL2
	default:
		return nil, exchange.Decode(model.Coinbase, frame, fmt.Errorf("unknown message type %q", kind))
	}

	product, err := f.String("product_id")
	if err != nil {
		return nil, exchange.Decode(model.Coinbase, frame, err)
	}
	inst, err := t.instruments.Find(subscription.NewID(channel, product))
	if err != nil {
		return nil, err
	}

	received := t.now().UTC()
	ts := received
	if f.Has("time") {
		raw, _ := f.String("time")
		if ts, err = time.Parse(time.RFC3339Nano, raw); err != nil {
			return nil, exchange.Decode(model.Coinbase, frame, err)
		}
		ts = ts.UTC()
	}

	var payload model.Payload
	switch kind {
	case "match", "last_match":
		payload, err = match(f)
	case "ticker":
		payload, err = ticker(f, ts)
	case "snapshot":
		payload, err = snapshot(f)
	case "l2update":
		payload, err = update(f)
	}
	if err != nil {
		return nil, exchange.Decode(model.Coinbase, frame, err)
	}
	return []model.MarketEvent{{
		ExchangeTime: ts,
		ReceivedTime: received,
		Exchange:     model.Coinbase,
		Instrument:   inst,
		Kind:         payload,
	}}, nil
}

// The "side" of a match is the maker order's side; the aggressor took the
// other side.
func match(f exchange.Fields) (model.Payload, error) {
	var trade model.PublicTrade
	var err error
	if trade.ID, err = f.String("trade_id"); err != nil {
		return nil, err
	}
	if trade.Price, err = f.Float("price"); err != nil {
		return nil, err
	}
	if trade.Amount, err = f.Float("size", "last_size"); err != nil {
		return nil, err
	}
	side, err := f.String("side")
	if err != nil {
		return nil, err
	}
	maker, err := model.ParseSide(side)
	if err != nil {
		return nil, err
	}
	trade.Side = model.Buy
	if maker == model.Buy {
		trade.Side = model.Sell
	}
	return trade, nil
}

func ticker(f exchange.Fields, ts time.Time) (model.Payload, error) {
	book := model.OrderBookL1{LastUpdateTime: ts}
	var err error
	if book.BestBid.Price, err = f.Float("best_bid"); err != nil {
		return nil, err
	}
	if book.BestBid.Amount, err = f.Float("best_bid_size"); err != nil {
		return nil, err
	}
	if book.BestAsk.Price, err = f.Float("best_ask"); err != nil {
		return nil, err
	}
	if book.BestAsk.Amount, err = f.Float("best_ask_size"); err != nil {
		return nil, err
	}
	return book, nil
}

func snapshot(f exchange.Fields) (model.Payload, error) {
	delta := model.OrderBookDelta{Snapshot: true}
	var err error
	if delta.Bids, err = f.Levels("bids"); err != nil {
		return nil, err
	}
	if delta.Asks, err = f.Levels("asks"); err != nil {
		return nil, err
	}
	return delta, nil
}

// {"type":"l2update","product_id":"BTC-USD","time":"...","changes":[["buy","10101.80000000","0.162567"]]}
func update(f exchange.Fields) (model.Payload, error) {
	raw, ok := f.Raw("changes")
	if !ok {
		return nil, fmt.Errorf("missing field %q", "changes")
	}
	var changes [][]json.RawMessage
	if err := json.Unmarshal(raw, &changes); err != nil {
		return nil, err
	}
	var delta model.OrderBookDelta
	for _, change := range changes {
		if len(change) < 3 {
			return nil, fmt.Errorf("change has %d elements", len(change))
		}
		rawSide, err := exchange.RawString(change[0])
		if err != nil {
			return nil, err
		}
		side, err := model.ParseSide(rawSide)
		if err != nil {
			return nil, err
		}
		price, err := exchange.RawFloat(change[1])
		if err != nil {
			return nil, err
		}
		amount, err := exchange.RawFloat(change[2])
		if err != nil {
			return nil, err
		}
		level := model.Level{Price: price, Amount: amount}
		if side == model.Buy {
			delta.Bids = append(delta.Bids, level)
		} else {
			delta.Asks = append(delta.Asks, level)
		}
	}
	return delta, nil
}
