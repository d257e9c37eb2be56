package bybit

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"cryptonorm/internal/exchange"
	"cryptonorm/internal/model"
	"cryptonorm/internal/subscription"
)

type transformer struct {
	id          model.ExchangeID
	instruments subscription.Map[model.Instrument]
	now         func() time.Time
}

// splitTopic splits "kline.5.BTCUSDT" into "kline.5." and "BTCUSDT".
func splitTopic(topic string) (channel, market string, ok bool) {
	i := strings.LastIndexByte(topic, '.')
	if i <= 0 || i == len(topic)-1 {
		return "", "", false
	}
	return topic[:i+1], topic[i+1:], true
}

func (t *transformer) Transform(frame []byte) ([]model.MarketEvent, error) {
	f, err := exchange.DecodeFields(frame)
	if err != nil {
		return nil, exchange.Decode(t.id, frame, err)
	}

	// subscribe acks and pongs:
	// {"success":true,"ret_msg":"subscribe","conn_id":"...","op":"subscribe"}
	if f.Has("op") {
		if f.Has("success") {
			ok, err := f.Bool("success")
			if err == nil && !ok {
				return nil, &exchange.SubscriptionRejectedError{Exchange: t.id, Reason: f.StringOr("unknown", "ret_msg")}
			}
		}
		return nil, nil
	}

	topic, err := f.String("topic")
	if err != nil {
		return nil, exchange.Decode(t.id, frame, err)
	}
	channel, market, ok := splitTopic(topic)
	if !ok {
		return nil, exchange.Decode(t.id, frame, fmt.Errorf("malformed topic %q", topic))
	}
	inst, err := t.instruments.Find(subscription.NewID(channel, market))
	if err != nil {
		return nil, err
	}
	ts, err := f.Millis("ts")
	if err != nil {
		return nil, exchange.Decode(t.id, frame, err)
	}

	var payloads []timedPayload
	switch {
	case channel == ChannelTrades:
		payloads, err = trades(f)
	case strings.HasPrefix(channel, ChannelCandles):
		payloads, err = candles(f)
	case channel == ChannelOrderBookL1:
		payloads, err = bookL1(f, ts)
	case channel == ChannelOrderBookL2:
		payloads, err = bookL2(f, ts)
	case channel == ChannelLiquidations:
		payloads, err = liquidations(f)
	default:
		err = fmt.Errorf("unhandled topic %q", topic)
	}
	if err != nil {
		return nil, exchange.Decode(t.id, frame, err)
	}

	received := t.now().UTC()
	events := make([]model.MarketEvent, 0, len(payloads))
	for _, p := range payloads {
		exchangeTime := p.time
		if exchangeTime.IsZero() {
			exchangeTime = ts
		}
		events = append(events, model.MarketEvent{
			ExchangeTime: exchangeTime,
			ReceivedTime: received,
			Exchange:     t.id,
			Instrument:   inst,
			Kind:         p.payload,
		})
	}
	return events, nil
}

type timedPayload struct {
	time    time.Time
	payload model.Payload
}

func dataItems(f exchange.Fields) ([]exchange.Fields, error) {
	raw, err := f.Array("data")
	if err != nil {
		return nil, err
	}
	items := make([]exchange.Fields, 0, len(raw))
	for _, r := range raw {
		item, err := exchange.DecodeFields(r)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// {"T":1672304486865,"s":"BTCUSDT","S":"Buy","v":"0.001","p":"16578.50","i":"20f43950-..."}
func trades(f exchange.Fields) ([]timedPayload, error) {
	items, err := dataItems(f)
	if err != nil {
		return nil, err
	}
	out := make([]timedPayload, 0, len(items))
	for _, item := range items {
		var trade model.PublicTrade
		if trade.ID, err = item.String("i"); err != nil {
			return nil, err
		}
		if trade.Price, err = item.Float("p"); err != nil {
			return nil, err
		}
		if trade.Amount, err = item.Float("v", "size"); err != nil {
			return nil, err
		}
		side, err := item.String("S", "side")
		if err != nil {
			return nil, err
		}
		if trade.Side, err = model.ParseSide(side); err != nil {
			return nil, err
		}
		ts, err := item.Millis("T")
		if err != nil {
			return nil, err
		}
		out = append(out, timedPayload{time: ts, payload: trade})
	}
	return out, nil
}

// {"start":1672324800000,"end":1672325099999,"interval":"5","open":"16649.5",
// "close":"16677","high":"16677","low":"16608","volume":"2.081","timestamp":1672324988882}
func candles(f exchange.Fields) ([]timedPayload, error) {
	items, err := dataItems(f)
	if err != nil {
		return nil, err
	}
	out := make([]timedPayload, 0, len(items))
	for _, item := range items {
		var c model.Candle
		if c.CloseTime, err = item.Millis("end"); err != nil {
			return nil, err
		}
		if c.Open, err = item.Float("open"); err != nil {
			return nil, err
		}
		if c.High, err = item.Float("high"); err != nil {
			return nil, err
		}
		if c.Low, err = item.Float("low"); err != nil {
			return nil, err
		}
		if c.Close, err = item.Float("close"); err != nil {
			return nil, err
		}
		if c.Volume, err = item.Float("volume"); err != nil {
			return nil, err
		}
		var ts time.Time
		if item.Has("timestamp") {
			if ts, err = item.Millis("timestamp"); err != nil {
				return nil, err
			}
		}
		out = append(out, timedPayload{time: ts, payload: c})
	}
	return out, nil
}

func bookData(f exchange.Fields) (exchange.Fields, []model.Level, []model.Level, error) {
	data, err := f.Object("data")
	if err != nil {
		return nil, nil, nil, err
	}
	bids, err := data.Levels("b")
	if err != nil {
		return nil, nil, nil, err
	}
	asks, err := data.Levels("a")
	if err != nil {
		return nil, nil, nil, err
	}
	return data, bids, asks, nil
}

// Level 1 frames carry at most one level per side.
func bookL1(f exchange.Fields, ts time.Time) ([]timedPayload, error) {
	_, bids, asks, err := bookData(f)
	if err != nil {
		return nil, err
	}
	book := model.OrderBookL1{LastUpdateTime: ts}
	if len(bids) > 0 {
		book.BestBid = bids[0]
	}
	if len(asks) > 0 {
		book.BestAsk = asks[0]
	}
	if len(bids) == 0 && len(asks) == 0 {
		return nil, errors.New("empty level 1 update")
	}
	return []timedPayload{{time: ts, payload: book}}, nil
}

func bookL2(f exchange.Fields, ts time.Time) ([]timedPayload, error) {
	data, bids, asks, err := bookData(f)
	if err != nil {
		return nil, err
	}
	seq, err := data.Uint("u", "seq")
	if err != nil {
		return nil, err
	}
	delta := model.OrderBookDelta{
		Snapshot: f.StringOr("", "type") == "snapshot",
		Sequence: seq,
		Bids:     bids,
		Asks:     asks,
	}
	return []timedPayload{{time: ts, payload: delta}}, nil
}

// {"T":1739502302929,"s":"ROSEUSDT","S":"Sell","v":"20000","p":"0.04499"}
func liquidations(f exchange.Fields) ([]timedPayload, error) {
	items, err := dataItems(f)
	if err != nil {
		return nil, err
	}
	out := make([]timedPayload, 0, len(items))
	for _, item := range items {
		var liq model.Liquidation
		side, err := item.String("S", "side")
		if err != nil {
			return nil, err
		}
		if liq.Side, err = model.ParseSide(side); err != nil {
			return nil, err
		}
		if liq.Price, err = item.Float("p", "price"); err != nil {
			return nil, err
		}
		if liq.Quantity, err = item.Float("v", "size"); err != nil {
			return nil, err
		}
		if liq.Time, err = item.Millis("T", "updatedTime"); err != nil {
			return nil, err
		}
		out = append(out, timedPayload{time: liq.Time, payload: liq})
	}
	return out, nil
}
