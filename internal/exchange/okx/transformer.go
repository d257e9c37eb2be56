package okx

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
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
	if bytes.Equal(bytes.TrimSpace(frame), []byte("pong")) {
		return nil, nil
	}
	f, err := exchange.DecodeFields(frame)
	if err != nil {
		return nil, exchange.Decode(model.Okx, frame, err)
	}

	// {"event":"subscribe","arg":{...}} or {"event":"error","code":"60012","msg":"..."}
	if event, ok := f.Raw("event"); ok {
		if s, _ := exchange.RawString(event); s == "error" {
			return nil, &exchange.SubscriptionRejectedError{
				Exchange: model.Okx,
				Reason:   fmt.Sprintf("%s: %s", f.StringOr("", "code"), f.StringOr("", "msg")),
			}
		}
		return nil, nil
	}

	a, err := f.Object("arg")
	if err != nil {
		return nil, exchange.Decode(model.Okx, frame, err)
	}
	channel, err := a.String("channel")
	if err != nil {
		return nil, exchange.Decode(model.Okx, frame, err)
	}
	instID, err := a.String("instId")
	if err != nil {
		return nil, exchange.Decode(model.Okx, frame, err)
	}
	inst, err := t.instruments.Find(subscription.NewID(channel, instID))
	if err != nil {
		return nil, err
	}
	data, err := f.Array("data")
	if err != nil {
		return nil, exchange.Decode(model.Okx, frame, err)
	}

	received := t.now().UTC()
	events := make([]model.MarketEvent, 0, len(data))
	for _, item := range data {
		var (
			ts      time.Time
			payload model.Payload
		)
		switch {
		case channel == ChannelTrades:
			ts, payload, err = trade(item)
		case channel == ChannelOrderBookL1:
			ts, payload, err = bbo(item)
		case channel == ChannelOrderBookL2:
			ts, payload, err = book(item, f.StringOr("update", "action") == "snapshot")
		case strings.HasPrefix(channel, ChannelCandles):
			ts, payload, err = candle(channel, item)
		default:
			err = fmt.Errorf("unhandled channel %q", channel)
		}
		if err != nil {
			return nil, exchange.Decode(model.Okx, frame, err)
		}
		events = append(events, model.MarketEvent{
			ExchangeTime: ts,
			ReceivedTime: received,
			Exchange:     model.Okx,
			Instrument:   inst,
			Kind:         payload,
		})
	}
	return events, nil
}

// {"instId":"BTC-USDT","tradeId":"130639474","px":"42219.9","sz":"0.12060306","side":"buy","ts":"1630048897897"}
func trade(raw json.RawMessage) (time.Time, model.Payload, error) {
	f, err := exchange.DecodeFields(raw)
	if err != nil {
		return time.Time{}, nil, err
	}
	var tr model.PublicTrade
	if tr.ID, err = f.String("tradeId"); err != nil {
		return time.Time{}, nil, err
	}
	if tr.Price, err = f.Float("px", "price"); err != nil {
		return time.Time{}, nil, err
	}
	if tr.Amount, err = f.Float("sz", "size"); err != nil {
		return time.Time{}, nil, err
	}
	side, err := f.String("side")
	if err != nil {
		return time.Time{}, nil, err
	}
	if tr.Side, err = model.ParseSide(side); err != nil {
		return time.Time{}, nil, err
	}
	ts, err := f.Millis("ts")
	if err != nil {
		return time.Time{}, nil, err
	}
	return ts, tr, nil
}

// {"asks":[["111.06","55154","0","2"]],"bids":[["111.05","57745","0","2"]],"ts":"1670324386802","seqId":363996337}
func bbo(raw json.RawMessage) (time.Time, model.Payload, error) {
	f, err := exchange.DecodeFields(raw)
	if err != nil {
		return time.Time{}, nil, err
	}
	ts, err := f.Millis("ts")
	if err != nil {
		return time.Time{}, nil, err
	}
	bids, err := f.Levels("bids")
	if err != nil {
		return time.Time{}, nil, err
	}
	asks, err := f.Levels("asks")
	if err != nil {
		return time.Time{}, nil, err
	}
	out := model.OrderBookL1{LastUpdateTime: ts}
	if len(bids) > 0 {
		out.BestBid = bids[0]
	}
	if len(asks) > 0 {
		out.BestAsk = asks[0]
	}
	return ts, out, nil
}

func book(raw json.RawMessage, snapshot bool) (time.Time, model.Payload, error) {
	f, err := exchange.DecodeFields(raw)
	if err != nil {
		return time.Time{}, nil, err
	}
	ts, err := f.Millis("ts")
	if err != nil {
		return time.Time{}, nil, err
	}
	delta := model.OrderBookDelta{Snapshot: snapshot}
	if f.Has("seqId") {
		if delta.Sequence, err = f.Uint("seqId"); err != nil {
			return time.Time{}, nil, err
		}
	}
	if delta.Bids, err = f.Levels("bids"); err != nil {
		return time.Time{}, nil, err
	}
	if delta.Asks, err = f.Levels("asks"); err != nil {
		return time.Time{}, nil, err
	}
	return ts, delta, nil
}

// ["1597026383085","8533.02","8553.74","8527.17","8548.26","45247","529.5858061","529.58","0"]
// is ts, open, high, low, close, volume, ... with ts the candle start.
func candle(channel string, raw json.RawMessage) (time.Time, model.Payload, error) {
	interval, ok := intervalFromChannel(channel)
	if !ok {
		return time.Time{}, nil, fmt.Errorf("unknown candle channel %q", channel)
	}
	var row []json.RawMessage
	if err := json.Unmarshal(raw, &row); err != nil {
		return time.Time{}, nil, err
	}
	if len(row) < 6 {
		return time.Time{}, nil, fmt.Errorf("candle has %d fields", len(row))
	}
	startStr, err := exchange.RawString(row[0])
	if err != nil {
		return time.Time{}, nil, err
	}
	startMs, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("candle start: %w", err)
	}
	start := exchange.FromMillis(startMs)

	values := make([]float64, 5)
	for i := range values {
		if values[i], err = exchange.RawFloat(row[i+1]); err != nil {
			return time.Time{}, nil, err
		}
	}
	return start, model.Candle{
		CloseTime: interval.CloseTime(start),
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
	}, nil
}
