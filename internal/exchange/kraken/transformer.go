package kraken

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

// Data frames are arrays: [channelID, payload..., channelName, pair].
// Everything else is an event object.
func (t *transformer) Transform(frame []byte) ([]model.MarketEvent, error) {
	trimmed := bytes.TrimSpace(frame)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return t.event(frame)
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(trimmed, &parts); err != nil {
		return nil, exchange.Decode(model.Kraken, frame, err)
	}
	if len(parts) < 4 {
		return nil, exchange.Decode(model.Kraken, frame, fmt.Errorf("data frame has %d elements", len(parts)))
	}
	channel, err := exchange.RawString(parts[len(parts)-2])
	if err != nil {
		return nil, exchange.Decode(model.Kraken, frame, err)
	}
	pair, err := exchange.RawString(parts[len(parts)-1])
	if err != nil {
		return nil, exchange.Decode(model.Kraken, frame, err)
	}
	inst, err := t.instruments.Find(subscription.NewID(channel, pair))
	if err != nil {
		return nil, err
	}
	payloads := parts[1 : len(parts)-2]

	var out []timedPayload
	switch {
	case channel == ChannelTrades:
		out, err = trades(payloads[0])
	case channel == ChannelOrderBookL1:
		out, err = spread(payloads[0])
	case strings.HasPrefix(channel, ChannelCandles+"-"):
		out, err = ohlc(payloads[0])
	case strings.HasPrefix(channel, ChannelOrderBook+"-"):
		out, err = book(payloads, t.now().UTC())
	default:
		err = fmt.Errorf("unhandled channel %q", channel)
	}
	if err != nil {
		return nil, exchange.Decode(model.Kraken, frame, err)
	}

	received := t.now().UTC()
	events := make([]model.MarketEvent, 0, len(out))
	for _, p := range out {
		events = append(events, model.MarketEvent{
			ExchangeTime: p.time,
			ReceivedTime: received,
			Exchange:     model.Kraken,
			Instrument:   inst,
			Kind:         p.payload,
		})
	}
	return events, nil
}

// {"event":"heartbeat"}, {"event":"systemStatus",...},
// {"event":"subscriptionStatus","status":"error","errorMessage":"..."}
func (t *transformer) event(frame []byte) ([]model.MarketEvent, error) {
	f, err := exchange.DecodeFields(frame)
	if err != nil {
		return nil, exchange.Decode(model.Kraken, frame, err)
	}
	kind, err := f.String("event")
	if err != nil {
		return nil, exchange.Decode(model.Kraken, frame, err)
	}
	if kind == "error" || (kind == "subscriptionStatus" && f.StringOr("", "status") == "error") {
		return nil, &exchange.SubscriptionRejectedError{Exchange: model.Kraken, Reason: f.StringOr("unknown", "errorMessage")}
	}
	return nil, nil
}

type timedPayload struct {
	time    time.Time
	payload model.Payload
}

func rawRow(raw json.RawMessage, min int) ([]json.RawMessage, error) {
	var row []json.RawMessage
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, err
	}
	if len(row) < min {
		return nil, fmt.Errorf("expected at least %d elements, got %d", min, len(row))
	}
	return row, nil
}

func rawTime(raw json.RawMessage) (time.Time, error) {
	s, err := exchange.RawString(raw)
	if err != nil {
		return time.Time{}, err
	}
	return exchange.ParseUnixSeconds(s)
}

// [["5541.20000","0.15850568","1534614057.321597","s","l",""],...]
// Kraken sends no trade id, so the timestamp and position in the frame stand in.
func trades(raw json.RawMessage) ([]timedPayload, error) {
	var rows []json.RawMessage
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, err
	}
	out := make([]timedPayload, 0, len(rows))
	for i, r := range rows {
		row, err := rawRow(r, 4)
		if err != nil {
			return nil, err
		}
		var trade model.PublicTrade
		if trade.Price, err = exchange.RawFloat(row[0]); err != nil {
			return nil, err
		}
		if trade.Amount, err = exchange.RawFloat(row[1]); err != nil {
			return nil, err
		}
		ts, err := rawTime(row[2])
		if err != nil {
			return nil, err
		}
		side, err := exchange.RawString(row[3])
		if err != nil {
			return nil, err
		}
		if trade.Side, err = model.ParseSide(side); err != nil {
			return nil, err
		}
		stamp, _ := exchange.RawString(row[2])
		trade.ID = stamp + "-" + strconv.Itoa(i)
		out = append(out, timedPayload{time: ts, payload: trade})
	}
	return out, nil
}

// ["5698.40000","5700.00000","1542057299.545897","1.01234567","0.98765432"]
func spread(raw json.RawMessage) ([]timedPayload, error) {
	row, err := rawRow(raw, 5)
	if err != nil {
		return nil, err
	}
	ts, err := rawTime(row[2])
	if err != nil {
		return nil, err
	}
	book := model.OrderBookL1{LastUpdateTime: ts}
	if book.BestBid.Price, err = exchange.RawFloat(row[0]); err != nil {
		return nil, err
	}
	if book.BestAsk.Price, err = exchange.RawFloat(row[1]); err != nil {
		return nil, err
	}
	if book.BestBid.Amount, err = exchange.RawFloat(row[3]); err != nil {
		return nil, err
	}
	if book.BestAsk.Amount, err = exchange.RawFloat(row[4]); err != nil {
		return nil, err
	}
	return []timedPayload{{time: ts, payload: book}}, nil
}

// ["1542057314.748456","1542057360.435743","3586.70000","3586.70000","3586.60000",
// "3586.60000","3586.68894","0.03373000",2] is time, etime, open, high, low, close,
// vwap, volume, count.
func ohlc(raw json.RawMessage) ([]timedPayload, error) {
	row, err := rawRow(raw, 9)
	if err != nil {
		return nil, err
	}
	ts, err := rawTime(row[0])
	if err != nil {
		return nil, err
	}
	var c model.Candle
	if c.CloseTime, err = rawTime(row[1]); err != nil {
		return nil, err
	}
	if c.Open, err = exchange.RawFloat(row[2]); err != nil {
		return nil, err
	}
	if c.High, err = exchange.RawFloat(row[3]); err != nil {
		return nil, err
	}
	if c.Low, err = exchange.RawFloat(row[4]); err != nil {
		return nil, err
	}
	if c.Close, err = exchange.RawFloat(row[5]); err != nil {
		return nil, err
	}
	if c.Volume, err = exchange.RawFloat(row[7]); err != nil {
		return nil, err
	}
	count, err := exchange.RawString(row[8])
	if err != nil {
		return nil, err
	}
	if c.TradeCount, err = strconv.ParseUint(count, 10, 64); err != nil {
		return nil, err
	}
	return []timedPayload{{time: ts, payload: c}}, nil
}

// Snapshots use "as"/"bs", updates "a"/"b"; an update may split asks and bids
// across two objects. Levels are [price, volume, timestamp].
func book(payloads []json.RawMessage, fallback time.Time) ([]timedPayload, error) {
	var delta model.OrderBookDelta
	latest := time.Time{}
	for _, raw := range payloads {
		f, err := exchange.DecodeFields(raw)
		if err != nil {
			return nil, err
		}
		if f.Has("as") || f.Has("bs") {
			delta.Snapshot = true
		}
		for _, side := range []struct {
			keys []string
			dst  *[]model.Level
		}{
			{[]string{"bs", "b"}, &delta.Bids},
			{[]string{"as", "a"}, &delta.Asks},
		} {
			levels, err := f.Levels(side.keys...)
			if err != nil {
				return nil, err
			}
			*side.dst = append(*side.dst, levels...)
			stamp, err := lastLevelTime(f, side.keys)
			if err != nil {
				return nil, err
			}
			if stamp.After(latest) {
				latest = stamp
			}
		}
	}
	if latest.IsZero() {
		latest = fallback
	}
	return []timedPayload{{time: latest, payload: delta}}, nil
}

func lastLevelTime(f exchange.Fields, keys []string) (time.Time, error) {
	raw, ok := f.Raw(keys...)
	if !ok {
		return time.Time{}, nil
	}
	var rows [][]json.RawMessage
	if err := json.Unmarshal(raw, &rows); err != nil {
		return time.Time{}, err
	}
	var latest time.Time
	for _, row := range rows {
		if len(row) < 3 {
			continue
		}
		ts, err := rawTime(row[2])
		if err != nil {
			return time.Time{}, err
		}
		if ts.After(latest) {
			latest = ts
		}
	}
	return latest, nil
}
