package binance

import (
	"fmt"
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

func (t *transformer) Transform(frame []byte) ([]model.MarketEvent, error) {
	f, err := exchange.DecodeFields(frame)
	if err != nil {
		return nil, exchange.Decode(t.id, frame, err)
	}

	// combined stream wrapper: {"stream":"btcusdt@trade","data":{...}}
	if data, ok := f.Raw("data"); ok && f.Has("stream") {
		if f, err = exchange.DecodeFields(data); err != nil {
			return nil, exchange.Decode(t.id, frame, err)
		}
	}

	// subscribe responses: {"result":null,"id":1} or {"error":{...},"id":1}
	if _, ok := f["id"]; ok && !f.Has("s", "e") {
		if e, ok := f.Raw("error"); ok {
			return nil, &exchange.SubscriptionRejectedError{Exchange: t.id, Reason: string(e)}
		}
		return nil, nil
	}

	var event model.MarketEvent
	switch kind := f.StringOr("", "e"); kind {
	case "trade":
		event, err = t.trade(f)
	case "kline":
		event, err = t.candle(f)
	case "depthUpdate":
		event, err = t.depth(f)
	case "bookTicker":
		event, err = t.bookTicker(f)
	case "forceOrder":
		event, err = t.liquidation(f)
	case "":
		// spot book ticker frames carry no event type
		if f.Has("u") && f.Has("b") && f.Has("a") {
			event, err = t.bookTicker(f)
			break
		}
		err = fmt.Errorf("missing event type")
	default:
		err = fmt.Errorf("unknown event type %q", kind)
	}
	if err != nil {
		return nil, t.wrap(frame, err)
	}
	return []model.MarketEvent{event}, nil
}

func (t *transformer) wrap(frame []byte, err error) error {
	switch err.(type) {
	case *model.UnidentifiableError:
		return err
	default:
		return exchange.Decode(t.id, frame, err)
	}
}

func (t *transformer) event(channel, market string, exchangeTime time.Time, payload model.Payload) (model.MarketEvent, error) {
	inst, err := t.instruments.Find(subscription.NewID(channel, market))
	if err != nil {
		return model.MarketEvent{}, err
	}
	return model.MarketEvent{
		ExchangeTime: exchangeTime,
		ReceivedTime: t.now().UTC(),
		Exchange:     t.id,
		Instrument:   inst,
		Kind:         payload,
	}, nil
}

// {"e":"trade","E":1649324825173,"s":"ETHUSDT","t":1000000000,"p":"10000.19",
// "q":"0.239000","T":1749354825200,"m":false}
func (t *transformer) trade(f exchange.Fields) (model.MarketEvent, error) {
	market, err := f.String("s")
	if err != nil {
		return model.MarketEvent{}, err
	}
	id, err := f.String("t", "a")
	if err != nil {
		return model.MarketEvent{}, err
	}
	price, err := f.Float("p")
	if err != nil {
		return model.MarketEvent{}, err
	}
	amount, err := f.Float("q")
	if err != nil {
		return model.MarketEvent{}, err
	}
	ts, err := f.Millis("T", "E")
	if err != nil {
		return model.MarketEvent{}, err
	}
	maker, err := f.Bool("m")
	if err != nil {
		return model.MarketEvent{}, err
	}
	side := model.Buy
	if maker {
		// buyer was the maker, so the aggressor sold
		side = model.Sell
	}
	return t.event(ChannelTrades, market, ts, model.PublicTrade{ID: id, Price: price, Amount: amount, Side: side})
}

// The subscription id is rebuilt from the echoed interval, "@kline_" + k.i, so
// it matches the channel token the subscription was registered under.
func (t *transformer) candle(f exchange.Fields) (model.MarketEvent, error) {
	market, err := f.String("s")
	if err != nil {
		return model.MarketEvent{}, err
	}
	ts, err := f.Millis("E")
	if err != nil {
		return model.MarketEvent{}, err
	}
	k, err := f.Object("k")
	if err != nil {
		return model.MarketEvent{}, err
	}
	interval, err := k.String("i")
	if err != nil {
		return model.MarketEvent{}, err
	}

	var c model.Candle
	if c.CloseTime, err = k.Millis("T"); err != nil {
		return model.MarketEvent{}, err
	}
	if c.Open, err = k.Float("o"); err != nil {
		return model.MarketEvent{}, err
	}
	if c.High, err = k.Float("h"); err != nil {
		return model.MarketEvent{}, err
	}
	if c.Low, err = k.Float("l"); err != nil {
		return model.MarketEvent{}, err
	}
	if c.Close, err = k.Float("c"); err != nil {
		return model.MarketEvent{}, err
	}
	if c.Volume, err = k.Float("v"); err != nil {
		return model.MarketEvent{}, err
	}
	if c.TradeCount, err = k.Uint("n", "trades"); err != nil {
		return model.MarketEvent{}, err
	}
	return t.event(ChannelCandles+interval, market, ts, c)
}

func (t *transformer) depth(f exchange.Fields) (model.MarketEvent, error) {
	market, err := f.String("s")
	if err != nil {
		return model.MarketEvent{}, err
	}
	ts, err := f.Millis("T", "E")
	if err != nil {
		return model.MarketEvent{}, err
	}
	seq, err := f.Uint("u")
	if err != nil {
		return model.MarketEvent{}, err
	}
	bids, err := f.Levels("b")
	if err != nil {
		return model.MarketEvent{}, err
	}
	asks, err := f.Levels("a")
	if err != nil {
		return model.MarketEvent{}, err
	}
	return t.event(ChannelOrderBookL2, market, ts, model.OrderBookDelta{Sequence: seq, Bids: bids, Asks: asks})
}

// Spot frames omit timestamps, so the receive time stands in.
func (t *transformer) bookTicker(f exchange.Fields) (model.MarketEvent, error) {
	market, err := f.String("s")
	if err != nil {
		return model.MarketEvent{}, err
	}
	ts := t.now().UTC()
	if f.Has("T", "E") {
		if ts, err = f.Millis("T", "E"); err != nil {
			return model.MarketEvent{}, err
		}
	}
	var book model.OrderBookL1
	book.LastUpdateTime = ts
	if book.BestBid.Price, err = f.Float("b"); err != nil {
		return model.MarketEvent{}, err
	}
	if book.BestBid.Amount, err = f.Float("B"); err != nil {
		return model.MarketEvent{}, err
	}
	if book.BestAsk.Price, err = f.Float("a"); err != nil {
		return model.MarketEvent{}, err
	}
	if book.BestAsk.Amount, err = f.Float("A"); err != nil {
		return model.MarketEvent{}, err
	}
	return t.event(ChannelOrderBookL1, market, ts, book)
}

// {"e":"forceOrder","E":1568014460893,"o":{"s":"BTCUSDT","S":"SELL","q":"0.014",
// "p":"9910","T":1568014460893,...}}
func (t *transformer) liquidation(f exchange.Fields) (model.MarketEvent, error) {
	o, err := f.Object("o")
	if err != nil {
		return model.MarketEvent{}, err
	}
	market, err := o.String("s")
	if err != nil {
		return model.MarketEvent{}, err
	}
	rawSide, err := o.String("S")
	if err != nil {
		return model.MarketEvent{}, err
	}
	side, err := model.ParseSide(rawSide)
	if err != nil {
		return model.MarketEvent{}, err
	}
	var liq model.Liquidation
	liq.Side = side
	if liq.Price, err = o.Float("p", "ap"); err != nil {
		return model.MarketEvent{}, err
	}
	if liq.Quantity, err = o.Float("q", "z"); err != nil {
		return model.MarketEvent{}, err
	}
	if liq.Time, err = o.Millis("T"); err != nil {
		return model.MarketEvent{}, err
	}
	ts, err := f.Millis("E", "T")
	if err != nil {
		ts = liq.Time
	}
	return t.event(ChannelLiquidations, market, ts, liq)
}
