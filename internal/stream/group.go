package stream

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jpillora/backoff"
	"golang.org/x/time/rate"

	"cryptonorm/internal/channel"
	"cryptonorm/internal/exchange"
	"cryptonorm/internal/metrics"
	ratemetrics "cryptonorm/internal/metrics/rate"
	"cryptonorm/internal/model"
	"cryptonorm/internal/subscription"
	"cryptonorm/internal/transport"
	"cryptonorm/logger"
)

type groupConfig struct {
	connector exchange.Connector
	subs      []subscription.Subscription
	meta      subscription.Meta
	url       string
	dialer    transport.Dialer
	policy    Policy
	buffer    int
	log       *logger.Log
}

// group owns one connection, its subscription id map and its transformer.
type group struct {
	id          string
	exchange    model.ExchangeID
	connector   exchange.Connector
	subs        []subscription.Subscription
	meta        subscription.Meta
	url         string
	dialer      transport.Dialer
	policy      Policy
	transformer exchange.Transformer
	limiter     *rate.Limiter
	out         *channel.Buffer[Item]
	state       atomic.Int32
	delivered   atomic.Int64
	log         *logger.Log
	entry       *logger.Entry
}

func newGroup(cfg groupConfig) *group {
	id := uuid.NewString()
	limit, burst := cfg.connector.RequestRate()
	g := &group{
		id:          id,
		exchange:    cfg.connector.ID(),
		connector:   cfg.connector,
		subs:        cfg.subs,
		meta:        cfg.meta,
		url:         cfg.url,
		dialer:      cfg.dialer,
		policy:      cfg.policy,
		transformer: cfg.connector.NewTransformer(cfg.meta.Instruments),
		limiter:     rate.NewLimiter(limit, burst),
		out:         channel.NewBuffer[Item]("group:"+id, cfg.buffer),
		log:         cfg.log,
	}
	g.entry = cfg.log.WithComponent("connection_group").WithFields(logger.Fields{
		"group":         id,
		"exchange":      g.exchange.String(),
		"subscriptions": len(cfg.subs),
	})
	metrics.MoveGroupState(g.exchange.String(), "", StateBuilding.String())
	return g
}

func (g *group) setState(s State) {
	old := State(g.state.Swap(int32(s)))
	if old == s {
		return
	}
	metrics.MoveGroupState(g.exchange.String(), old.String(), s.String())
	g.entry.WithFields(logger.Fields{"from": old.String(), "to": s.String()}).Debug("group state changed")
}

func (g *group) info() GroupInfo {
	subs := make([]subscription.Subscription, len(g.subs))
	copy(subs, g.subs)
	return GroupInfo{
		ID:            g.id,
		Exchange:      g.exchange,
		URL:           g.url,
		Subscriptions: subs,
		State:         State(g.state.Load()),
	}
}

// run keeps the group connected until ctx ends or the reconnect policy gives
// up. The output buffer is closed on return.
func (g *group) run(ctx context.Context) {
	defer g.out.Close()
	defer g.setState(StateClosed)

	b := &backoff.Backoff{
		Min:    g.policy.MinDelay,
		Max:    g.policy.MaxDelay,
		Factor: g.policy.Factor,
		Jitter: true,
	}
	failures := 0
	for {
		g.setState(StateConnecting)
		streamed, err := g.session(ctx)
		if ctx.Err() != nil {
			g.entry.Info("connection group stopped")
			return
		}
		if streamed {
			b.Reset()
			failures = 0
		}
		failures++

		if !g.retryable(err) || !g.policy.Enabled || (g.policy.MaxAttempts > 0 && failures > g.policy.MaxAttempts) {
			g.fail(ctx, err)
			return
		}

		g.setState(StateReconnecting)
		delay := b.Duration()
		metrics.IncReconnect(g.exchange.String())
		metrics.EmitStreamMetric(g.log, metrics.MetricReconnects, g.exchange.String(), g.id, "")
		g.entry.WithError(err).WithFields(logger.Fields{
			"attempt": failures,
			"delay":   delay.String(),
		}).Warn("connection lost, reconnecting")

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// retryable reports whether err may clear up on a new connection. A venue
// refusing the subscription will refuse it again, unless it was throttling.
func (g *group) retryable(err error) bool {
	var rejected *exchange.SubscriptionRejectedError
	if errors.As(err, &rejected) {
		limited, banned := ratemetrics.DetectLimit(g.exchange.Venue(), rejected.Reason)
		return limited && !banned
	}
	return true
}

func (g *group) fail(ctx context.Context, err error) {
	metrics.IncGroupFailure(g.exchange.String())
	metrics.EmitStreamMetric(g.log, metrics.MetricGroupFailed, g.exchange.String(), g.id, "")
	g.entry.WithError(err).Error("connection group failed")
	g.out.Send(ctx, Item{Err: &GroupError{GroupID: g.id, Exchange: g.exchange, Err: err}})
}

// session runs one connection: dial, subscribe, then stream until the
// transport fails. streamed reports whether subscribing succeeded.
func (g *group) session(ctx context.Context) (streamed bool, err error) {
	conn, err := g.dialer.Dial(ctx, g.url)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer conn.Close()

	for _, frame := range g.meta.Payloads {
		if err := g.limiter.Wait(sessCtx); err != nil {
			return false, err
		}
		if err := conn.Send(sessCtx, frame); err != nil {
			return false, fmt.Errorf("subscribe: %w", err)
		}
	}
	g.setState(StateStreaming)
	g.entry.WithFields(logger.Fields{"url": g.url, "requests": len(g.meta.Payloads)}).Info("connection group streaming")

	if interval, ping := g.connector.Heartbeat(); interval > 0 && len(ping) > 0 {
		go g.heartbeat(sessCtx, conn, interval, ping)
	}

	start := g.delivered.Load()
	defer func() {
		logger.LogDataFlowEntry(g.entry, g.exchange.String(), g.out.Name(), int(g.delivered.Load()-start), "market_event")
	}()

	for {
		frame, err := conn.Receive(sessCtx)
		if err != nil {
			return true, err
		}
		logger.RecordChannelMessage(g.exchange.String(), len(frame))

		events, err := g.transformer.Transform(frame)
		if err != nil {
			if fatal := g.messageError(err); fatal != nil {
				return true, fatal
			}
			continue
		}
		for _, ev := range events {
			if !g.out.Send(ctx, Item{Event: ev}) {
				return true, ctx.Err()
			}
			metrics.IncEvents(g.exchange.String(), ev.Kind.SubKindType().String(), 1)
		}
		g.delivered.Add(int64(len(events)))
	}
}

// messageError logs and counts a frame that could not be transformed. It
// returns a non-nil error only when the connection must be dropped.
func (g *group) messageError(err error) error {
	var rejected *exchange.SubscriptionRejectedError
	switch {
	case errors.As(err, &rejected):
		metrics.IncTransformError(g.exchange.String(), "rejected")
		metrics.EmitStreamMetric(g.log, metrics.MetricSubscriptionRejected, g.exchange.String(), g.id, rejected.Reason)
		ratemetrics.ReportLimitFromMessage(g.log, g.exchange.Venue(), g.exchange.String(), g.id, rejected.Reason)
		return err
	case errors.Is(err, model.ErrUnidentifiable):
		metrics.IncTransformError(g.exchange.String(), "unidentifiable")
		g.entry.WithError(err).Warn("skipping message for unknown subscription")
	default:
		metrics.IncTransformError(g.exchange.String(), "decode")
		g.entry.WithError(err).Warn("skipping undecodable message")
	}
	return nil
}

func (g *group) heartbeat(ctx context.Context, conn transport.Conn, interval time.Duration, ping []byte) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.Send(ctx, ping); err != nil {
				if ctx.Err() == nil {
					g.entry.WithError(err).Warn("failed to send heartbeat, closing connection")
					conn.Close()
				}
				return
			}
		}
	}
}
