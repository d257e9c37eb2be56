package stream

import (
	"context"
	"fmt"
	"sync"

	"cryptonorm/internal/channel"
	"cryptonorm/internal/metrics"
	"cryptonorm/internal/model"
	"cryptonorm/logger"
)

// exchangeStream merges every group of one exchange.
type exchangeStream struct {
	id     model.ExchangeID
	groups []*group
	buf    *channel.Buffer[Item]
	cancel context.CancelFunc
	taken  bool
}

// Streams is the running set of connection groups.
type Streams struct {
	mu         sync.Mutex
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	exchanges  map[model.ExchangeID]*exchangeStream
	order      []model.ExchangeID
	groups     []*group
	joinBuffer int
	joins      []*channel.Buffer[Item]
	log        *logger.Entry
}

func newStreams(parent context.Context, groups []*group, exchangeBuffer, joinBuffer int, log *logger.Log) *Streams {
	ctx, cancel := context.WithCancel(parent)
	s := &Streams{
		cancel:     cancel,
		exchanges:  map[model.ExchangeID]*exchangeStream{},
		groups:     groups,
		joinBuffer: joinBuffer,
		log:        log.WithComponent("streams"),
	}
	for _, g := range groups {
		es, ok := s.exchanges[g.exchange]
		if !ok {
			es = &exchangeStream{id: g.exchange}
			s.exchanges[g.exchange] = es
			s.order = append(s.order, g.exchange)
		}
		es.groups = append(es.groups, g)
	}

	for _, id := range s.order {
		es := s.exchanges[id]
		exCtx, exCancel := context.WithCancel(ctx)
		es.cancel = exCancel
		es.buf = channel.NewBuffer[Item]("exchange:"+id.String(), exchangeBuffer)

		inputs := make([]<-chan Item, 0, len(es.groups))
		for _, g := range es.groups {
			inputs = append(inputs, g.out.C)
			s.wg.Add(1)
			go func(g *group) {
				defer s.wg.Done()
				g.run(exCtx)
			}(g)
		}
		channel.Merge(exCtx, es.buf, inputs...)
	}
	return s
}

// Handle is a consumer's view of one or more exchanges. C is closed once every
// feeding group has stopped.
type Handle struct {
	C     <-chan Item
	close func()
	once  sync.Once
}

// Close stops the groups feeding the handle and releases their connections.
// Other handles are unaffected.
func (h *Handle) Close() {
	h.once.Do(h.close)
}

// Select returns the stream of one exchange. Each exchange can be taken once,
// by Select or Join.
func (s *Streams) Select(id model.ExchangeID) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	es, ok := s.exchanges[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotSubscribed, id)
	}
	if es.taken {
		return nil, fmt.Errorf("%w: %s", ErrAlreadySelected, id)
	}
	es.taken = true
	s.log.WithFields(logger.Fields{"exchange": id.String()}).Info("exchange stream selected")
	return &Handle{C: es.buf.C, close: es.cancel}, nil
}

// Join merges every exchange not yet taken into one stream. Order is kept per
// connection group only. Joining when nothing is left yields a closed stream.
func (s *Streams) Join() *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	var inputs []<-chan Item
	var cancels []context.CancelFunc
	var names []string
	for _, id := range s.order {
		es := s.exchanges[id]
		if es.taken {
			continue
		}
		es.taken = true
		inputs = append(inputs, es.buf.C)
		cancels = append(cancels, es.cancel)
		names = append(names, id.String())
	}

	joinCtx, joinCancel := context.WithCancel(context.Background())
	buf := channel.NewBuffer[Item](fmt.Sprintf("join:%d", len(s.joins)), s.joinBuffer)
	s.joins = append(s.joins, buf)
	channel.Merge(joinCtx, buf, inputs...)

	s.log.WithFields(logger.Fields{"exchanges": names}).Info("exchange streams joined")
	return &Handle{
		C: buf.C,
		close: func() {
			for _, cancel := range cancels {
				cancel()
			}
			joinCancel()
		},
	}
}

// Groups describes every connection group in batch order.
func (s *Streams) Groups() []GroupInfo {
	out := make([]GroupInfo, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, g.info())
	}
	return out
}

// Buffers lists every buffer for occupancy metrics.
func (s *Streams) Buffers() []metrics.Sizer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []metrics.Sizer
	for _, g := range s.groups {
		out = append(out, g.out)
	}
	for _, id := range s.order {
		out = append(out, s.exchanges[id].buf)
	}
	for _, j := range s.joins {
		out = append(out, j)
	}
	return out
}

// Close stops every group and waits for them to release their connections.
func (s *Streams) Close() {
	s.cancel()
	s.wg.Wait()
	s.log.Info("streams closed")
}
