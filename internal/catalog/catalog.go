// Package catalog checks subscribed markets against the venues' own instrument
// listings before any websocket is opened.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"cryptonorm/internal/model"
	"cryptonorm/internal/subscription"
	"cryptonorm/internal/symbols"
	"cryptonorm/logger"
)

var ErrNotListed = errors.New("market not listed")

// NotListedError names a subscribed market the venue does not list as
// trading.
type NotListedError struct {
	Exchange model.ExchangeID
	Market   string
	Status   string
}

func (e *NotListedError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("%s: market %s is %s", e.Exchange, e.Market, e.Status)
	}
	return fmt.Sprintf("%s: market %s is not listed", e.Exchange, e.Market)
}

func (e *NotListedError) Is(target error) bool { return target == ErrNotListed }

// Listing maps a venue market spelling to its trading status.
type Listing map[string]string

// Source fetches the listing of one exchange segment.
type Source interface {
	Listing(ctx context.Context) (Listing, error)
	// Trading reports whether status means the market is open.
	Trading(status string) bool
}

type Catalog struct {
	sources map[model.ExchangeID]Source
	log     *logger.Log
}

func New(sources map[model.ExchangeID]Source) *Catalog {
	return &Catalog{sources: sources, log: logger.GetLogger()}
}

// Verify fetches each involved listing once, concurrently, and reports every
// subscription whose market is missing or not trading. Exchanges without a
// source are skipped.
func (c *Catalog) Verify(ctx context.Context, subs []subscription.Subscription) error {
	log := c.log.WithComponent("catalog")
	listings, err := c.fetch(ctx, subs)
	if err != nil {
		return err
	}

	var errs []error
	for _, sub := range subs {
		listing, ok := listings[sub.Exchange]
		if !ok {
			continue
		}
		market := symbols.Market(sub.Exchange, sub.Instrument)
		status, listed := listing[market]
		switch {
		case !listed:
			errs = append(errs, &NotListedError{Exchange: sub.Exchange, Market: market})
		case !c.sources[sub.Exchange].Trading(status):
			errs = append(errs, &NotListedError{Exchange: sub.Exchange, Market: market, Status: status})
		}
	}
	if len(errs) > 0 {
		err := errors.Join(errs...)
		log.WithError(err).Error("catalog check failed")
		return err
	}
	log.WithFields(logger.Fields{"exchanges": len(listings), "subscriptions": len(subs)}).Info("catalog check passed")
	return nil
}

func (c *Catalog) fetch(ctx context.Context, subs []subscription.Subscription) (map[model.ExchangeID]Listing, error) {
	var (
		mu       sync.Mutex
		listings = map[model.ExchangeID]Listing{}
		seen     = map[model.ExchangeID]bool{}
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, sub := range subs {
		id := sub.Exchange
		src, ok := c.sources[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		g.Go(func() error {
			start := time.Now()
			listing, err := src.Listing(gctx)
			if err != nil {
				return fmt.Errorf("fetch %s listing: %w", id, err)
			}
			logger.LogPerformanceEntry(c.log.WithComponent("catalog"), "catalog", "fetch_listing", time.Since(start), logger.Fields{
				"exchange": id.String(),
				"markets":  len(listing),
			})
			mu.Lock()
			listings[id] = listing
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return listings, nil
}
