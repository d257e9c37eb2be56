package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"cryptonorm/internal/subscription"
)

// SubscriptionConfig is the config spelling of one subscription, e.g.
// {exchange: binance_spot, base: btc, quote: usdt, instrument_kind: spot,
// kind: candles, interval: 1m}.
type SubscriptionConfig struct {
	Exchange       string `yaml:"exchange"`
	Base           string `yaml:"base"`
	Quote          string `yaml:"quote"`
	InstrumentKind string `yaml:"instrument_kind"`
	Kind           string `yaml:"kind"`
	Interval       string `yaml:"interval"`
}

// BatchConfig is one subscription batch. Every entry of a batch must target
// the same exchange and is served by one connection.
type BatchConfig struct {
	Name    string               `yaml:"name"`
	Entries []SubscriptionConfig `yaml:"subscriptions"`
}

// Subscriptions parses every entry, reporting all malformed entries together.
func (b BatchConfig) Subscriptions() ([]subscription.Subscription, error) {
	if len(b.Entries) == 0 {
		return nil, fmt.Errorf("batch %q has no subscriptions", b.Name)
	}
	subs := make([]subscription.Subscription, 0, len(b.Entries))
	var errs []error
	for i, e := range b.Entries {
		sub, err := subscription.Parse(e.Exchange, e.Base, e.Quote, e.InstrumentKind, e.Kind, e.Interval)
		if err != nil {
			errs = append(errs, fmt.Errorf("subscriptions[%d]: %w", i, err))
			continue
		}
		subs = append(subs, sub)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return subs, nil
}

// Batches is a standalone batches file, used to keep large subscription
// lists out of the main config.
type Batches struct {
	Batches []BatchConfig `yaml:"batches"`
}

// LoadBatches loads a batches file from the given path.
func LoadBatches(path string) (*Batches, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read batches file: %w", err)
	}
	var cfg Batches
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse batches file: %w", err)
	}
	return &cfg, nil
}
