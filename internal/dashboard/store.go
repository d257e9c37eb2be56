package dashboard

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"cryptonorm/internal/metrics"
)

// ring keeps the last limit items. It is safe for concurrent use.
type ring[T any] struct {
	mu    sync.RWMutex
	items []T
	limit int
}

func (r *ring[T]) add(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, v)
	if len(r.items) > r.limit {
		r.items = append([]T(nil), r.items[len(r.items)-r.limit:]...)
	}
}

func (r *ring[T]) snapshot() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]T, len(r.items))
	copy(out, r.items)
	return out
}

type metricRecord struct {
	Timestamp time.Time              `json:"timestamp"`
	Component string                 `json:"component"`
	Name      string                 `json:"name"`
	Value     interface{}            `json:"value"`
	Type      string                 `json:"type"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// metricStore receives every emitted metric through a metrics handler.
type metricStore struct {
	ring[metricRecord]
}

func newMetricStore(limit int) *metricStore {
	if limit <= 0 {
		limit = 200
	}
	return &metricStore{ring[metricRecord]{limit: limit}}
}

func (s *metricStore) handle(m metrics.Metric) {
	s.add(metricRecord{
		Timestamp: m.Timestamp,
		Component: m.Component,
		Name:      m.Name,
		Value:     m.Value,
		Type:      m.Type,
		Fields:    m.Fields,
	})
}

type logRecord struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Component string                 `json:"component,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// logStore is a logrus hook keeping recent info and above entries. Per-event
// debug logs are left out.
type logStore struct {
	ring[logRecord]
	enabled atomic.Bool
}

func newLogStore(limit int) *logStore {
	if limit <= 0 {
		limit = 200
	}
	s := &logStore{ring: ring[logRecord]{limit: limit}}
	s.enabled.Store(true)
	return s
}

func (s *logStore) Levels() []logrus.Level {
	return []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel, logrus.WarnLevel, logrus.InfoLevel}
}

func (s *logStore) Fire(entry *logrus.Entry) error {
	if !s.enabled.Load() {
		return nil
	}
	record := logRecord{
		Timestamp: entry.Time,
		Level:     entry.Level.String(),
		Message:   entry.Message,
	}
	if component, ok := entry.Data["component"].(string); ok {
		record.Component = component
	}
	for k, v := range entry.Data {
		if k == "component" {
			continue
		}
		if record.Fields == nil {
			record.Fields = make(map[string]interface{}, len(entry.Data))
		}
		switch val := v.(type) {
		case error:
			record.Fields[k] = val.Error()
		case fmt.Stringer:
			record.Fields[k] = val.String()
		default:
			record.Fields[k] = val
		}
	}
	s.add(record)
	return nil
}

func (s *logStore) close() {
	s.enabled.Store(false)
}
