package dashboard

import (
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"cryptonorm/internal/metrics"
)

func TestMetricStoreLimit(t *testing.T) {
	store := newMetricStore(2)
	for i := 0; i < 5; i++ {
		store.handle(metrics.Metric{Timestamp: time.Unix(int64(i), 0), Name: "events_delivered", Value: i})
	}

	snapshot := store.snapshot()
	if len(snapshot) != 2 {
		t.Fatalf("expected 2 metrics in snapshot, got %d", len(snapshot))
	}
	if snapshot[0].Value != 3 || snapshot[1].Value != 4 {
		t.Fatalf("unexpected metrics retained: %#v", snapshot)
	}
}

func TestLogStoreCapturesEntries(t *testing.T) {
	store := newLogStore(3)
	entry := logrus.NewEntry(logrus.New())
	entry.Time = time.Unix(10, 0)
	entry.Level = logrus.WarnLevel
	entry.Message = "connection lost, reconnecting"
	entry.Data = logrus.Fields{"component": "connection_group", "exchange": "kraken", "error": errors.New("eof")}

	if err := store.Fire(entry); err != nil {
		t.Fatalf("store.Fire returned error: %v", err)
	}

	snapshot := store.snapshot()
	if len(snapshot) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(snapshot))
	}
	got := snapshot[0]
	if got.Component != "connection_group" || got.Fields["exchange"] != "kraken" || got.Fields["error"] != "eof" {
		t.Fatalf("unexpected snapshot data: %#v", got)
	}
	if _, ok := got.Fields["component"]; ok {
		t.Fatalf("component duplicated in fields")
	}
}

func TestLogStoreSkipsDebug(t *testing.T) {
	for _, lvl := range newLogStore(1).Levels() {
		if lvl == logrus.DebugLevel || lvl == logrus.TraceLevel {
			t.Fatalf("log store hooks %s", lvl)
		}
	}
}

func TestLogStoreRespectsLimitAndClose(t *testing.T) {
	store := newLogStore(2)
	for i := 0; i < 4; i++ {
		entry := logrus.NewEntry(logrus.New())
		entry.Message = "msg"
		entry.Level = logrus.InfoLevel
		entry.Data = logrus.Fields{"index": i}
		if err := store.Fire(entry); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if len(store.snapshot()) != 2 {
		t.Fatalf("expected 2 entries after pruning, got %d", len(store.snapshot()))
	}

	store.close()
	entry := logrus.NewEntry(logrus.New())
	entry.Message = "ignored"
	if err := store.Fire(entry); err != nil {
		t.Fatalf("unexpected error after close: %v", err)
	}
	if len(store.snapshot()) != 2 {
		t.Fatalf("store accepted entries after close")
	}
}
