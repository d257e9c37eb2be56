package logger

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

type channelStat struct {
	messages int64
	bytes    int64
}

var (
	errorCount int64
	warnCount  int64
	channels   sync.Map // map[string]*channelStat

	componentMu     sync.Mutex
	componentErrors = map[string]int64{}
)

func recordWarn(component string) {
	atomic.AddInt64(&warnCount, 1)
}

func recordError(component string) {
	atomic.AddInt64(&errorCount, 1)
	componentMu.Lock()
	componentErrors[component]++
	componentMu.Unlock()
}

// RecordChannelMessage counts one frame of size bytes read on the named
// channel, normally an exchange id.
func RecordChannelMessage(name string, size int) {
	v, _ := channels.LoadOrStore(name, &channelStat{})
	cs := v.(*channelStat)
	atomic.AddInt64(&cs.messages, 1)
	atomic.AddInt64(&cs.bytes, int64(size))
}

// ReportSink receives every runtime report, e.g. to forward it to a metrics
// backend.
type ReportSink func(ctx context.Context, fields Fields)

// StartReport begins periodic logging of runtime and channel statistics.
func StartReport(ctx context.Context, log *Log, interval time.Duration, sinks ...ReportSink) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fields := Snapshot()
				log.WithComponent("report").WithFields(fields).Info("runtime report")
				for _, sink := range sinks {
					sink(ctx, fields)
				}
			}
		}
	}()
}

// Snapshot returns the current counters. "channels" maps each channel name to
// its message and byte totals.
func Snapshot() Fields {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	channelData := map[string]map[string]int64{}
	channels.Range(func(k, v any) bool {
		cs := v.(*channelStat)
		channelData[k.(string)] = map[string]int64{
			"messages": atomic.LoadInt64(&cs.messages),
			"bytes":    atomic.LoadInt64(&cs.bytes),
		}
		return true
	})

	componentMu.Lock()
	names := make([]string, 0, len(componentErrors))
	for name := range componentErrors {
		names = append(names, name)
	}
	sort.Strings(names)
	errorsBy := make(map[string]int64, len(names))
	for _, name := range names {
		errorsBy[name] = componentErrors[name]
	}
	componentMu.Unlock()

	return Fields{
		"errors":           atomic.LoadInt64(&errorCount),
		"warns":            atomic.LoadInt64(&warnCount),
		"errors_component": errorsBy,
		"goroutines":       runtime.NumGoroutine(),
		"heap_mb":          int64(mem.HeapAlloc) / 1024 / 1024,
		"channels":         channelData,
	}
}
