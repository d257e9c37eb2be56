package metrics

import (
	"context"
	"time"

	"cryptonorm/logger"
)

// Sizer is a buffer whose occupancy can be sampled.
type Sizer interface {
	Name() string
	Len() int
	Cap() int
}

// StartChannelSizeMetrics emits an occupancy gauge for every buffer each
// interval until ctx is cancelled. When interval <= 0, a one-second cadence is
// used.
func StartChannelSizeMetrics(ctx context.Context, interval time.Duration, buffers ...Sizer) {
	if !IsFeatureEnabled(FeatureChannelSize) || len(buffers) == 0 {
		return
	}
	if interval <= 0 {
		interval = time.Second
	}

	log := logger.GetLogger()
	ticker := time.NewTicker(interval)
	component := "channel_buffers"

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, b := range buffers {
					EmitMetric(log, component, "stream_buffer_length", b.Len(), "gauge", logger.Fields{
						"buffer":   b.Name(),
						"capacity": b.Cap(),
					})
				}
			}
		}
	}()
}
