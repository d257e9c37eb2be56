package metrics

import (
	"strings"
	"sync/atomic"

	"cryptonorm/config"
)

// Feature names an optional family of metrics.
type Feature int

const (
	FeatureChannelSize Feature = iota
	FeatureCloudWatch
)

type featureFlags struct {
	channelSize bool
	cloudWatch  bool
}

var features atomic.Pointer[featureFlags]

func init() {
	features.Store(&featureFlags{channelSize: true})
}

// Configure applies the metrics section of the config.
func Configure(cfg config.MetricsConfig) {
	features.Store(&featureFlags{
		channelSize: cfg.ChannelSize,
		cloudWatch:  cfg.CloudWatch.Enabled,
	})
}

func IsFeatureEnabled(f Feature) bool {
	flags := features.Load()
	switch f {
	case FeatureChannelSize:
		return flags.channelSize
	case FeatureCloudWatch:
		return flags.cloudWatch
	default:
		return false
	}
}

// featureForMetric maps a metric name to the feature that gates it.
func featureForMetric(name string) (Feature, bool) {
	if strings.HasSuffix(name, "_buffer_length") {
		return FeatureChannelSize, true
	}
	return 0, false
}
