package metrics

import "cryptonorm/logger"

// Metric names emitted by connection groups.
const (
	MetricEventsDelivered      = "events_delivered"
	MetricTransformErrors      = "transform_errors"
	MetricUnidentifiable       = "unidentifiable_messages"
	MetricReconnects           = "reconnects"
	MetricGroupFailed          = "group_failed"
	MetricSubscriptionRejected = "subscription_rejected"
)

// EmitStreamMetric logs and emits a single occurrence of a connection group
// metric. Empty metadata values are left out of the fields.
func EmitStreamMetric(log *logger.Log, metric, exchange, groupID, reason string) {
	fields := logger.Fields{}
	if exchange != "" {
		fields["exchange"] = exchange
	}
	if groupID != "" {
		fields["group"] = groupID
	}
	if reason != "" {
		fields["reason"] = reason
	}

	EmitMetric(log, "stream", metric, 1, "counter", fields)
}
