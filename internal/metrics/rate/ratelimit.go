// Package rate classifies exchange rejections that signal request throttling
// or an IP ban and records them as metrics.
package rate

import (
	"strings"

	"cryptonorm/logger"
)

// ReportRateLimitExceeded records a rate limit rejection for a connection
// group.
func ReportRateLimitExceeded(log *logger.Log, exchange, groupID string) {
	component := strings.ToLower(exchange) + "_stream"
	l := log.WithComponent(component)
	fields := logger.Fields{
		"exchange": strings.ToLower(exchange),
		"group":    groupID,
	}
	l.LogMetric(component, "rate_limit_exceeded", int64(1), "counter", fields)
	l.WithFields(fields).Warn("rate limit exceeded")
}

// ReportIPBan records an IP ban for a connection group.
func ReportIPBan(log *logger.Log, exchange, groupID string) {
	component := strings.ToLower(exchange) + "_stream"
	l := log.WithComponent(component)
	fields := logger.Fields{
		"exchange": strings.ToLower(exchange),
		"group":    groupID,
	}
	l.LogMetric(component, "ip_ban", int64(1), "counter", fields)
	l.WithFields(fields).Error("ip banned")
}

// DetectLimit inspects an exchange error message and reports whether it
// signals a rate limit or an IP ban. venue is the operator name such as
// "binance"; each words these differently.
func DetectLimit(venue, msg string) (rateLimit bool, ipBan bool) {
	lowerMsg := strings.ToLower(msg)
	switch strings.ToLower(venue) {
	case "binance":
		rateLimit = strings.Contains(lowerMsg, "too many requests") || strings.Contains(lowerMsg, "rate limit") || strings.Contains(lowerMsg, "too many messages")
		ipBan = strings.Contains(lowerMsg, "ip") && strings.Contains(lowerMsg, "ban")
	case "okx":
		rateLimit = strings.Contains(lowerMsg, "too many requests") || strings.Contains(lowerMsg, "frequency limit")
		ipBan = strings.Contains(lowerMsg, "ip") && (strings.Contains(lowerMsg, "blocked") || strings.Contains(lowerMsg, "ban"))
	case "bybit":
		ipBan = strings.Contains(lowerMsg, "ip rate limit") || (strings.Contains(lowerMsg, "ip") && strings.Contains(lowerMsg, "ban"))
		rateLimit = !ipBan && (strings.Contains(lowerMsg, "rate limit") || strings.Contains(lowerMsg, "too many requests") || strings.Contains(lowerMsg, "too many visits"))
	case "kraken":
		rateLimit = strings.Contains(lowerMsg, "exceeded msg rate") || strings.Contains(lowerMsg, "rate limit")
		ipBan = strings.Contains(lowerMsg, "ip") && strings.Contains(lowerMsg, "ban")
	default:
		rateLimit = strings.Contains(lowerMsg, "rate limit") || strings.Contains(lowerMsg, "too many requests")
		ipBan = strings.Contains(lowerMsg, "ip") && strings.Contains(lowerMsg, "ban")
	}
	return
}

// ReportLimitFromMessage records the matching metric when msg signals a rate
// limit or IP ban. It reports whether anything matched.
func ReportLimitFromMessage(log *logger.Log, venue, exchange, groupID, msg string) bool {
	rateLimit, ipBan := DetectLimit(venue, msg)
	if rateLimit {
		ReportRateLimitExceeded(log, exchange, groupID)
	}
	if ipBan {
		ReportIPBan(log, exchange, groupID)
	}
	return rateLimit || ipBan
}
