package rate

import (
	"testing"

	"cryptonorm/logger"
)

func TestReportRateLimitExceeded(t *testing.T) {
	log := logger.GetLogger()
	ReportRateLimitExceeded(log, "binance_spot", "group-1")
}

func TestReportIPBan(t *testing.T) {
	log := logger.GetLogger()
	ReportIPBan(log, "binance_spot", "group-1")
}

func TestDetectLimit(t *testing.T) {
	cases := []struct {
		venue string
		msg   string
		rate  bool
		ban   bool
	}{
		{"binance", "Too many requests", true, false},
		{"okx", "IP has been blocked for 60 seconds", false, true},
		{"coinbase", "429 Too Many Requests", true, false},
		{"bybit", "IP rate limit reached", false, true},
		{"kraken", "Exceeded msg rate", true, false},
		{"unknown", "hello world", false, false},
	}
	for _, c := range cases {
		rl, ban := DetectLimit(c.venue, c.msg)
		if rl != c.rate {
			t.Errorf("venue %s: expected rateLimit %v got %v", c.venue, c.rate, rl)
		}
		if ban != c.ban {
			t.Errorf("venue %s: expected ipBan %v got %v", c.venue, c.ban, ban)
		}
	}
}

func TestReportLimitFromMessage(t *testing.T) {
	log := logger.GetLogger()
	if ReportLimitFromMessage(log, "bybit", "bybit_spot", "g", "invalid topic") {
		t.Fatalf("unrelated message should not match")
	}
	if !ReportLimitFromMessage(log, "okx", "okx", "g", "Too many requests") {
		t.Fatalf("expected rate limit match")
	}
}
