package model

import (
	"fmt"
	"strings"
	"time"
)

// Interval is a candle period.
type Interval uint8

const (
	Minute1 Interval = iota + 1
	Minute3
	Minute5
	Minute15
	Minute30
	Hour1
	Hour2
	Hour4
	Hour6
	Hour8
	Hour12
	Day1
	Day3
	Week1
	Month1
	Month3
)

var intervalNames = [...]string{
	Minute1:  "1m",
	Minute3:  "3m",
	Minute5:  "5m",
	Minute15: "15m",
	Minute30: "30m",
	Hour1:    "1h",
	Hour2:    "2h",
	Hour4:    "4h",
	Hour6:    "6h",
	Hour8:    "8h",
	Hour12:   "12h",
	Day1:     "1d",
	Day3:     "3d",
	Week1:    "1w",
	Month1:   "1M",
	Month3:   "3M",
}

// Intervals returns the full enumeration, shortest first.
func Intervals() []Interval {
	out := make([]Interval, 0, len(intervalNames)-1)
	for i := Minute1; i <= Month3; i++ {
		out = append(out, i)
	}
	return out
}

func (i Interval) Valid() bool {
	return i >= Minute1 && i <= Month3
}

func (i Interval) String() string {
	if !i.Valid() {
		return "unknown"
	}
	return intervalNames[i]
}

// ParseInterval parses "1m".."3M". Minutes and months differ only by case, so
// the "m"/"M" suffix is matched exactly; the other units are case-insensitive.
func ParseInterval(s string) (Interval, error) {
	s = strings.TrimSpace(s)
	for i := Minute1; i <= Month3; i++ {
		if intervalNames[i] == s {
			return i, nil
		}
	}
	lower := strings.ToLower(s)
	if !strings.HasSuffix(lower, "m") {
		for i := Minute1; i <= Month3; i++ {
			if intervalNames[i] == lower {
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("invalid interval %q", s)
}

func (i Interval) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

func (i *Interval) UnmarshalText(b []byte) error {
	parsed, err := ParseInterval(string(b))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// Next returns the open time of the candle following the one opened at start.
// Month based intervals follow the calendar.
func (i Interval) Next(start time.Time) time.Time {
	switch i {
	case Minute1:
		return start.Add(time.Minute)
	case Minute3:
		return start.Add(3 * time.Minute)
	case Minute5:
		return start.Add(5 * time.Minute)
	case Minute15:
		return start.Add(15 * time.Minute)
	case Minute30:
		return start.Add(30 * time.Minute)
	case Hour1:
		return start.Add(time.Hour)
	case Hour2:
		return start.Add(2 * time.Hour)
	case Hour4:
		return start.Add(4 * time.Hour)
	case Hour6:
		return start.Add(6 * time.Hour)
	case Hour8:
		return start.Add(8 * time.Hour)
	case Hour12:
		return start.Add(12 * time.Hour)
	case Day1:
		return start.AddDate(0, 0, 1)
	case Day3:
		return start.AddDate(0, 0, 3)
	case Week1:
		return start.AddDate(0, 0, 7)
	case Month1:
		return start.AddDate(0, 1, 0)
	case Month3:
		return start.AddDate(0, 3, 0)
	default:
		return start
	}
}

// CloseTime is the last millisecond covered by the candle opened at start,
// matching the close time venues report for klines.
func (i Interval) CloseTime(start time.Time) time.Time {
	return i.Next(start).Add(-time.Millisecond)
}
