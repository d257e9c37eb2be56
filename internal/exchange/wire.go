package exchange

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cryptonorm/internal/model"
)

// Fields is a decoded JSON object addressed by exact, case-sensitive keys.
// Venues such as Binance send keys that differ only by case ("e" and "E",
// "t" and "T"), which struct decoding would conflate.
type Fields map[string]json.RawMessage

func DecodeFields(b []byte) (Fields, error) {
	var f Fields
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, err
	}
	if f == nil {
		return nil, fmt.Errorf("expected JSON object")
	}
	return f, nil
}

// Raw returns the first present, non-null value among the alias keys.
func (f Fields) Raw(keys ...string) (json.RawMessage, bool) {
	for _, k := range keys {
		if v, ok := f[k]; ok && !isNull(v) {
			return v, true
		}
	}
	return nil, false
}

func (f Fields) Has(keys ...string) bool {
	_, ok := f.Raw(keys...)
	return ok
}

func (f Fields) need(keys []string) (json.RawMessage, error) {
	v, ok := f.Raw(keys...)
	if !ok {
		return nil, fmt.Errorf("missing field %q", keys[0])
	}
	return v, nil
}

// String accepts a JSON string or a bare literal such as a number.
func (f Fields) String(keys ...string) (string, error) {
	v, err := f.need(keys)
	if err != nil {
		return "", err
	}
	return RawString(v)
}

// StringOr returns def when none of the keys is present.
func (f Fields) StringOr(def string, keys ...string) string {
	v, ok := f.Raw(keys...)
	if !ok {
		return def
	}
	s, err := RawString(v)
	if err != nil {
		return def
	}
	return s
}

// Float accepts numbers and numeric strings.
func (f Fields) Float(keys ...string) (float64, error) {
	v, err := f.need(keys)
	if err != nil {
		return 0, err
	}
	n, err := RawFloat(v)
	if err != nil {
		return 0, fmt.Errorf("field %q: %w", keys[0], err)
	}
	return n, nil
}

func (f Fields) Int(keys ...string) (int64, error) {
	v, err := f.need(keys)
	if err != nil {
		return 0, err
	}
	s, err := RawString(v)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("field %q: %w", keys[0], err)
	}
	return n, nil
}

func (f Fields) Uint(keys ...string) (uint64, error) {
	v, err := f.need(keys)
	if err != nil {
		return 0, err
	}
	s, err := RawString(v)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("field %q: %w", keys[0], err)
	}
	return n, nil
}

func (f Fields) Bool(keys ...string) (bool, error) {
	v, err := f.need(keys)
	if err != nil {
		return false, err
	}
	var b bool
	if err := json.Unmarshal(v, &b); err != nil {
		return false, fmt.Errorf("field %q: %w", keys[0], err)
	}
	return b, nil
}

// Millis reads an epoch-millisecond timestamp given as a number or string.
func (f Fields) Millis(keys ...string) (time.Time, error) {
	ms, err := f.Int(keys...)
	if err != nil {
		return time.Time{}, err
	}
	return FromMillis(ms), nil
}

func (f Fields) Object(keys ...string) (Fields, error) {
	v, err := f.need(keys)
	if err != nil {
		return nil, err
	}
	inner, err := DecodeFields(v)
	if err != nil {
		return nil, fmt.Errorf("field %q: %w", keys[0], err)
	}
	return inner, nil
}

func (f Fields) Array(keys ...string) ([]json.RawMessage, error) {
	v, err := f.need(keys)
	if err != nil {
		return nil, err
	}
	var out []json.RawMessage
	if err := json.Unmarshal(v, &out); err != nil {
		return nil, fmt.Errorf("field %q: %w", keys[0], err)
	}
	return out, nil
}

// Levels reads a [[price, amount, ...], ...] array. Extra elements per level
// are ignored.
func (f Fields) Levels(keys ...string) ([]model.Level, error) {
	v, ok := f.Raw(keys...)
	if !ok {
		return nil, nil
	}
	return RawLevels(v)
}

func RawLevels(v json.RawMessage) ([]model.Level, error) {
	var rows [][]json.RawMessage
	if err := json.Unmarshal(v, &rows); err != nil {
		return nil, err
	}
	levels := make([]model.Level, 0, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			return nil, fmt.Errorf("level has %d elements", len(row))
		}
		price, err := RawFloat(row[0])
		if err != nil {
			return nil, err
		}
		amount, err := RawFloat(row[1])
		if err != nil {
			return nil, err
		}
		levels = append(levels, model.Level{Price: price, Amount: amount})
	}
	return levels, nil
}

func RawString(v json.RawMessage) (string, error) {
	v = bytes.TrimSpace(v)
	if len(v) > 0 && v[0] == '"' {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	if len(v) == 0 || v[0] == '{' || v[0] == '[' {
		return "", fmt.Errorf("expected scalar, got %q", string(v))
	}
	return string(v), nil
}

func RawFloat(v json.RawMessage) (float64, error) {
	s, err := RawString(v)
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// ParseUnixSeconds parses "1534614057.321597" style timestamps without going
// through float64, which would lose sub-millisecond precision.
func ParseUnixSeconds(s string) (time.Time, error) {
	whole, frac, _ := strings.Cut(strings.TrimSpace(s), ".")
	sec, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	var nanos int64
	if frac != "" {
		if len(frac) > 9 {
			frac = frac[:9]
		}
		frac += strings.Repeat("0", 9-len(frac))
		nanos, err = strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
	}
	return time.Unix(sec, nanos).UTC(), nil
}

// Decode wraps err as a *model.DecodeError for the frame.
func Decode(id model.ExchangeID, frame []byte, err error) error {
	return &model.DecodeError{Exchange: id, Payload: string(frame), Err: err}
}

func isNull(v json.RawMessage) bool {
	return string(bytes.TrimSpace(v)) == "null"
}
