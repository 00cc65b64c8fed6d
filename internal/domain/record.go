package domain

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// RawRecord is one row of an external table with its columns left untyped.
type RawRecord map[string]any

func (r RawRecord) Has(key string) bool {
	return r.String(key) != ""
}

func (r RawRecord) String(key string) string {
	if r == nil {
		return ""
	}
	return ToString(r[key])
}

// Number coerces the column to a finite float, defaulting to 0.
func (r RawRecord) Number(key string) float64 {
	if r == nil {
		return 0
	}
	return ToNumber(r[key])
}

// FirstString returns the first non-empty value among keys.
func (r RawRecord) FirstString(keys ...string) string {
	for _, key := range keys {
		if v := r.String(key); v != "" {
			return v
		}
	}
	return ""
}

// FirstNumber returns the first non-zero value among keys.
func (r RawRecord) FirstNumber(keys ...string) float64 {
	for _, key := range keys {
		if v := r.Number(key); v != 0 {
			return v
		}
	}
	return 0
}

func (r RawRecord) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r RawRecord) Clone() RawRecord {
	out := make(RawRecord, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func ToString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case []byte:
		return strings.TrimSpace(string(val))
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return ""
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case bool:
		return strconv.FormatBool(val)
	case json.Number:
		return val.String()
	case time.Time:
		if val.IsZero() {
			return ""
		}
		return val.UTC().Format(time.RFC3339)
	case interface{ String() string }:
		return strings.TrimSpace(val.String())
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(raw)
	}
}

func ToNumber(v any) float64 {
	var out float64
	switch val := v.(type) {
	case nil:
		return 0
	case float64:
		out = val
	case float32:
		out = float64(val)
	case int:
		out = float64(val)
	case int8:
		out = float64(val)
	case int16:
		out = float64(val)
	case int32:
		out = float64(val)
	case int64:
		out = float64(val)
	case uint:
		out = float64(val)
	case uint32:
		out = float64(val)
	case uint64:
		out = float64(val)
	case bool:
		if val {
			out = 1
		}
	case json.Number:
		parsed, err := val.Float64()
		if err != nil {
			return 0
		}
		out = parsed
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "" {
			return 0
		}
		parsed, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0
		}
		out = parsed
	default:
		return 0
	}
	if math.IsNaN(out) || math.IsInf(out, 0) {
		return 0
	}
	return out
}
