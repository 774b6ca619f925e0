package service

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// NormalizeValue produces a deterministic string token for an arbitrary
// scalar value. Floats are rendered at the same fixed 4-decimal precision
// used for storage, so fingerprints never flip on binary floating-point
// noise. Pure function; no side effects.
func NormalizeValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case float64:
		return normalizeFloat(val)
	case float32:
		return normalizeFloat(float64(val))
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	case string:
		return val
	case time.Time:
		return val.UTC().Format("2006-01-02")
	default:
		return fmt.Sprintf("%v", val)
	}
}

func normalizeFloat(f float64) string {
	if math.IsNaN(f) {
		return "NaN"
	}
	return strconv.FormatFloat(f, 'f', 4, 64)
}

// RoundNumeric rounds a float to the 4-decimal precision used by the
// numeric value column.
func RoundNumeric(f float64) float64 {
	return math.Round(f*10000) / 10000
}
