package utils

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseByteSize parses a human-readable byte count such as "5M", "1.5G", or
// a bare integer (§6 --max-speed BYTES_PER_SEC, "accept suffixes K/M"),
// generalized from the teacher's ParseRateLimit to also accept G/T for
// headroom.
func ParseByteSize(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}

	if val, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return val, nil
	}

	if len(raw) < 2 {
		return 0, fmt.Errorf("invalid byte size: %q", raw)
	}

	upper := strings.ToUpper(raw)
	var numStr, suffix string
	switch {
	case strings.HasSuffix(upper, "KB"), strings.HasSuffix(upper, "MB"), strings.HasSuffix(upper, "GB"), strings.HasSuffix(upper, "TB"):
		numStr = raw[:len(raw)-2]
		suffix = upper[len(upper)-2:]
	default:
		numStr = raw[:len(raw)-1]
		suffix = upper[len(upper)-1:]
	}

	var value float64
	var err error
	if strings.Contains(numStr, ".") {
		value, err = strconv.ParseFloat(numStr, 64)
	} else {
		var iv int64
		iv, err = strconv.ParseInt(numStr, 10, 64)
		value = float64(iv)
	}
	if err != nil {
		return 0, fmt.Errorf("invalid numeric value in byte size: %q", numStr)
	}
	if value < 0 {
		return 0, fmt.Errorf("byte size cannot be negative: %v", value)
	}

	var multiplier int64
	switch suffix {
	case "B":
		multiplier = 1
	case "K", "KB":
		multiplier = 1024
	case "M", "MB":
		multiplier = 1024 * 1024
	case "G", "GB":
		multiplier = 1024 * 1024 * 1024
	case "T", "TB":
		multiplier = 1024 * 1024 * 1024 * 1024
	default:
		return 0, fmt.Errorf("unknown size suffix: %q", suffix)
	}

	return int64(value * float64(multiplier)), nil
}
