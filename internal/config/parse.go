package config

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ParseTimestamp reads unix seconds or an RFC3339 time. An empty value is now.
func ParseTimestamp(value string, now time.Time) (uint64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return uint64(now.Unix()), nil
	}
	if secs, err := strconv.ParseUint(value, 10, 64); err == nil {
		return secs, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp %q: want unix seconds or RFC3339", value)
	}
	if t.Unix() < 0 {
		return 0, fmt.Errorf("timestamp before epoch: %s", value)
	}
	return uint64(t.Unix()), nil
}

// ParseAmount converts a token amount into raw units. "1.5" with 6 decimals
// is 1500000; a "raw:" prefix takes the integer as is.
func ParseAmount(value string, decimals uint8) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if raw, ok := strings.CutPrefix(value, "raw:"); ok {
		out, ok := new(big.Int).SetString(raw, 10)
		if !ok || out.Sign() < 0 {
			return nil, fmt.Errorf("invalid raw amount: %s", raw)
		}
		return out, nil
	}

	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("negative amount: %s", value)
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("amount %s has more than %d decimals", value, decimals)
	}
	return scaled.BigInt(), nil
}
