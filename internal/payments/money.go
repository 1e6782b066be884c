package payments

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Money is an amount in minor currency units (cents). JSON carries major units.
type Money int64

// MaxAmount bounds a single invoice total or payment: one trillion major units.
const MaxAmount Money = 100_000_000_000_000

// Valid reports whether m is a positive amount no larger than MaxAmount.
func (m Money) Valid() bool {
	return m > 0 && m <= MaxAmount
}

// FromMajor converts a major-unit amount to Money, rounding half away from zero.
func FromMajor(v float64) Money {
	return Money(math.Round(v * 100))
}

// Major returns the amount in major units.
func (m Money) Major() float64 {
	return float64(m) / 100
}

func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*m = 0
		return nil
	}
	if len(data) > 1 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(s)
	}
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("invalid amount %q", string(data))
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("invalid amount %q", string(data))
	}
	if math.Abs(f) > MaxAmount.Major() {
		return fmt.Errorf("amount %q exceeds %s", string(data), MaxAmount)
	}
	*m = FromMajor(f)
	return nil
}
