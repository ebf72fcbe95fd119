package util

import (
	"fmt"
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

// Decimals is the number of fractional digits of one whole unit (1 unit = 10^8 base units).
const Decimals = 8

var maxUnits = fromUint64(math.MaxUint64)

func fromUint64(n uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(n), 0)
}

// FormatUnits renders base units as a decimal string, e.g. 150000000 -> "1.5".
func FormatUnits(amount uint64) string {
	return fromUint64(amount).Shift(-Decimals).String()
}

// FormatUnitsFixed renders base units with all 8 fractional digits, e.g. 1 -> "0.00000001".
func FormatUnitsFixed(amount uint64) string {
	return fromUint64(amount).Shift(-Decimals).StringFixed(Decimals)
}

// ParseUnits converts a decimal string to base units. More than 8 fractional
// digits, negative values and values above MaxUint64 are rejected.
func ParseUnits(s string) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("parse amount %q: negative", s)
	}
	base := d.Shift(Decimals)
	if !base.Equal(base.Truncate(0)) {
		return 0, fmt.Errorf("parse amount %q: more than %d decimals", s, Decimals)
	}
	if base.GreaterThan(maxUnits) {
		return 0, fmt.Errorf("parse amount %q: overflow", s)
	}
	return base.BigInt().Uint64(), nil
}
