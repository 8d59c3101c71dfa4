package orchestrator

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/TemirB/musicnft/internal/domain"
)

// plainDecimal is digits with an optional fractional part. Exponents, signs
// and bare dots are rejected.
var plainDecimal = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// ParsePrice converts a display amount like "5.50" into smallest units.
// More fractional digits than decimals are accepted only when they are zeros.
func ParsePrice(s string, decimals int32) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: price is required", domain.ErrValidation)
	}
	if !plainDecimal.MatchString(s) {
		return nil, fmt.Errorf("%w: price %q is not a plain decimal", domain.ErrValidation, s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: price %q is not a decimal", domain.ErrValidation, s)
	}
	if d.Sign() <= 0 {
		return nil, fmt.Errorf("%w: price must be greater than zero", domain.ErrValidation)
	}
	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("%w: price %q has more than %d decimal places", domain.ErrValidation, s, decimals)
	}
	return scaled.BigInt(), nil
}

// FormatUnits renders smallest units with exactly decimals fractional digits.
func FormatUnits(v *big.Int, decimals int32) string {
	if v == nil {
		v = new(big.Int)
	}
	return decimal.NewFromBigInt(v, -decimals).StringFixed(decimals)
}
