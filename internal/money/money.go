package money

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Money is a monetary amount in minor units (cents). All arithmetic inside the
// engine happens on this representation; decimal strings appear only at the
// persistence boundary.
type Money = int64

// ErrMalformed indicates a decimal string that cannot be converted to minor units.
var ErrMalformed = errors.New("money: malformed amount")

// Parse converts a decimal string such as "10.00" or "-3.5" into minor units.
// At most two fraction digits are accepted.
func Parse(value string) (Money, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return 0, ErrMalformed
	}
	negative := false
	switch s[0] {
	case '-':
		negative = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	if s == "" {
		return 0, ErrMalformed
	}
	whole, frac := s, ""
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		whole, frac = s[:idx], s[idx+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 2 {
		return 0, fmt.Errorf("%w: %q has more than two fraction digits", ErrMalformed, value)
	}
	for len(frac) < 2 {
		frac += "0"
	}
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformed, value)
	}
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformed, value)
	}
	amount := units*100 + cents
	if negative {
		amount = -amount
	}
	return amount, nil
}

// String renders the amount as a decimal string with two fraction digits.
func String(m Money) string {
	sign := ""
	if m < 0 {
		sign = "-"
		m = -m
	}
	return fmt.Sprintf("%s%d.%02d", sign, m/100, m%100)
}

// Percent applies a perc[100] share expressed in basis points, rounding half
// up to the nearest minor unit. Percent(30_00, 1000) == 3_00.
func Percent(m Money, bps int64) Money {
	if m <= 0 || bps <= 0 {
		return 0
	}
	return (m*bps + 5000) / 10000
}

// Mul multiplies a unit amount by a quantity.
func Mul(m Money, qty int) Money {
	if qty <= 0 {
		return 0
	}
	return m * int64(qty)
}
