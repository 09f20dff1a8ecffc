package ledger

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// Money is represented in micro-units (1e-6 of a currency unit) so that
// pro-rata token splits stay exact integers. No floats.
type Money struct {
	Currency string `json:"currency"`
	Amount   int64  `json:"amount"` // micro-units
}

// MicroPerUnit is the number of micro-units in one currency unit.
const MicroPerUnit = 1_000_000

func (m Money) IsPositive() bool { return m.Amount > 0 }
func (m Money) IsZero() bool     { return m.Amount == 0 }

func (m Money) String() string {
	return FormatAmount(m.Amount) + " " + m.Currency
}

// ParseAmount converts a decimal string ("100", "99.99", "0.0075") into
// micro-units. At most six fractional digits are accepted.
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty amount", ErrValidation)
	}
	neg := false
	switch s[0] {
	case '+':
		s = s[1:]
	case '-':
		neg = true
		s = s[1:]
	}
	intPart, fracPart, hasFrac := strings.Cut(s, ".")
	if intPart == "" && fracPart == "" {
		return 0, fmt.Errorf("%w: malformed amount %q", ErrValidation, s)
	}
	if intPart == "" {
		intPart = "0"
	}
	if hasFrac && fracPart == "" {
		return 0, fmt.Errorf("%w: malformed amount %q", ErrValidation, s)
	}
	if len(fracPart) > 6 {
		return 0, fmt.Errorf("%w: amount %q exceeds 6 decimal places", ErrValidation, s)
	}
	for _, part := range []string{intPart, fracPart} {
		for _, r := range part {
			if r < '0' || r > '9' {
				return 0, fmt.Errorf("%w: malformed amount %q", ErrValidation, s)
			}
		}
	}
	units, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: amount %q out of range", ErrValidation, s)
	}
	var frac int64
	if fracPart != "" {
		padded := fracPart + strings.Repeat("0", 6-len(fracPart))
		frac, _ = strconv.ParseInt(padded, 10, 64)
	}
	if units > (math.MaxInt64-frac)/MicroPerUnit {
		return 0, fmt.Errorf("%w: amount %q out of range", ErrValidation, s)
	}
	v := units*MicroPerUnit + frac
	if neg {
		v = -v
	}
	return v, nil
}

// FormatAmount renders micro-units as a decimal string with trailing
// zeros trimmed: 7500 -> "0.0075", 100000000 -> "100".
func FormatAmount(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	units := v / MicroPerUnit
	frac := v % MicroPerUnit
	if frac == 0 {
		return sign + strconv.FormatInt(units, 10)
	}
	fs := strings.TrimRight(fmt.Sprintf("%06d", frac), "0")
	return sign + strconv.FormatInt(units, 10) + "." + fs
}

// shareOf returns amount*pct/100, truncating toward zero. Intermediates
// use big.Int so large royalty amounts cannot overflow.
func shareOf(amount int64, pct int) int64 {
	x := new(big.Int).SetInt64(amount)
	x.Mul(x, big.NewInt(int64(pct)))
	x.Quo(x, big.NewInt(100))
	return x.Int64()
}

// proRata returns pool*part/whole, truncating toward zero; 0 when the
// whole is not positive.
func proRata(pool, part, whole int64) int64 {
	if whole <= 0 {
		return 0
	}
	x := new(big.Int).SetInt64(pool)
	x.Mul(x, big.NewInt(part))
	x.Quo(x, big.NewInt(whole))
	return x.Int64()
}

// pctOf returns round(100*part/whole) with halves rounding up; 0 when the
// whole is not positive, so an empty tally never divides by zero.
func pctOf(part, whole int64) int64 {
	if whole <= 0 {
		return 0
	}
	num := new(big.Int).SetInt64(part)
	num.Mul(num, big.NewInt(200))
	num.Add(num, big.NewInt(whole))
	den := new(big.Int).SetInt64(whole)
	den.Mul(den, big.NewInt(2))
	num.Quo(num, den)
	return num.Int64()
}
