package money

import (
	"errors"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidRate   = errors.New("invalid rate")
)

var hundred = decimal.NewFromInt(100)

// Parse reads a whole-unit amount such as "50000", "50.000", "50,000" or "Rp 50.000".
// Separators are only accepted between groups of three digits.
func Parse(input string) (int64, error) {
	trimmed := strings.TrimSpace(input)
	trimmed = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(trimmed, "Rp"), "rp"))
	if trimmed == "" {
		return 0, ErrInvalidAmount
	}
	sign := int64(1)
	switch trimmed[0] {
	case '-':
		sign = -1
		trimmed = trimmed[1:]
	case '+':
		trimmed = trimmed[1:]
	}
	groups := strings.FieldsFunc(trimmed, func(r rune) bool { return r == '.' || r == ',' })
	if len(groups) == 0 {
		return 0, ErrInvalidAmount
	}
	if len(groups) > 1 {
		if strings.Count(trimmed, ".")+strings.Count(trimmed, ",") != len(groups)-1 {
			return 0, ErrInvalidAmount
		}
		if len(groups[0]) > 3 {
			return 0, ErrInvalidAmount
		}
		for _, group := range groups[1:] {
			if len(group) != 3 {
				return 0, ErrInvalidAmount
			}
		}
	}
	digits := strings.Join(groups, "")
	if !isDigits(digits) {
		return 0, ErrInvalidAmount
	}
	value, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	return sign * value, nil
}

// Format renders a whole-unit amount with dot thousands separators, e.g. 146000 -> "146.000".
func Format(value int64) string {
	negative := value < 0
	if negative {
		value = -value
	}
	raw := strconv.FormatInt(value, 10)
	var b strings.Builder
	lead := len(raw) % 3
	if lead > 0 {
		b.WriteString(raw[:lead])
	}
	for i := lead; i < len(raw); i += 3 {
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(raw[i : i+3])
	}
	if negative {
		return "-" + b.String()
	}
	return b.String()
}

func FormatRupiah(value int64) string {
	return "Rp " + Format(value)
}

// ParseRate parses a percentage in [0, 100] with at most two decimals.
func ParseRate(raw string) (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, ErrInvalidRate
	}
	if !ValidRate(rate) || rate.Exponent() < -2 {
		return decimal.Zero, ErrInvalidRate
	}
	return rate, nil
}

func ValidRate(rate decimal.Decimal) bool {
	return !rate.IsNegative() && !rate.GreaterThan(hundred)
}

// Percent returns amount * rate / 100 rounded half-to-even to whole units.
func Percent(amount int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(rate).Div(hundred).RoundBank(0).IntPart()
}

func isDigits(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
