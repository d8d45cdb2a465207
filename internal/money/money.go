// Package money renders monetary amounts for display. Amounts are carried as
// float64 everywhere else and are only rounded here.
package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

var symbols = map[string]string{
	"INR": "₹",
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
}

// Round returns amount rounded half away from zero to two places.
func Round(amount float64) decimal.Decimal {
	return decimal.NewFromFloat(amount).Round(2)
}

// Format renders amount with the currency symbol and digit grouping used for
// that currency. INR groups as 1,23,45,678.90, everything else as 12,345,678.90.
func Format(amount float64, currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	prefix, ok := symbols[currency]
	if !ok {
		prefix = codePrefix(currency)
	}
	return format(amount, currency, prefix)
}

// FormatCode is Format with the ISO code instead of the symbol, for output
// that cannot render non-latin glyphs.
func FormatCode(amount float64, currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	return format(amount, currency, codePrefix(currency))
}

func codePrefix(currency string) string {
	if currency == "" {
		return ""
	}
	return currency + " "
}

func format(amount float64, currency, prefix string) string {
	d := Round(amount)

	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}

	whole, frac, _ := strings.Cut(d.StringFixed(2), ".")
	if currency == "INR" {
		whole = groupIndian(whole)
	} else {
		whole = groupThousands(whole)
	}
	return sign + prefix + whole + "." + frac
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// groupIndian keeps the last three digits together and pairs the rest.
func groupIndian(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	rest, last := digits[:len(digits)-3], digits[len(digits)-3:]
	var parts []string
	for len(rest) > 2 {
		parts = append([]string{rest[len(rest)-2:]}, parts...)
		rest = rest[:len(rest)-2]
	}
	if rest != "" {
		parts = append([]string{rest}, parts...)
	}
	return strings.Join(parts, ",") + "," + last
}
