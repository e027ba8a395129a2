// Package currency implements the two-currency price display preference.
// Formatting is pure: every function takes the configuration explicitly so
// nothing depends on ambient state.
package currency

import (
	"fmt"
	"strings"
)

// Currency is a supported display currency.
type Currency string

const (
	EUR Currency = "EUR"
	USD Currency = "USD"
)

// Valid reports whether c is one of the two supported currencies.
func (c Currency) Valid() bool {
	return c == EUR || c == USD
}

// Toggle flips between the two supported currencies.
func Toggle(c Currency) Currency {
	if c == EUR {
		return USD
	}
	return EUR
}

// Parse normalizes a currency string, returning ok=false for anything
// outside the supported set.
func Parse(s string) (Currency, bool) {
	c := Currency(strings.ToUpper(strings.TrimSpace(s)))
	return c, c.Valid()
}

// Config carries the display configuration injected into formatting calls.
type Config struct {
	// Default applies when no preference and no locale hint is available.
	Default Currency
}

// DefaultConfig prefers EUR, matching the primary audience.
func DefaultConfig() Config {
	return Config{Default: EUR}
}

// euroLocales are the language tags mapped to EUR display.
var euroLocales = map[string]struct{}{
	"fr": {}, "de": {}, "es": {}, "it": {}, "pt": {}, "nl": {}, "fi": {}, "el": {},
}

// DefaultFor resolves the starting currency from an Accept-Language style
// locale, falling back to the configured default.
func DefaultFor(cfg Config, locale string) Currency {
	lang := strings.ToLower(strings.TrimSpace(locale))
	if i := strings.IndexAny(lang, "-_,;"); i > 0 {
		lang = lang[:i]
	}
	if lang == "" {
		return cfg.Default
	}
	if _, ok := euroLocales[lang]; ok {
		return EUR
	}
	if lang == "en" {
		return USD
	}
	return cfg.Default
}

// FormatPrice renders an amount in cents using the locale conventions of the
// currency: "9,99 €" for EUR, "$9.99" for USD.
func FormatPrice(c Currency, cents int64) string {
	negative := cents < 0
	if negative {
		cents = -cents
	}
	units := cents / 100
	rem := cents % 100

	var s string
	switch c {
	case EUR:
		s = fmt.Sprintf("%s,%02d €", groupDigits(units, "."), rem)
	default:
		s = fmt.Sprintf("$%s.%02d", groupDigits(units, ","), rem)
	}
	if negative {
		s = "-" + s
	}
	return s
}

// FormatSavings renders the yearly-versus-monthly savings line, e.g.
// "Économisez 23,88 €" / "Save $25.08".
func FormatSavings(c Currency, cents int64) string {
	if cents <= 0 {
		return ""
	}
	if c == EUR {
		return "Économisez " + FormatPrice(c, cents)
	}
	return "Save " + FormatPrice(c, cents)
}

// groupDigits inserts a thousands separator into a non-negative integer.
func groupDigits(n int64, sep string) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteString(sep)
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
