package talos

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Placeholder used wherever a numeric field is absent or unparseable.
const emDash = "—"

// fmtQty renders a quantity with fixed 8-decimal precision. Unparseable
// input is passed through verbatim so odd venue payloads stay debuggable.
func fmtQty(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "0"
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return trimmed
	}
	return d.StringFixed(8)
}

// fmtPx renders a price with thousands separators: six decimals for
// sub-unit prices, two otherwise.
func fmtPx(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return emDash
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return trimmed
	}
	places := int32(2)
	if d.Abs().LessThan(decimal.NewFromInt(1)) {
		places = 6
	}
	return groupThousands(d.StringFixed(places))
}

// fmt2 renders a plain two-decimal number with thousands separators.
func fmt2(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return emDash
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return emDash
	}
	return groupThousands(d.StringFixed(2))
}

// fmtUSD renders a dollar amount: $1,234.56.
func fmtUSD(d decimal.Decimal) string {
	return "$" + groupThousands(d.StringFixed(2))
}

// fmtAmount renders an amount in its currency; USD-family quote currencies
// use the dollar format, everything else is an 8-decimal quantity with a
// currency suffix.
func fmtAmount(d decimal.Decimal, currency string) string {
	c := strings.ToUpper(strings.TrimSpace(currency))
	switch c {
	case "USD", "USDT", "USDC":
		return fmtUSD(d)
	}
	if c == "" {
		c = "-"
	}
	return d.StringFixed(8) + " " + c
}

// compactNum renders large magnitudes as 1.23K / 4.56M / 7.89B and falls
// back to the two-decimal form below a thousand.
func compactNum(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return emDash
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return emDash
	}
	abs := d.Abs()
	switch {
	case abs.GreaterThanOrEqual(decimal.New(1, 9)):
		return d.Div(decimal.New(1, 9)).StringFixed(2) + "B"
	case abs.GreaterThanOrEqual(decimal.New(1, 6)):
		return d.Div(decimal.New(1, 6)).StringFixed(2) + "M"
	case abs.GreaterThanOrEqual(decimal.New(1, 3)):
		return d.Div(decimal.New(1, 3)).StringFixed(2) + "K"
	}
	return groupThousands(d.StringFixed(2))
}

// groupThousands inserts comma separators into the integer part of a
// fixed-point decimal string.
func groupThousands(s string) string {
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	intPart := s
	fracPart := ""
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		intPart, fracPart = s[:idx], s[idx:]
	}
	if len(intPart) > 3 {
		var b strings.Builder
		lead := len(intPart) % 3
		if lead > 0 {
			b.WriteString(intPart[:lead])
		}
		for i := lead; i < len(intPart); i += 3 {
			if b.Len() > 0 {
				b.WriteByte(',')
			}
			b.WriteString(intPart[i : i+3])
		}
		intPart = b.String()
	}
	out := intPart + fracPart
	if neg {
		out = "-" + out
	}
	return out
}

// shortID abbreviates long order and session identifiers to their first
// eight characters plus an ellipsis.
func shortID(s string) string {
	const n = 8
	if s == "" {
		return "-"
	}
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

// fmtDuration renders an elapsed duration as "1h 2m 3s", dropping leading
// zero components.
func fmtDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Seconds())
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	switch {
	case h > 0:
		return fmtInt(h) + "h " + fmtInt(m) + "m " + fmtInt(s) + "s"
	case m > 0:
		return fmtInt(m) + "m " + fmtInt(s) + "s"
	default:
		return fmtInt(s) + "s"
	}
}

func fmtInt(n int) string {
	return decimal.NewFromInt(int64(n)).String()
}

// ordTypeName maps FIX order-type codes to readable names. Unknown values
// pass through untouched.
func ordTypeName(ot string) string {
	names := map[string]string{
		"1": "Market",
		"2": "Limit",
		"3": "Stop",
		"4": "StopLimit",
		"K": "Mkt→Limit",
		"P": "Pegged",
	}
	s := strings.TrimSpace(ot)
	if s == "" {
		return "-"
	}
	if name, ok := names[s]; ok {
		return name
	}
	return s
}

// ordTypeAbbr maps order-type codes and venue names to short column labels.
func ordTypeAbbr(ot string) string {
	abbr := map[string]string{
		"1": "MKT", "Market": "MKT",
		"2": "LMT", "Limit": "LMT", "LimitAllIn": "LMT-AI",
		"3": "STP", "Stop": "STP",
		"4": "STPL", "StopLimit": "STPL",
		"K": "M->L", "P": "PEG",
	}
	s := strings.TrimSpace(ot)
	if a, ok := abbr[s]; ok {
		return a
	}
	if len(s) > 8 {
		s = s[:8]
	}
	if s == "" {
		return "-"
	}
	return s
}

// detectAlgo recognises execution-algo hints inside a strategy field.
func detectAlgo(hint string) string {
	txt := strings.ToUpper(strings.TrimSpace(hint))
	if txt == "" {
		return ""
	}
	switch {
	case strings.Contains(txt, "TWAP"):
		return "TWAP"
	case strings.Contains(txt, "VWAP"):
		return "VWAP"
	case strings.Contains(txt, "POV"):
		return "POV"
	case strings.Contains(txt, "ICE"):
		return "ICEBERG"
	case strings.Contains(txt, "PEG"):
		return "PEG"
	}
	return ""
}

// sideLetter collapses a side string to a single column letter.
func sideLetter(side string) string {
	s := strings.ToLower(strings.TrimSpace(side))
	switch {
	case s == "":
		return "-"
	case strings.HasPrefix(s, "b"):
		return "B"
	case strings.HasPrefix(s, "s"):
		return "S"
	}
	return strings.ToUpper(s[:1])
}

// abbrUser shortens "Jane Doe – api" style user names to initials plus
// suffix for narrow table columns.
func abbrUser(name string) string {
	s := strings.TrimSpace(name)
	if s == "" {
		return "-"
	}
	sep := ""
	if strings.Contains(s, "–") {
		sep = "–"
	} else if strings.Contains(s, " - ") {
		sep = " - "
	}
	base, suffix := s, ""
	if sep != "" {
		parts := strings.SplitN(s, sep, 2)
		base = strings.TrimSpace(parts[0])
		if len(parts) > 1 {
			suffix = strings.TrimSpace(parts[1])
		}
	}
	var initials strings.Builder
	for _, word := range strings.Fields(base) {
		r := rune(word[0])
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			initials.WriteString(strings.ToUpper(word[:1]))
		}
	}
	out := initials.String()
	if out == "" {
		out = base
	}
	if suffix != "" {
		dash := " - "
		if sep == "–" {
			dash = " – "
		}
		return out + dash + suffix
	}
	return out
}

// fit trims a cell to width, preserving alignment with a leading or
// trailing ellipsis.
func fit(s string, width int, alignRight bool) string {
	if width <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	if width == 1 {
		return "…"
	}
	if alignRight {
		return "…" + string(runes[len(runes)-(width-1):])
	}
	return string(runes[:width-1]) + "…"
}

// pad left- or right-aligns a cell within width using spaces.
func pad(s string, width int, alignRight bool) string {
	gap := width - len([]rune(s))
	if gap <= 0 {
		return s
	}
	spaces := strings.Repeat(" ", gap)
	if alignRight {
		return spaces + s
	}
	return s + spaces
}
