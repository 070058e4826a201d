package talos

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ClassifierConfig carries the per-watcher filter and reporting settings.
type ClassifierConfig struct {
	// AccountLabel seeds the banner label; it may also be learned later from
	// the first event's account field.
	AccountLabel string
	// ExcludeUsers drops events whose request user matches, case-insensitively.
	ExcludeUsers []string
	// SubAccounts, when non-empty, is an allow-list on the event account.
	SubAccounts []string
	// PerExecFills enables a notification per partial fill.
	PerExecFills bool
	// QuoteQtyOverrides forces the quote-vs-base quantity interpretation for
	// specific symbols where the venue heuristic is known to be wrong.
	QuoteQtyOverrides map[string]bool
}

// Classifier maps execution reports to at most one notification each and
// owns the filled-order dedup set for a watcher's lifetime. It is used from
// a single watcher goroutine and needs no locking.
type Classifier struct {
	excludeUpper   map[string]struct{}
	filterUpper    map[string]struct{}
	quoteOverrides map[string]bool
	perExecFills   bool

	accountLabel string

	// filledAnnounced only ever grows: an order id is added exactly once, the
	// first time a Filled or zero-leaves transition is observed for it.
	filledAnnounced map[string]struct{}
}

// NewClassifier builds a classifier from the watcher configuration.
func NewClassifier(cfg ClassifierConfig) *Classifier {
	c := &Classifier{
		excludeUpper:    make(map[string]struct{}, len(cfg.ExcludeUsers)),
		filterUpper:     make(map[string]struct{}, len(cfg.SubAccounts)),
		quoteOverrides:  make(map[string]bool, len(cfg.QuoteQtyOverrides)),
		perExecFills:    cfg.PerExecFills,
		accountLabel:    strings.TrimSpace(cfg.AccountLabel),
		filledAnnounced: make(map[string]struct{}),
	}
	for _, u := range cfg.ExcludeUsers {
		if trimmed := strings.ToUpper(strings.TrimSpace(u)); trimmed != "" {
			c.excludeUpper[trimmed] = struct{}{}
		}
	}
	for _, a := range cfg.SubAccounts {
		if trimmed := strings.ToUpper(strings.TrimSpace(a)); trimmed != "" {
			c.filterUpper[trimmed] = struct{}{}
		}
	}
	for sym, inQuote := range cfg.QuoteQtyOverrides {
		if trimmed := strings.ToUpper(strings.TrimSpace(sym)); trimmed != "" {
			c.quoteOverrides[trimmed] = inQuote
		}
	}
	return c
}

// AccountLabel returns the current banner label.
func (c *Classifier) AccountLabel() string { return c.accountLabel }

// SetAccountLabel records a label learned from the stream. Only the first
// non-empty value sticks.
func (c *Classifier) SetAccountLabel(label string) {
	if c.accountLabel == "" {
		c.accountLabel = strings.TrimSpace(label)
	}
}

// Classify maps one execution report to zero or one notification. The
// priority table is strict first-match-wins: New, then Canceled, then
// per-fill Trade, then Filled. The boolean reports whether a notification
// should be sent.
func (c *Classifier) Classify(ev ExecutionReport) (string, bool) {
	if len(c.filterUpper) > 0 {
		if _, ok := c.filterUpper[strings.ToUpper(strings.TrimSpace(ev.Account))]; !ok {
			return "", false
		}
	}
	if len(c.excludeUpper) > 0 {
		if _, ok := c.excludeUpper[strings.ToUpper(strings.TrimSpace(ev.User))]; ok {
			return "", false
		}
	}

	switch {
	case ev.ExecType == ExecTypeNew || ev.OrdStatus == OrdStatusNew:
		return c.newOrderText(ev), true
	case ev.OrdStatus == OrdStatusCanceled || ev.ExecType == ExecTypeCanceled:
		return c.canceledText(ev), true
	case c.perExecFills && ev.ExecType == ExecTypeTrade && isPositive(ev.LastQty):
		return c.fillText(ev), true
	case ev.OrdStatus == OrdStatusFilled || isZero(ev.LeavesQty):
		if ev.OrderID == "" {
			return "", false
		}
		if _, seen := c.filledAnnounced[ev.OrderID]; seen {
			return "", false
		}
		c.filledAnnounced[ev.OrderID] = struct{}{}
		return c.filledText(ev), true
	}
	return "", false
}

func (c *Classifier) newOrderText(ev ExecutionReport) string {
	lines := []string{
		"🆕 New order" + snapshotMarker(ev) + " — " + orDash(c.accountLabel),
		"Sym: " + orDash(ev.Symbol) + " · OrdType: " + ordTypeName(ev.OrdType),
		c.headline(ev, ev.OrderQty, ev.LimitPx),
		"Px: " + fmtPx(ev.LimitPx),
	}
	if ev.Comment != "" {
		lines = append(lines, "Comment: "+ev.Comment)
	}
	lines = append(lines,
		"",
		c.acctLine(ev),
		byLine(ev),
		"OrderID: "+orDash(ev.OrderID),
		"Time: "+eventTime(ev),
	)
	return strings.Join(lines, "\n")
}

func (c *Classifier) canceledText(ev ExecutionReport) string {
	qty := ev.OrderQty
	if !isPositive(qty) {
		qty = firstNonEmpty(ev.CumQty, ev.LastQty)
	}
	px := firstNonEmpty(ev.LimitPx, ev.AvgPx, ev.LastPx)
	return strings.Join([]string{
		"🚫 Order Cancelled" + snapshotMarker(ev) + " — " + orDash(ev.Symbol),
		c.acctLine(ev) + "  ·  OrdType: " + ordTypeName(ev.OrdType),
		c.headline(ev, qty, px),
		"Px: " + fmtPx(px),
		byLine(ev),
		"Reason: " + orDash(ev.CancelReason),
		"OrderID: " + orDash(ev.OrderID),
		"Time: " + eventTime(ev),
	}, "\n")
}

func (c *Classifier) fillText(ev ExecutionReport) string {
	return strings.Join([]string{
		"✅ Fill" + snapshotMarker(ev) + " — " + orDash(ev.Symbol),
		c.acctLine(ev) + "  ·  OrdType: " + ordTypeName(ev.OrdType),
		c.headline(ev, ev.LastQty, ev.LastPx),
		"Px: " + fmtPx(ev.LastPx),
		byLine(ev),
		"OrderID: " + orDash(ev.OrderID),
		"Time: " + eventTime(ev),
	}, "\n")
}

func (c *Classifier) filledText(ev ExecutionReport) string {
	qty := firstNonEmpty(ev.CumQty, ev.OrderQty, ev.LastQty)
	px := firstNonEmpty(ev.AvgPx, ev.LastPx, ev.LimitPx)
	return strings.Join([]string{
		"🎯 Order Filled" + snapshotMarker(ev) + " — " + orDash(ev.Symbol),
		c.acctLine(ev) + "  ·  OrdType: " + ordTypeName(ev.OrdType),
		c.headline(ev, qty, px),
		"Px: " + fmtPx(px),
		byLine(ev),
		"OrderID: " + orDash(ev.OrderID),
		"Time: " + eventTime(ev),
	}, "\n")
}

// headline builds the side/quantity summary line. Whether the quantity is
// denominated in the quote currency is decided by, in order: a per-symbol
// override, an explicit flag on the event, then the currency-code heuristic.
// With a usable price both the base quantity and quote notional are shown;
// without one the raw quantity keeps its unit suffix.
func (c *Classifier) headline(ev ExecutionReport, qtyRaw, pxRaw string) string {
	base, quote := symSplit(ev.Symbol)
	inQuote := c.qtyInQuote(ev, base, quote)

	qty, qtyOK := parseDecimal(qtyRaw)
	px, pxOK := parseDecimal(pxRaw)
	pxOK = pxOK && !px.IsZero()

	var baseQty, quoteNtn *decimal.Decimal
	switch {
	case qtyOK && pxOK:
		if inQuote {
			b := qty.Div(px)
			baseQty, quoteNtn = &b, &qty
		} else {
			n := qty.Mul(px)
			baseQty, quoteNtn = &qty, &n
		}
	case qtyOK:
		if inQuote {
			quoteNtn = &qty
		} else {
			baseQty = &qty
		}
	}

	side := orDash(ev.Side)
	if inQuote && quoteNtn != nil {
		return side + " " + base + " (" + fmtAmount(*quoteNtn, quote) + ")"
	}
	if baseQty != nil {
		return side + " " + baseQty.StringFixed(8) + " " + base
	}
	unit := ev.UnitCurrency
	if unit == "" && base != "-" {
		unit = base
	}
	suffix := ""
	if unit != "" && unit != "-" {
		suffix = " " + unit
	}
	return side + " " + fmtQty(qtyRaw) + suffix
}

func (c *Classifier) qtyInQuote(ev ExecutionReport, base, quote string) bool {
	if forced, ok := c.quoteOverrides[strings.ToUpper(strings.TrimSpace(ev.Symbol))]; ok {
		return forced
	}
	if ev.QtyInQuote != nil {
		return *ev.QtyInQuote
	}
	if ev.QtyCurrency != "" {
		if ev.QtyCurrency == quote && quote != "-" {
			return true
		}
		if ev.QtyCurrency == base && base != "-" {
			return false
		}
	}
	return false
}

func (c *Classifier) acctLine(ev ExecutionReport) string {
	acct := firstNonEmpty(ev.Account, c.accountLabel)
	return "Acct: " + orDash(acct)
}

func byLine(ev ExecutionReport) string {
	return "By: " + orDash(ev.User)
}

func eventTime(ev ExecutionReport) string {
	if ev.TransactTime != "" {
		return ev.TransactTime
	}
	return UTCTimestamp()
}

func snapshotMarker(ev ExecutionReport) string {
	if ev.Initial {
		return " [snapshot]"
	}
	return ""
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func parseDecimal(raw string) (decimal.Decimal, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

func isPositive(raw string) bool {
	d, ok := parseDecimal(raw)
	return ok && d.IsPositive()
}

func isZero(raw string) bool {
	d, ok := parseDecimal(raw)
	return ok && d.IsZero()
}
