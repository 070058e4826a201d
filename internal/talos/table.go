package talos

import (
	"strings"
)

// TableOptions tunes the rendered snapshot block.
type TableOptions struct {
	// MaxRows caps rendered rows; the remainder collapses into one summary
	// line. Zero means the default cap.
	MaxRows int
	// CompactNumbers renders quantities as 1.25M style instead of full 2dp.
	CompactNumbers bool
	// AbbreviateUsers reduces user names to initials.
	AbbreviateUsers bool
}

const defaultTableMaxRows = 300

// column width caps keep one row inside a chat message line.
var tableCaps = map[string]int{
	"SYM": 14, "S": 1, "TYPE": 12, "QTY": 12, "PX": 12, "LEAVES": 12, "USER": 16,
}

var tableColumns = []string{"SYM", "S", "TYPE", "QTY", "PX", "LEAVES", "USER"}

// right-aligned numeric columns
var tableRightAlign = map[string]bool{"QTY": true, "PX": true, "LEAVES": true}

// FormatOrderTable renders one labeled group of orders as a fixed-width
// monospace block: a count header, a grouping line per distinct account, a
// column header row and one line per order. Rows past the cap collapse into
// an "and N more" line.
func FormatOrderTable(label string, orders []OrderRecord, opts TableOptions) string {
	header := label + " — " + fmtInt(len(orders)) + " orders"
	if len(orders) == 0 {
		return header + "\n(none)"
	}
	maxRows := opts.MaxRows
	if maxRows <= 0 {
		maxRows = defaultTableMaxRows
	}

	prepared := make([]map[string]string, 0, len(orders))
	accounts := make([]string, 0, len(orders))
	for _, o := range orders {
		qty := fmt2(o.OrderQty)
		leaves := fmt2(o.LeavesQty)
		if opts.CompactNumbers {
			qty = compactNum(o.OrderQty)
			leaves = compactNum(o.LeavesQty)
		}
		user := o.User
		if user == "" {
			user = "-"
		}
		if opts.AbbreviateUsers {
			user = abbrUser(user)
		}
		acct := o.Account
		if acct == "" {
			acct = "-"
		}
		accounts = append(accounts, acct)
		prepared = append(prepared, map[string]string{
			"SYM":    orDash(o.Symbol),
			"S":      sideLetter(o.Side),
			"TYPE":   typeLabel(o),
			"QTY":    qty,
			"PX":     fmt2(o.Price),
			"LEAVES": leaves,
			"USER":   user,
		})
	}

	widths := make(map[string]int, len(tableColumns))
	for _, col := range tableColumns {
		w := len(col)
		for _, row := range prepared {
			if n := len([]rune(row[col])); n > w {
				w = n
			}
		}
		if w > tableCaps[col] {
			w = tableCaps[col]
		}
		widths[col] = w
	}

	lines := []string{header}
	currentAcct := ""
	headerEmitted := false
	shown := 0
	for i, row := range prepared {
		if shown >= maxRows {
			lines = append(lines, "... and "+fmtInt(len(prepared)-shown)+" more")
			break
		}
		if accounts[i] != currentAcct {
			currentAcct = accounts[i]
			lines = append(lines, "", "* "+currentAcct)
			if !headerEmitted {
				lines = append(lines, tableRow(widths, func(col string) string { return col }))
				headerEmitted = true
			}
		}
		lines = append(lines, tableRow(widths, func(col string) string { return row[col] }))
		shown++
	}
	return strings.Join(lines, "\n")
}

func tableRow(widths map[string]int, cell func(col string) string) string {
	parts := make([]string, 0, len(tableColumns))
	for _, col := range tableColumns {
		right := tableRightAlign[col]
		parts = append(parts, pad(fit(cell(col), widths[col], right), widths[col], right))
	}
	return strings.TrimRight(strings.Join(parts, "  "), " ")
}

// typeLabel combines the abbreviated order type with a detected algo hint.
func typeLabel(o OrderRecord) string {
	base := ordTypeAbbr(o.OrdType)
	algo := detectAlgo(o.StrategyHint)
	if algo == "" {
		return base
	}
	return base + "/" + algo
}
