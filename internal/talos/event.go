package talos

import (
	"bytes"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
)

// Stream message types the watcher cares about. Everything else is ignored.
const (
	msgTypeExecutionReport = "ExecutionReport"
	msgTypeError           = "error"
)

// helloMessage is the first frame Talos sends after a successful handshake.
type helloMessage struct {
	SessionID string `json:"session_id"`
	TS        string `json:"ts"`
}

// streamSpec names one subscription inside a subscribe request.
type streamSpec struct {
	Name      string `json:"name"`
	StartDate string `json:"StartDate"`
	User      string `json:"User,omitempty"`
}

// subscribeRequest asks for execution reports starting from "now".
type subscribeRequest struct {
	ReqID   int          `json:"reqid"`
	Type    string       `json:"type"`
	Streams []streamSpec `json:"streams"`
}

// pingMessage keeps an idle connection alive.
type pingMessage struct {
	ReqID int    `json:"reqid"`
	Type  string `json:"type"`
	TS    string `json:"ts"`
}

// envelope is the generic inbound frame shape.
type envelope struct {
	Type    string            `json:"type"`
	Initial bool              `json:"initial"`
	Data    []json.RawMessage `json:"data"`
}

// ExecType enumerates the execution-report exec types this system reacts to.
// Values the classifier does not recognise map to ExecTypeUnrecognized so the
// priority table stays exhaustive.
type ExecType string

const (
	// ExecTypeNew marks order acknowledgement.
	ExecTypeNew ExecType = "New"
	// ExecTypeTrade marks a fill execution.
	ExecTypeTrade ExecType = "Trade"
	// ExecTypeCanceled marks order cancellation.
	ExecTypeCanceled ExecType = "Canceled"
	// ExecTypeUnrecognized covers every exec type outside the priority table.
	ExecTypeUnrecognized ExecType = "Unrecognized"
)

func execTypeFromWire(s string) ExecType {
	switch ExecType(strings.TrimSpace(s)) {
	case ExecTypeNew:
		return ExecTypeNew
	case ExecTypeTrade:
		return ExecTypeTrade
	case ExecTypeCanceled:
		return ExecTypeCanceled
	}
	return ExecTypeUnrecognized
}

// OrdStatus enumerates order lifecycle statuses.
type OrdStatus string

const (
	// OrdStatusNew indicates a working order.
	OrdStatusNew OrdStatus = "New"
	// OrdStatusPartiallyFilled indicates partial execution.
	OrdStatusPartiallyFilled OrdStatus = "PartiallyFilled"
	// OrdStatusFilled indicates complete execution.
	OrdStatusFilled OrdStatus = "Filled"
	// OrdStatusCanceled indicates cancellation.
	OrdStatusCanceled OrdStatus = "Canceled"
	// OrdStatusPendingNew indicates an order awaiting acknowledgement.
	OrdStatusPendingNew OrdStatus = "PendingNew"
	// OrdStatusPendingReplace indicates an amend in flight.
	OrdStatusPendingReplace OrdStatus = "PendingReplace"
	// OrdStatusUnrecognized covers statuses outside the priority table.
	OrdStatusUnrecognized OrdStatus = "Unrecognized"
)

func ordStatusFromWire(s string) OrdStatus {
	switch OrdStatus(strings.TrimSpace(s)) {
	case OrdStatusNew:
		return OrdStatusNew
	case OrdStatusPartiallyFilled:
		return OrdStatusPartiallyFilled
	case OrdStatusFilled:
		return OrdStatusFilled
	case OrdStatusCanceled:
		return OrdStatusCanceled
	case OrdStatusPendingNew:
		return OrdStatusPendingNew
	case OrdStatusPendingReplace:
		return OrdStatusPendingReplace
	}
	return OrdStatusUnrecognized
}

// ExecutionReport is the canonical, fully-resolved form of one stream data
// element. Talos spells several fields under multiple historical names; the
// fallback chains are resolved here, once, so classification never touches
// raw maps.
type ExecutionReport struct {
	ExecType  ExecType
	OrdStatus OrdStatus

	Side    string
	Symbol  string
	OrderID string

	OrderQty  string
	AvgPx     string
	LastPx    string
	LastQty   string
	CumQty    string
	LeavesQty string

	TransactTime string
	LimitPx      string
	OrdType      string
	Comment      string
	CancelReason string

	Account string
	User    string

	QtyCurrency  string
	UnitCurrency string
	QtyInQuote   *bool
	StrategyHint string

	Initial bool
}

// ParseExecutionReport resolves one raw data element into its canonical form.
// Numeric fields are kept as decimal strings; the classifier converts them
// only where arithmetic is required.
func ParseExecutionReport(raw json.RawMessage, initial bool) (ExecutionReport, error) {
	fields, err := decodeRecord(raw)
	if err != nil {
		return ExecutionReport{}, fmt.Errorf("decode execution report: %w", err)
	}
	return executionReportFromFields(fields, initial), nil
}

func executionReportFromFields(fields map[string]any, initial bool) ExecutionReport {
	return ExecutionReport{
		ExecType:     execTypeFromWire(stringField(fields, "ExecType")),
		OrdStatus:    ordStatusFromWire(stringField(fields, "OrdStatus")),
		Side:         stringField(fields, "Side"),
		Symbol:       stringField(fields, "Symbol"),
		OrderID:      stringField(fields, "OrderID"),
		OrderQty:     stringField(fields, "OrderQty"),
		AvgPx:        stringField(fields, "AvgPx"),
		LastPx:       stringField(fields, "LastPx"),
		LastQty:      stringField(fields, "LastQty"),
		CumQty:       stringField(fields, "CumQty"),
		LeavesQty:    stringField(fields, "LeavesQty", "Leaves"),
		TransactTime: stringField(fields, "TransactTime", "Ts", "Timestamp"),
		LimitPx:      stringField(fields, "Price", "LimitPx", "Px", "StopPx", "AvgPx", "LastPx"),
		OrdType:      stringField(fields, "OrdType", "OrderType"),
		Comment:      stringField(fields, "Comments"),
		CancelReason: stringField(fields, "Text", "CancelReason"),
		Account:      stringField(fields, "AccountName", "SubAccount", "TradingAccountName", "Account"),
		User:         stringField(fields, "RequestUser", "CustomerUser", "User"),
		QtyCurrency:  strings.ToUpper(stringField(fields, "QtyCurrency", "OrderQtyCurrency", "Currency")),
		UnitCurrency: strings.ToUpper(stringField(fields, "QtyCurrency", "OrderQtyCurrency", "Currency", "BaseCurrency", "Base", "BaseCcy")),
		QtyInQuote:   boolField(fields, "OrderQtyInQuote", "QtyInQuote", "IsQuoteQty", "QtyIsQuote", "QuoteQtyFlag"),
		StrategyHint: stringField(fields, "Strategy", "StrategyName", "Algo", "AlgoType", "Algorithm", "ExecutionStrategy", "OrderType"),
		Initial:      initial,
	}
}

func decodeRecord(raw json.RawMessage) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// stringField resolves the first present, non-empty key as a string.
// Numbers are rendered verbatim (UseNumber keeps decimal precision).
func stringField(fields map[string]any, keys ...string) string {
	for _, key := range keys {
		v, ok := fields[key]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			if strings.TrimSpace(t) != "" {
				return strings.TrimSpace(t)
			}
		case json.Number:
			return t.String()
		case bool:
			if t {
				return "true"
			}
			return "false"
		}
	}
	return ""
}

// boolField resolves the first key carrying an explicit boolean flag, in
// either native or stringly form. Absence is distinct from false.
func boolField(fields map[string]any, keys ...string) *bool {
	for _, key := range keys {
		v, ok := fields[key]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case bool:
			b := t
			return &b
		case string:
			switch strings.ToLower(strings.TrimSpace(t)) {
			case "true", "1", "yes":
				b := true
				return &b
			case "false", "0", "no":
				b := false
				return &b
			}
		}
	}
	return nil
}

// symSplit breaks a venue symbol into upper-cased base and quote legs,
// tolerating "-", "/" and "_" separators.
func symSplit(symbol string) (base, quote string) {
	s := strings.TrimSpace(symbol)
	if s == "" {
		return "-", "-"
	}
	s = strings.NewReplacer("_", "-", "/", "-").Replace(s)
	parts := make([]string, 0, 2)
	for _, p := range strings.Split(s, "-") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	base, quote = "-", "-"
	if len(parts) > 0 {
		base = strings.ToUpper(parts[0])
	}
	if len(parts) > 1 {
		quote = strings.ToUpper(parts[1])
	}
	return base, quote
}
