package talos

import (
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

func TestParseExecutionReportResolvesFallbackNames(t *testing.T) {
	raw := json.RawMessage(`{
		"ExecType": "Trade",
		"OrdStatus": "PartiallyFilled",
		"Side": "Buy",
		"Symbol": "BTC-USDT",
		"OrderID": "ord-1",
		"OrderQty": "1.5",
		"LastQty": 0.25,
		"LastPx": 64950.5,
		"LeavesQty": "1.25",
		"Ts": "2024-05-01T12:00:00.000000Z",
		"LimitPx": "65000",
		"OrdType": "2",
		"SubAccount": "Desk A",
		"CustomerUser": "jane"
	}`)

	ev, err := ParseExecutionReport(raw, true)
	require.NoError(t, err)
	require.Equal(t, ExecTypeTrade, ev.ExecType)
	require.Equal(t, OrdStatusPartiallyFilled, ev.OrdStatus)
	require.Equal(t, "0.25", ev.LastQty, "json numbers must keep decimal form")
	require.Equal(t, "64950.5", ev.LastPx)
	require.Equal(t, "2024-05-01T12:00:00.000000Z", ev.TransactTime)
	require.Equal(t, "65000", ev.LimitPx, "LimitPx is second in the price chain")
	require.Equal(t, "Desk A", ev.Account, "SubAccount backs up AccountName")
	require.Equal(t, "jane", ev.User, "CustomerUser backs up RequestUser")
	require.True(t, ev.Initial)
	require.Nil(t, ev.QtyInQuote)
}

func TestParseExecutionReportPriceChainPrefersPrice(t *testing.T) {
	raw := json.RawMessage(`{"Price": "100", "LimitPx": "99", "AvgPx": "98"}`)
	ev, err := ParseExecutionReport(raw, false)
	require.NoError(t, err)
	require.Equal(t, "100", ev.LimitPx)
}

func TestParseExecutionReportQuoteFlagForms(t *testing.T) {
	for _, tc := range []struct {
		payload string
		want    bool
	}{
		{`{"OrderQtyInQuote": true}`, true},
		{`{"QtyInQuote": "yes"}`, true},
		{`{"IsQuoteQty": "1"}`, true},
		{`{"QtyIsQuote": false}`, false},
	} {
		ev, err := ParseExecutionReport(json.RawMessage(tc.payload), false)
		require.NoError(t, err)
		require.NotNil(t, ev.QtyInQuote, "payload %s", tc.payload)
		require.Equal(t, tc.want, *ev.QtyInQuote, "payload %s", tc.payload)
	}
}

func TestExecTypeAndOrdStatusClosedSets(t *testing.T) {
	require.Equal(t, ExecTypeNew, execTypeFromWire("New"))
	require.Equal(t, ExecTypeUnrecognized, execTypeFromWire("Restated"))
	require.Equal(t, OrdStatusPendingReplace, ordStatusFromWire("PendingReplace"))
	require.Equal(t, OrdStatusUnrecognized, ordStatusFromWire("DoneForDay"))
}

func TestSymSplit(t *testing.T) {
	for _, tc := range []struct {
		in          string
		base, quote string
	}{
		{"BTC-USDT", "BTC", "USDT"},
		{"eth/usd", "ETH", "USD"},
		{"SOL_USDC", "SOL", "USDC"},
		{"BTC", "BTC", "-"},
		{"", "-", "-"},
	} {
		base, quote := symSplit(tc.in)
		require.Equal(t, tc.base, base, "base of %q", tc.in)
		require.Equal(t, tc.quote, quote, "quote of %q", tc.in)
	}
}
