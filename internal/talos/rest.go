package talos

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/execwatch/execwatch/errs"
)

// DefaultOpenStatuses is the status set requested when the caller does not
// supply one. These are the states in which an order can still trade.
var DefaultOpenStatuses = []string{"PendingNew", "New", "PartiallyFilled", "PendingReplace"}

const (
	defaultOrdersPath  = "/v1/orders"
	defaultPageLimit   = 500
	defaultRESTTimeout = 15 * time.Second
)

// OrderRecord is one row of an open-orders snapshot after field fallback
// resolution.
type OrderRecord struct {
	OrderID      string
	Account      string
	Symbol       string
	Side         string
	OrdType      string
	StrategyHint string
	Price        string
	OrderQty     string
	CumQty       string
	LeavesQty    string
	Status       string
	User         string
}

// OpenOrdersConfig configures one REST endpoint.
type OpenOrdersConfig struct {
	Host      string
	Path      string
	APIKey    string
	APISecret string
	PageLimit int
	Timeout   time.Duration
	// BaseURL overrides the https://Host request target. Signing always uses
	// Host and Path regardless.
	BaseURL    string
	HTTPClient *http.Client
}

// ListOptions narrows one open-orders fetch.
type ListOptions struct {
	Statuses     []string
	SubAccounts  []string
	ExcludeUsers []string
}

// OpenOrdersClient fetches and merges paginated open-order snapshots from
// the venue REST API.
type OpenOrdersClient struct {
	host      string
	path      string
	baseURL   string
	pageLimit int
	signer    *Signer
	client    *http.Client
}

// NewOpenOrdersClient builds a client, applying endpoint defaults.
func NewOpenOrdersClient(cfg OpenOrdersConfig) *OpenOrdersClient {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = defaultOrdersPath
	}
	limit := cfg.PageLimit
	if limit <= 0 {
		limit = defaultPageLimit
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultRESTTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	host := strings.TrimSpace(cfg.Host)
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://" + host
	}
	return &OpenOrdersClient{
		host:      host,
		path:      path,
		baseURL:   baseURL,
		pageLimit: limit,
		signer:    NewSigner(cfg.APIKey, cfg.APISecret),
		client:    httpClient,
	}
}

// ListOpenOrders fetches every page, de-duplicates by order id keeping the
// last occurrence, filters to live rows, and sorts the result by account,
// symbol and side.
func (c *OpenOrdersClient) ListOpenOrders(ctx context.Context, opts ListOptions) ([]OrderRecord, error) {
	statuses := opts.Statuses
	if len(statuses) == 0 {
		statuses = DefaultOpenStatuses
	}

	base := url.Values{}
	base.Set("Statuses", strings.Join(statuses, ","))
	base.Set("limit", strconv.Itoa(c.pageLimit))
	if len(opts.SubAccounts) > 0 {
		base.Set("SubAccounts", strings.Join(opts.SubAccounts, ","))
	}

	var rows []map[string]any
	after := ""
	for {
		params := url.Values{}
		for k, vs := range base {
			params[k] = vs
		}
		if after != "" {
			params.Set("after", after)
		}
		pageRows, next, err := c.fetchPage(ctx, params)
		if err != nil {
			return nil, err
		}
		rows = append(rows, pageRows...)
		if next == "" || len(pageRows) == 0 {
			break
		}
		after = next
	}

	return assembleOrders(rows, statuses, opts.ExcludeUsers), nil
}

// fetchPage issues one signed GET and returns the page rows plus the cursor
// for the next page, empty when the page is terminal.
func (c *OpenOrdersClient) fetchPage(ctx context.Context, params url.Values) ([]map[string]any, string, error) {
	// Encode sorts keys, which must match the signed canonical string.
	query := params.Encode()
	headers, _ := c.signer.Headers(http.MethodGet, c.host, c.path, query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.path+"?"+query, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create orders request: %w", err)
	}
	for k, vs := range headers {
		req.Header[k] = vs
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", errs.New("talos", errs.CodeNetwork,
			errs.WithEndpoint(c.path),
			errs.WithMessage("orders request failed"),
			errs.WithCause(err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusNotFound {
		return nil, "", errs.New("talos", errs.CodeNotFound,
			errs.WithHTTP(resp.StatusCode),
			errs.WithEndpoint(c.path),
			errs.WithMessage("orders endpoint not found, confirm the list-orders path"))
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, "", errs.New("talos", errs.CodeVenue,
			errs.WithHTTP(resp.StatusCode),
			errs.WithEndpoint(c.path),
			errs.WithMessage(strings.TrimSpace(string(body))))
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read orders response: %w", err)
	}
	return decodeOrdersPage(payload)
}

type ordersPage struct {
	Data  []json.RawMessage `json:"data"`
	Next  string            `json:"next"`
	After string            `json:"after"`
}

// decodeOrdersPage accepts both response shapes: an object with a data array
// and optional cursor, or a bare array which is always terminal.
func decodeOrdersPage(payload []byte) ([]map[string]any, string, error) {
	trimmed := strings.TrimSpace(string(payload))
	if strings.HasPrefix(trimmed, "[") {
		var raw []json.RawMessage
		if err := json.Unmarshal(payload, &raw); err != nil {
			return nil, "", fmt.Errorf("decode orders array: %w", err)
		}
		rows, err := decodeOrderRows(raw)
		return rows, "", err
	}

	var page ordersPage
	if err := json.Unmarshal(payload, &page); err != nil {
		return nil, "", fmt.Errorf("decode orders page: %w", err)
	}
	rows, err := decodeOrderRows(page.Data)
	if err != nil {
		return nil, "", err
	}
	cursor := page.Next
	if cursor == "" {
		cursor = page.After
	}
	return rows, cursor, nil
}

func decodeOrderRows(raw []json.RawMessage) ([]map[string]any, error) {
	rows := make([]map[string]any, 0, len(raw))
	for _, r := range raw {
		fields, err := decodeRecord(r)
		if err != nil {
			return nil, fmt.Errorf("decode order row: %w", err)
		}
		rows = append(rows, fields)
	}
	return rows, nil
}

// assembleOrders merges raw pages into the final ordered snapshot: last
// occurrence per order id wins, then live and user filters, then a stable
// account/symbol/side sort.
func assembleOrders(rows []map[string]any, statuses, excludeUsers []string) []OrderRecord {
	statusSet := make(map[string]struct{}, len(statuses))
	for _, s := range statuses {
		statusSet[strings.TrimSpace(s)] = struct{}{}
	}
	excluded := make(map[string]struct{}, len(excludeUsers))
	for _, u := range excludeUsers {
		if trimmed := strings.ToUpper(strings.TrimSpace(u)); trimmed != "" {
			excluded[trimmed] = struct{}{}
		}
	}

	byID := make(map[string]OrderRecord)
	order := make([]string, 0, len(rows))
	for _, fields := range rows {
		rec := orderRecordFromFields(fields)
		if rec.OrderID == "" {
			continue
		}
		if _, seen := byID[rec.OrderID]; !seen {
			order = append(order, rec.OrderID)
		}
		byID[rec.OrderID] = rec
	}

	live := make([]OrderRecord, 0, len(byID))
	for _, id := range order {
		rec := byID[id]
		if _, ok := statusSet[strings.TrimSpace(rec.Status)]; !ok {
			continue
		}
		if !isPositive(rec.LeavesQty) {
			continue
		}
		if _, ok := excluded[strings.ToUpper(strings.TrimSpace(rec.User))]; ok {
			continue
		}
		live = append(live, rec)
	}

	sort.SliceStable(live, func(i, j int) bool {
		if live[i].Account != live[j].Account {
			return live[i].Account < live[j].Account
		}
		if live[i].Symbol != live[j].Symbol {
			return live[i].Symbol < live[j].Symbol
		}
		return live[i].Side < live[j].Side
	})
	return live
}

func orderRecordFromFields(fields map[string]any) OrderRecord {
	return OrderRecord{
		OrderID:      stringField(fields, "OrderID", "orderId", "Id"),
		Account:      stringField(fields, "AccountName", "SubAccount", "TradingAccountName", "Account"),
		Symbol:       stringField(fields, "Symbol"),
		Side:         stringField(fields, "Side"),
		OrdType:      stringField(fields, "OrdType", "OrderType"),
		StrategyHint: stringField(fields, "Strategy", "StrategyName", "Algo", "AlgoType", "Algorithm", "ExecutionStrategy", "OrderType"),
		Price:        stringField(fields, "Price", "LimitPx", "Px"),
		OrderQty:     stringField(fields, "OrderQty"),
		CumQty:       stringField(fields, "CumQty"),
		LeavesQty:    stringField(fields, "LeavesQty", "Leaves"),
		Status:       stringField(fields, "OrdStatus", "Status"),
		User:         stringField(fields, "RequestUser", "CustomerUser", "User"),
	}
}
