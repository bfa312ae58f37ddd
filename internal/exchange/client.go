// Package exchange is the CoinEx HTTP client. Market data endpoints are
// public; account and order endpoints are signed with HMAC-MD5 over the
// sorted query string, per the v1 API.
package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"trading-botv1/internal/model"
)

// ErrAPIError is wrapped by all non-zero-code responses from the exchange.
var ErrAPIError = errors.New("exchange api error")

const defaultBaseURL = "https://api.coinex.com/v1/"

// Config configures the exchange client.
type Config struct {
	BaseURL   string // defaults to the production v1 endpoint
	APIKey    string
	SecretKey string
	Timeout   time.Duration
}

// Client is a CoinEx REST client with connection pooling.
type Client struct {
	baseURL   string
	apiKey    string
	secretKey string
	http      *http.Client

	now func() time.Time // injectable for signature tests
}

// New creates an exchange client. Market data works without credentials;
// order and balance calls require APIKey and SecretKey.
func New(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:   baseURL,
		apiKey:    cfg.APIKey,
		secretKey: cfg.SecretKey,
		http:      &http.Client{Timeout: timeout},
		now:       time.Now,
	}
}

// Ping checks connectivity via the public server-time endpoint.
func (c *Client) Ping(ctx context.Context) error {
	var ts json.RawMessage
	return c.get(ctx, "common/timestamp", nil, false, &ts)
}

// Ticker is the subset of the ticker payload the bot uses.
type Ticker struct {
	Last float64 `json:"last,string"`
	Open float64 `json:"open,string"`
	High float64 `json:"high,string"`
	Low  float64 `json:"low,string"`
	Vol  float64 `json:"vol,string"`
}

// GetTicker returns the latest ticker for a symbol.
func (c *Client) GetTicker(ctx context.Context, symbol string) (*Ticker, error) {
	var data struct {
		Ticker Ticker `json:"ticker"`
	}
	params := url.Values{"market": {symbol}}
	if err := c.get(ctx, "market/ticker", params, false, &data); err != nil {
		return nil, fmt.Errorf("ticker %s: %w", symbol, err)
	}
	return &data.Ticker, nil
}

// GetKlineData fetches up to limit candles for a symbol. The exchange returns
// rows as [timestamp, open, close, high, low, volume]; note close before high.
func (c *Client) GetKlineData(ctx context.Context, symbol, timeframe string, limit int) ([]model.Candle, error) {
	params := url.Values{
		"market": {symbol},
		"type":   {timeframe},
		"limit":  {strconv.Itoa(limit)},
	}

	// Rows mix numeric timestamps with string-encoded prices
	var rows [][]interface{}
	if err := c.get(ctx, "market/kline", params, false, &rows); err != nil {
		return nil, fmt.Errorf("kline %s: %w", symbol, err)
	}

	candles := make([]model.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}
		candles = append(candles, model.Candle{
			Symbol:    symbol,
			Timestamp: int64(asFloat(row[0])),
			Open:      asFloat(row[1]),
			High:      asFloat(row[3]),
			Low:       asFloat(row[4]),
			Close:     asFloat(row[2]),
			Volume:    asFloat(row[5]),
		})
	}
	return candles, nil
}

func asFloat(v interface{}) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case string:
		f, _ := strconv.ParseFloat(x, 64)
		return f
	case json.Number:
		f, _ := x.Float64()
		return f
	default:
		return 0
	}
}

// Balance holds available and frozen amounts for one asset.
type Balance struct {
	Available float64 `json:"available,string"`
	Frozen    float64 `json:"frozen,string"`
}

// GetBalance returns account balances keyed by asset.
func (c *Client) GetBalance(ctx context.Context) (map[string]Balance, error) {
	var data map[string]Balance
	if err := c.get(ctx, "balance/info", nil, true, &data); err != nil {
		return nil, fmt.Errorf("balance: %w", err)
	}
	return data, nil
}

// Order is the exchange's view of a placed order.
type Order struct {
	ID         int64   `json:"id"`
	Market     string  `json:"market"`
	Type       string  `json:"type"`
	Amount     float64 `json:"amount,string"`
	Price      float64 `json:"price,string"`
	Status     string  `json:"status"`
	CreateTime int64   `json:"create_time"`
}

// PlaceOrder submits a limit or market order. Price is ignored for market
// orders and required for limit orders.
func (c *Client) PlaceOrder(ctx context.Context, symbol, side string, amount, price float64, orderType string) (*Order, error) {
	params := url.Values{
		"market": {symbol},
		"type":   {side},
		"amount": {strconv.FormatFloat(amount, 'f', -1, 64)},
	}

	endpoint := "order/market"
	if orderType == "limit" {
		if price <= 0 {
			return nil, fmt.Errorf("place order %s: price required for limit orders", symbol)
		}
		params.Set("price", strconv.FormatFloat(price, 'f', -1, 64))
		endpoint = "order/limit"
	}

	var order Order
	if err := c.post(ctx, endpoint, params, &order); err != nil {
		return nil, fmt.Errorf("place order %s %s: %w", symbol, side, err)
	}
	log.Printf("[exchange] order placed: %s %s %.8f @ %.8f (id=%d)", symbol, side, amount, price, order.ID)
	return &order, nil
}

// CancelOrder cancels a pending order.
func (c *Client) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	params := url.Values{
		"market": {symbol},
		"id":     {strconv.FormatInt(orderID, 10)},
	}
	var order Order
	if err := c.post(ctx, "order/pending/cancel", params, &order); err != nil {
		return fmt.Errorf("cancel order %d: %w", orderID, err)
	}
	log.Printf("[exchange] order cancelled: %d", orderID)
	return nil
}

// GetOrderStatus returns the current state of an order.
func (c *Client) GetOrderStatus(ctx context.Context, symbol string, orderID int64) (*Order, error) {
	params := url.Values{
		"market": {symbol},
		"id":     {strconv.FormatInt(orderID, 10)},
	}
	var order Order
	if err := c.get(ctx, "order/status", params, true, &order); err != nil {
		return nil, fmt.Errorf("order status %d: %w", orderID, err)
	}
	return &order, nil
}

// sign computes the HMAC-MD5 signature over the sorted query string.
func (c *Client) sign(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(params.Get(k))
	}

	mac := hmac.New(md5.New, []byte(c.secretKey))
	mac.Write([]byte(sb.String()))
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
}

// authParams stamps access_id and tonce onto the params and returns the
// signature header value.
func (c *Client) authParams(params url.Values) string {
	params.Set("access_id", c.apiKey)
	params.Set("tonce", strconv.FormatInt(c.now().UnixMilli(), 10))
	return c.sign(params)
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, auth bool, out interface{}) error {
	if params == nil {
		params = url.Values{}
	}

	var signature string
	if auth {
		signature = c.authParams(params)
	}

	reqURL := c.baseURL + endpoint
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("build request %s: %w", endpoint, err)
	}
	if auth {
		req.Header.Set("authorization", signature)
	}
	return c.do(req, endpoint, out)
}

func (c *Client) post(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	signature := c.authParams(params)

	body := map[string]string{}
	for k := range params {
		body[k] = params.Get(k)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body %s: %w", endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, strings.NewReader(string(payload)))
	if err != nil {
		return fmt.Errorf("build request %s: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("authorization", signature)
	return c.do(req, endpoint, out)
}

func (c *Client) do(req *http.Request, endpoint string, out interface{}) error {
	req.Header.Set("User-Agent", "TradingBot/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read body %s: %w", endpoint, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http %s: status %d: %w", endpoint, resp.StatusCode, ErrAPIError)
	}

	var envelope struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("decode %s: %w", endpoint, err)
	}
	if envelope.Code != 0 {
		return fmt.Errorf("%s: code %d: %s: %w", endpoint, envelope.Code, envelope.Message, ErrAPIError)
	}

	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("decode data %s: %w", endpoint, err)
		}
	}
	return nil
}
