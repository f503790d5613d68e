// Package client - Go фасад REST API журнала сделок.
//
// Каждый метод возвращает Result и не возвращает error: ошибки сети и
// HTTP статусы сворачиваются в поле Error, как это делает web клиент.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"tradejournal/internal/broker"
	"tradejournal/internal/models"
	"tradejournal/internal/service"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// EnvBaseURL - переменная окружения с адресом API
const EnvBaseURL = "VITE_API_URL"

// ErrUnauthorized - текст ошибки для любого ответа 401
const ErrUnauthorized = "Unauthorized or Session Expired"

// Result - ответ фасада
type Result[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error,omitempty"`
}

// Client - клиент REST API. Сессионная cookie хранится в cookie jar.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option настраивает Client
type Option func(*Client)

// WithHTTPClient подменяет http.Client. Jar подставляется, если не задан.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// New создает клиент для baseURL (например "http://localhost:8080")
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http.Jar == nil {
		// cookiejar.New без PublicSuffixList не возвращает ошибку
		jar, _ := cookiejar.New(nil)
		c.http.Jar = jar
	}
	return c
}

// NewFromEnv создает клиент с адресом из VITE_API_URL
func NewFromEnv(opts ...Option) (*Client, error) {
	base := os.Getenv(EnvBaseURL)
	if base == "" {
		return nil, fmt.Errorf("%s is not set", EnvBaseURL)
	}
	return New(base, opts...), nil
}

// SetSessionToken кладет JWT сессии в cookie jar, как это делает браузер после логина
func (c *Client) SetSessionToken(token string) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return err
	}
	c.http.Jar.SetCookies(u, []*http.Cookie{{Name: "session", Value: token, Path: "/"}})
	return nil
}

// ============ Брокеры ============

// AddBrokerRequest - подключение брокера
type AddBrokerRequest struct {
	Name           string             `json:"name"`
	BrokerType     string             `json:"broker_type"`
	Credentials    models.Credentials `json:"credentials"`
	TestConnection bool               `json:"test_connection,omitempty"`
}

// GetTradingAccounts GET /api/trading/accounts
func (c *Client) GetTradingAccounts(ctx context.Context) Result[[]models.TradingAccount] {
	return call[[]models.TradingAccount](ctx, c, http.MethodGet, "/api/trading/accounts", nil, nil)
}

// GetBrokers GET /api/brokers
func (c *Client) GetBrokers(ctx context.Context) Result[[]models.BrokerRecord] {
	return call[[]models.BrokerRecord](ctx, c, http.MethodGet, "/api/brokers", nil, nil)
}

// AddBroker POST /api/brokers. Обязательные поля проверяются до запроса.
func (c *Client) AddBroker(ctx context.Context, req AddBrokerRequest) Result[models.BrokerRecord] {
	if err := broker.Validate(req.BrokerType, req.Credentials); err != nil {
		return Result[models.BrokerRecord]{Error: err.Error()}
	}
	return call[models.BrokerRecord](ctx, c, http.MethodPost, "/api/brokers", nil, req)
}

// GetBrokerStatus GET /api/brokers/status
func (c *Client) GetBrokerStatus(ctx context.Context) Result[[]models.BrokerStatus] {
	return call[[]models.BrokerStatus](ctx, c, http.MethodGet, "/api/brokers/status", nil, nil)
}

// ============ Сделки ============

// TradeQuery - фильтры списка сделок
type TradeQuery struct {
	Status   string
	Symbol   string
	BrokerID int64
	From     time.Time
	To       time.Time
}

func (q TradeQuery) values() url.Values {
	v := url.Values{}
	if q.Status != "" {
		v.Set("status", q.Status)
	}
	if q.Symbol != "" {
		v.Set("symbol", q.Symbol)
	}
	if q.BrokerID > 0 {
		v.Set("broker_id", strconv.FormatInt(q.BrokerID, 10))
	}
	if !q.From.IsZero() {
		v.Set("from", q.From.Format(time.RFC3339))
	}
	if !q.To.IsZero() {
		v.Set("to", q.To.Format(time.RFC3339))
	}
	return v
}

// GetTrades GET /api/trades
func (c *Client) GetTrades(ctx context.Context, q TradeQuery) Result[[]models.Trade] {
	return call[[]models.Trade](ctx, c, http.MethodGet, "/api/trades", q.values(), nil)
}

// CreateTrade POST /api/trades
func (c *Client) CreateTrade(ctx context.Context, input service.TradeInput) Result[models.Trade] {
	return call[models.Trade](ctx, c, http.MethodPost, "/api/trades", nil, input)
}

// UpdateTrade PUT /api/trades/{id}
func (c *Client) UpdateTrade(ctx context.Context, id int64, update service.TradeUpdate) Result[models.Trade] {
	return call[models.Trade](ctx, c, http.MethodPut, "/api/trades/"+strconv.FormatInt(id, 10), nil, update)
}

// DeleteTrade DELETE /api/trades/{id}
func (c *Client) DeleteTrade(ctx context.Context, id int64) Result[map[string]int64] {
	return call[map[string]int64](ctx, c, http.MethodDelete, "/api/trades/"+strconv.FormatInt(id, 10), nil, nil)
}

// CloseTrade POST /api/trades/close/{id}
func (c *Client) CloseTrade(ctx context.Context, id int64, input service.CloseTradeInput) Result[models.Trade] {
	return call[models.Trade](ctx, c, http.MethodPost, "/api/trades/close/"+strconv.FormatInt(id, 10), nil, input)
}

// ============ Портфель и аналитика ============

// GetPortfolioSummary GET /api/portfolio/summary
func (c *Client) GetPortfolioSummary(ctx context.Context) Result[models.PortfolioSummary] {
	return call[models.PortfolioSummary](ctx, c, http.MethodGet, "/api/portfolio/summary", nil, nil)
}

// GetAnalyticsData GET /api/analytics/data?period=. Пустой period - весь журнал.
func (c *Client) GetAnalyticsData(ctx context.Context, period string) Result[models.AnalyticsData] {
	var q url.Values
	if period != "" {
		q = url.Values{"period": {period}}
	}
	return call[models.AnalyticsData](ctx, c, http.MethodGet, "/api/analytics/data", q, nil)
}

// GetStrategies GET /api/strategies
func (c *Client) GetStrategies(ctx context.Context) Result[[]models.Strategy] {
	return call[[]models.Strategy](ctx, c, http.MethodGet, "/api/strategies", nil, nil)
}

// SyncBrokers POST /api/sync/brokers
func (c *Client) SyncBrokers(ctx context.Context) Result[[]service.SyncResult] {
	return call[[]service.SyncResult](ctx, c, http.MethodPost, "/api/sync/brokers", nil, nil)
}

// ============ Upstox ============

// UpstoxAuthURL GET /api/upstox/auth-url
func (c *Client) UpstoxAuthURL(ctx context.Context, clientID, redirectURI string) Result[service.AuthURLResult] {
	q := url.Values{}
	if clientID != "" {
		q.Set("client_id", clientID)
	}
	if redirectURI != "" {
		q.Set("redirect_uri", redirectURI)
	}
	return call[service.AuthURLResult](ctx, c, http.MethodGet, "/api/upstox/auth-url", q, nil)
}

// UpstoxExchangeToken POST /api/upstox/token
func (c *Client) UpstoxExchangeToken(ctx context.Context, code, state string) Result[map[string]interface{}] {
	body := service.CodeExchangeRequest{Code: code, State: state}
	return call[map[string]interface{}](ctx, c, http.MethodPost, "/api/upstox/token", nil, body)
}

// UpstoxImport POST /api/upstox/import
func (c *Client) UpstoxImport(ctx context.Context) Result[service.ImportResult] {
	return call[service.ImportResult](ctx, c, http.MethodPost, "/api/upstox/import", nil, nil)
}

// ConsumeOAuthRedirect достает code и state из адреса redirect'а и
// возвращает адрес без параметров code, state и broker
func ConsumeOAuthRedirect(rawURL string) (code, state, cleaned string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", "", err
	}
	q := u.Query()
	code = q.Get("code")
	state = q.Get("state")
	for _, key := range []string{"code", "state", "broker"} {
		q.Del(key)
	}
	u.RawQuery = q.Encode()
	return code, state, u.String(), nil
}

// ============ Транспорт ============

// errorBody - поле error из тела ответа с ошибкой
type errorBody struct {
	Error string `json:"error"`
}

func call[T any](ctx context.Context, c *Client, method, path string, query url.Values, body interface{}) Result[T] {
	var res Result[T]

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			res.Error = err.Error()
			return res
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		res.Error = ErrUnauthorized
		return res
	}

	raw, readErr := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb errorBody
		if readErr == nil && json.Unmarshal(raw, &eb) == nil && eb.Error != "" {
			res.Error = eb.Error
		} else {
			res.Error = fmt.Sprintf("Request failed with status %d", resp.StatusCode)
		}
		return res
	}
	if readErr != nil {
		res.Error = readErr.Error()
		return res
	}

	if err := json.Unmarshal(raw, &res); err != nil {
		return Result[T]{Error: err.Error()}
	}
	return res
}
