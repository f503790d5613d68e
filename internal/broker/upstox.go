package broker

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tradejournal/internal/models"
	"tradejournal/pkg/utils"
)

const (
	defaultUpstoxAuthURL = "https://api.upstox.com/v2/login/authorization/dialog"
	defaultUpstoxAPIURL  = "https://api.upstox.com"

	upstoxScope = "NSE|BSE|MCX"

	upstoxTokenPath   = "/v2/login/authorization/token"
	upstoxProfilePath = "/v2/user/profile"
	upstoxTradesPath  = "/v2/order/trades/get-trades-for-day"
)

// UpstoxBroker - Upstox API v2: OAuth авторизация и книга сделок за день
type UpstoxBroker struct {
	authURL string
	apiURL  string
	http    *HTTPClient
	now     func() time.Time
}

// NewUpstox создаёт адаптер Upstox. Пустые адреса заменяются боевыми.
func NewUpstox(authURL, apiURL string, client *HTTPClient) *UpstoxBroker {
	if authURL == "" {
		authURL = defaultUpstoxAuthURL
	}
	if apiURL == "" {
		apiURL = defaultUpstoxAPIURL
	}
	return &UpstoxBroker{
		authURL: authURL,
		apiURL:  strings.TrimRight(apiURL, "/"),
		http:    client,
		now:     time.Now,
	}
}

func (u *UpstoxBroker) Type() Type { return Upstox }

func (u *UpstoxBroker) RequiredFields() []Field {
	return []Field{FieldAPIKey, FieldAPISecret}
}

// TestConnection проверяет apiKey/apiSecret. Если есть access token,
// дополнительно запрашивает профиль пользователя.
func (u *UpstoxBroker) TestConnection(ctx context.Context, creds models.Credentials) (*ConnectionStatus, error) {
	if err := checkRequired(u, creds, msgMissingKeySecret); err != nil {
		return nil, err
	}
	if creds.AccessToken == "" {
		return &ConnectionStatus{
			BrokerType: Upstox,
			Status:     StatusValidated,
			Message:    "credentials format verified, authorize via OAuth to connect",
		}, nil
	}

	profile, err := u.GetProfile(ctx, creds.AccessToken)
	if err != nil {
		return nil, err
	}
	return &ConnectionStatus{
		BrokerType: Upstox,
		Status:     StatusConnected,
		AccountID:  profile.UserID,
		Message:    profile.UserName,
	}, nil
}

// AuthURL строит URL диалога авторизации
func (u *UpstoxBroker) AuthURL(clientID, redirectURI, state string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", clientID)
	q.Set("redirect_uri", redirectURI)
	q.Set("state", state)
	q.Set("scope", upstoxScope)

	sep := "?"
	if strings.Contains(u.authURL, "?") {
		sep = "&"
	}
	return u.authURL + sep + q.Encode()
}

type upstoxTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	UserID       string `json:"user_id"`
}

// ExchangeCode обменивает authorization code на токены
func (u *UpstoxBroker) ExchangeCode(ctx context.Context, code, clientID, clientSecret, redirectURI string) (*TokenSet, error) {
	form := url.Values{}
	form.Set("code", code)
	form.Set("client_id", clientID)
	form.Set("client_secret", clientSecret)
	form.Set("redirect_uri", redirectURI)
	form.Set("grant_type", "authorization_code")
	return u.requestToken(ctx, form)
}

// Refresh получает новый access token по refresh token
func (u *UpstoxBroker) Refresh(ctx context.Context, refreshToken, clientID, clientSecret string) (*TokenSet, error) {
	form := url.Values{}
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", clientID)
	form.Set("client_secret", clientSecret)
	form.Set("grant_type", "refresh_token")
	return u.requestToken(ctx, form)
}

func (u *UpstoxBroker) requestToken(ctx context.Context, form url.Values) (*TokenSet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.apiURL+upstoxTokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("upstox create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	var resp upstoxTokenResponse
	if err := u.http.doJSON(req, Upstox, parseUpstoxError, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, newAPIError(Upstox, http.StatusOK, "", "upstox returned empty access token")
	}

	return &TokenSet{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    u.expiresAt(resp.ExpiresIn),
	}, nil
}

// expiresAt вычисляет срок жизни токена. Без expires_in токен Upstox
// живёт до 03:30 IST следующего торгового дня.
func (u *UpstoxBroker) expiresAt(expiresIn int64) time.Time {
	now := u.now()
	if expiresIn > 0 {
		return now.Add(time.Duration(expiresIn) * time.Second).UTC()
	}

	local := now.In(utils.IST)
	cutoff := time.Date(local.Year(), local.Month(), local.Day(), 3, 30, 0, 0, utils.IST)
	if !cutoff.After(local) {
		cutoff = cutoff.AddDate(0, 0, 1)
	}
	return cutoff.UTC()
}

// UpstoxProfile - профиль пользователя Upstox
type UpstoxProfile struct {
	UserID    string   `json:"user_id"`
	UserName  string   `json:"user_name"`
	Email     string   `json:"email"`
	Broker    string   `json:"broker"`
	Exchanges []string `json:"exchanges"`
	IsActive  bool     `json:"is_active"`
}

// GetProfile запрашивает GET /v2/user/profile
func (u *UpstoxBroker) GetProfile(ctx context.Context, accessToken string) (*UpstoxProfile, error) {
	var resp struct {
		Status string        `json:"status"`
		Data   UpstoxProfile `json:"data"`
	}
	if err := u.get(ctx, upstoxProfilePath, accessToken, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

type upstoxTrade struct {
	TradeID           string  `json:"trade_id"`
	OrderID           string  `json:"order_id"`
	Exchange          string  `json:"exchange"`
	TradingSymbol     string  `json:"trading_symbol"`
	TradingSymbolOld  string  `json:"tradingsymbol"`
	TransactionType   string  `json:"transaction_type"`
	Quantity          float64 `json:"quantity"`
	AveragePrice      float64 `json:"average_price"`
	ExchangeTimestamp string  `json:"exchange_timestamp"`
	OrderTimestamp    string  `json:"order_timestamp"`
}

// FetchTrades возвращает сделки за текущий торговый день
func (u *UpstoxBroker) FetchTrades(ctx context.Context, accessToken string) ([]Trade, error) {
	var resp struct {
		Status string        `json:"status"`
		Data   []upstoxTrade `json:"data"`
	}
	if err := u.get(ctx, upstoxTradesPath, accessToken, &resp); err != nil {
		return nil, err
	}

	trades := make([]Trade, 0, len(resp.Data))
	for _, t := range resp.Data {
		symbol := t.TradingSymbol
		if symbol == "" {
			symbol = t.TradingSymbolOld
		}
		trades = append(trades, Trade{
			TradeID:         t.TradeID,
			Symbol:          symbol,
			Exchange:        t.Exchange,
			TransactionType: strings.ToUpper(t.TransactionType),
			Quantity:        t.Quantity,
			AveragePrice:    t.AveragePrice,
			ExecutedAt:      upstoxTradeTime(t),
		})
	}
	return trades, nil
}

// upstoxTradeTime - время биржи, при его отсутствии время ордера (оба в IST)
func upstoxTradeTime(t upstoxTrade) time.Time {
	for _, value := range []string{t.ExchangeTimestamp, t.OrderTimestamp} {
		if value == "" {
			continue
		}
		if ts, err := utils.ParseBrokerTime(value, utils.IST); err == nil {
			return ts
		}
	}
	return time.Time{}
}

func (u *UpstoxBroker) get(ctx context.Context, path, accessToken string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.apiURL+path, nil)
	if err != nil {
		return fmt.Errorf("upstox create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	return u.http.doJSON(req, Upstox, parseUpstoxError, out)
}

// parseUpstoxError разбирает {"status":"error","errors":[{"errorCode":..,"message":..}]}
// и OAuth-формат {"error":..,"error_description":..}
func parseUpstoxError(body []byte) (string, string) {
	var e struct {
		Errors []struct {
			ErrorCode string `json:"errorCode"`
			Message   string `json:"message"`
		} `json:"errors"`
		Message          string `json:"message"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &e); err != nil {
		return "", ""
	}

	switch {
	case len(e.Errors) > 0 && e.Errors[0].Message != "":
		return e.Errors[0].ErrorCode, e.Errors[0].Message
	case e.Message != "":
		return "", e.Message
	case e.ErrorDescription != "":
		return e.Error, e.ErrorDescription
	default:
		return "", e.Error
	}
}
