package broker

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"tradejournal/internal/models"
)

const defaultAlpacaBaseURL = "https://paper-api.alpaca.markets"

// AlpacaBroker - Alpaca Trading API (ключи передаются заголовками)
type AlpacaBroker struct {
	baseURL string
	http    *HTTPClient
}

// NewAlpaca создаёт адаптер Alpaca. Пустой baseURL - paper trading.
func NewAlpaca(baseURL string, client *HTTPClient) *AlpacaBroker {
	if baseURL == "" {
		baseURL = defaultAlpacaBaseURL
	}
	return &AlpacaBroker{baseURL: strings.TrimRight(baseURL, "/"), http: client}
}

func (a *AlpacaBroker) Type() Type { return Alpaca }

func (a *AlpacaBroker) RequiredFields() []Field {
	return []Field{FieldAPIKey, FieldAPISecret}
}

type alpacaAccount struct {
	ID            string `json:"id"`
	AccountNumber string `json:"account_number"`
	Status        string `json:"status"`
	Currency      string `json:"currency"`
}

// TestConnection запрашивает GET /v2/account
func (a *AlpacaBroker) TestConnection(ctx context.Context, creds models.Credentials) (*ConnectionStatus, error) {
	if err := checkRequired(a, creds, msgMissingKeySecret); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/v2/account", nil)
	if err != nil {
		return nil, fmt.Errorf("alpaca create request: %w", err)
	}
	req.Header.Set("APCA-API-KEY-ID", creds.APIKey)
	req.Header.Set("APCA-API-SECRET-KEY", creds.APISecret)
	req.Header.Set("Accept", "application/json")

	var account alpacaAccount
	if err := a.http.doJSON(req, Alpaca, parseAlpacaError, &account); err != nil {
		return nil, err
	}

	return &ConnectionStatus{
		BrokerType: Alpaca,
		Status:     StatusConnected,
		AccountID:  account.AccountNumber,
		Message:    account.Status,
	}, nil
}

// parseAlpacaError разбирает {"code": 40110000, "message": "..."}
func parseAlpacaError(body []byte) (string, string) {
	var e struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &e); err != nil {
		return "", ""
	}
	if e.Code == 0 {
		return "", e.Message
	}
	return fmt.Sprintf("%d", e.Code), e.Message
}
