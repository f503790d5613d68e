package broker

import (
	"context"
	"time"

	"tradejournal/internal/models"
)

// Type - тип брокера (закрытое множество)
type Type string

const (
	Zerodha Type = "zerodha"
	Upstox  Type = "upstox"
	IBKR    Type = "ibkr"
	MT5     Type = "mt5"
	Alpaca  Type = "alpaca"
)

// String возвращает строковое значение типа
func (t Type) String() string {
	return string(t)
}

// DisplayName возвращает имя брокера для новой записи
func (t Type) DisplayName() string {
	switch t {
	case Zerodha:
		return "Zerodha"
	case Upstox:
		return "Upstox"
	case IBKR:
		return "Interactive Brokers"
	case MT5:
		return "MetaTrader 5"
	case Alpaca:
		return "Alpaca"
	default:
		return string(t)
	}
}

// Field - имя поля учетных данных (совпадает с JSON ключом в blob)
type Field string

const (
	FieldAPIKey        Field = "apiKey"
	FieldAPISecret     Field = "apiSecret"
	FieldUserID        Field = "userId"
	FieldPassword      Field = "password"
	FieldServerAddress Field = "serverAddress"
)

// value возвращает значение поля из учетных данных
func (f Field) value(c models.Credentials) string {
	switch f {
	case FieldAPIKey:
		return c.APIKey
	case FieldAPISecret:
		return c.APISecret
	case FieldUserID:
		return c.AccountUserID
	case FieldPassword:
		return c.Password
	case FieldServerAddress:
		return c.ServerAddress
	default:
		return ""
	}
}

// Статусы проверки подключения
const (
	StatusConnected = "connected" // брокер подтвердил учетные данные
	StatusValidated = "validated" // проверен только набор полей, сетевого вызова не было
)

// ConnectionStatus - результат проверки подключения
type ConnectionStatus struct {
	BrokerType Type   `json:"broker_type"`
	Status     string `json:"status"`
	AccountID  string `json:"account_id,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Broker определяет общий для всех брокеров набор возможностей
type Broker interface {
	// Type возвращает тип брокера
	Type() Type

	// RequiredFields возвращает обязательные поля учетных данных
	RequiredFields() []Field

	// TestConnection проверяет учетные данные. Обязательные поля
	// проверяются до любого сетевого вызова.
	TestConnection(ctx context.Context, creds models.Credentials) (*ConnectionStatus, error)
}

// TokenSet - набор OAuth токенов, выданный брокером
type TokenSet struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// TokenExchanger - брокеры с OAuth авторизацией
type TokenExchanger interface {
	AuthURL(clientID, redirectURI, state string) string
	ExchangeCode(ctx context.Context, code, clientID, clientSecret, redirectURI string) (*TokenSet, error)
	Refresh(ctx context.Context, refreshToken, clientID, clientSecret string) (*TokenSet, error)
}

// Trade - сделка в терминах брокера (до маппинга в журнал)
type Trade struct {
	TradeID         string
	Symbol          string
	Exchange        string
	TransactionType string // BUY, SELL
	Quantity        float64
	AveragePrice    float64
	ExecutedAt      time.Time // нулевое значение, если брокер не отдал время
}

// TradeFetcher - брокеры, умеющие отдавать книгу сделок
type TradeFetcher interface {
	FetchTrades(ctx context.Context, accessToken string) ([]Trade, error)
}

// checkRequired возвращает ValidationError, если хотя бы одно обязательное поле пустое
func checkRequired(b Broker, creds models.Credentials, message string) error {
	var missing []Field
	for _, f := range b.RequiredFields() {
		if f.value(creds) == "" {
			missing = append(missing, f)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &ValidationError{Broker: b.Type(), Missing: missing, Message: message}
}

// validatedOnly - проверка для брокеров без публичного handshake
func validatedOnly(b Broker, creds models.Credentials, message string) (*ConnectionStatus, error) {
	if err := checkRequired(b, creds, message); err != nil {
		return nil, err
	}
	return &ConnectionStatus{
		BrokerType: b.Type(),
		Status:     StatusValidated,
		Message:    "credentials format verified",
	}, nil
}
