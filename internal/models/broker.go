package models

import "time"

// BrokerRecord представляет подключенный брокерский аккаунт пользователя
type BrokerRecord struct {
	ID          int64      `json:"id" db:"id"`
	UserID      int64      `json:"user_id" db:"user_id"`
	Name        string     `json:"name" db:"name"`               // отображаемое имя ("Upstox", "My Alpaca")
	BrokerType  string     `json:"broker_type" db:"broker_type"` // zerodha, upstox, ibkr, mt5, alpaca
	Credentials string     `json:"-" db:"credentials"`           // зашифрованный blob, не возвращается в JSON
	Status      string     `json:"status" db:"status"`           // active, inactive
	LastSyncAt  *time.Time `json:"last_sync_at,omitempty" db:"last_sync_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// Статусы брокерского аккаунта
const (
	BrokerStatusActive   = "active"
	BrokerStatusInactive = "inactive"
)

// IsActive проверяет, активен ли аккаунт
func (b *BrokerRecord) IsActive() bool {
	return b.Status == BrokerStatusActive
}

// Credentials - расшифрованные учетные данные брокера.
// Набор заполненных полей зависит от типа брокера.
type Credentials struct {
	APIKey        string `json:"apiKey,omitempty"`
	APISecret     string `json:"apiSecret,omitempty"`
	AccountUserID string `json:"userId,omitempty"`
	Password      string `json:"password,omitempty"`
	TOTPKey       string `json:"totpKey,omitempty"`
	ServerAddress string `json:"serverAddress,omitempty"`
	AccessToken   string `json:"accessToken,omitempty"`
}

// Masked возвращает копию с замаскированными секретами (для ответов API)
func (c Credentials) Masked() Credentials {
	return Credentials{
		APIKey:        maskSecret(c.APIKey),
		APISecret:     maskSecret(c.APISecret),
		AccountUserID: c.AccountUserID,
		Password:      maskSecret(c.Password),
		TOTPKey:       maskSecret(c.TOTPKey),
		ServerAddress: c.ServerAddress,
		AccessToken:   maskSecret(c.AccessToken),
	}
}

// maskSecret оставляет видимыми только последние 4 символа
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}

// BrokerStatus - сводный статус брокера для GET /api/brokers/status
type BrokerStatus struct {
	BrokerID       int64      `json:"broker_id"`
	Name           string     `json:"name"`
	BrokerType     string     `json:"broker_type"`
	Status         string     `json:"status"`
	LastSyncAt     *time.Time `json:"last_sync_at,omitempty"`
	TokenConnected bool       `json:"token_connected"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`
}

// TradingAccount - брокерский аккаунт с количеством сделок (GET /api/trading/accounts)
type TradingAccount struct {
	BrokerID   int64      `json:"broker_id"`
	Name       string     `json:"name"`
	BrokerType string     `json:"broker_type"`
	Status     string     `json:"status"`
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
	TradeCount int        `json:"trade_count"`
}
