package broker

import (
	"fmt"
	"strings"

	"tradejournal/internal/models"
)

// SupportedBrokers - список поддерживаемых брокеров
var SupportedBrokers = []Type{Zerodha, Upstox, IBKR, MT5, Alpaca}

// Config - адреса API брокеров
type Config struct {
	UpstoxAuthURL string
	UpstoxAPIURL  string
	AlpacaBaseURL string
}

// Factory создаёт адаптеры брокеров с общим HTTP клиентом
type Factory struct {
	cfg  Config
	http *HTTPClient
}

// NewFactory создаёт фабрику. При nil клиенте используется клиент по умолчанию.
func NewFactory(cfg Config, client *HTTPClient) *Factory {
	if client == nil {
		client = NewHTTPClient(DefaultHTTPClientConfig())
	}
	return &Factory{cfg: cfg, http: client}
}

// Get создаёт адаптер по строковому имени брокера
func (f *Factory) Get(name string) (Broker, error) {
	t, err := ParseType(name)
	if err != nil {
		return nil, err
	}
	return f.New(t), nil
}

// New создаёт адаптер по типу. Тип должен быть из SupportedBrokers.
func (f *Factory) New(t Type) Broker {
	switch t {
	case Zerodha:
		return NewZerodha()
	case Upstox:
		return NewUpstox(f.cfg.UpstoxAuthURL, f.cfg.UpstoxAPIURL, f.http)
	case IBKR:
		return NewIBKR()
	case MT5:
		return NewMT5()
	case Alpaca:
		return NewAlpaca(f.cfg.AlpacaBaseURL, f.http)
	default:
		return nil
	}
}

// Upstox возвращает адаптер Upstox с OAuth и книгой сделок
func (f *Factory) Upstox() *UpstoxBroker {
	return NewUpstox(f.cfg.UpstoxAuthURL, f.cfg.UpstoxAPIURL, f.http)
}

// ParseType нормализует имя брокера и проверяет, что он поддерживается
func ParseType(name string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(name)))
	if !IsSupported(string(t)) {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedBroker, name)
	}
	return t, nil
}

// IsSupported проверяет, поддерживается ли брокер
func IsSupported(name string) bool {
	for _, t := range SupportedBrokers {
		if string(t) == name {
			return true
		}
	}
	return false
}

// Validate проверяет обязательные поля учетных данных без сетевых вызовов
func Validate(name string, creds models.Credentials) error {
	t, err := ParseType(name)
	if err != nil {
		return err
	}
	return checkRequired((&Factory{}).New(t), creds, missingMessage(t))
}
