package utils

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// validator.go - валидация входных данных журнала

// Ошибки валидации
var (
	ErrInvalidSymbol       = errors.New("invalid symbol")
	ErrInvalidTradeType    = errors.New("trade type must be buy or sell")
	ErrInvalidPositionSide = errors.New("position side must be long or short")
	ErrInvalidTradeStatus  = errors.New("status must be open or closed")
	ErrInvalidQuantity     = errors.New("quantity must be positive")
	ErrInvalidPrice        = errors.New("price must be positive")
	ErrInvalidName         = errors.New("name is required")
	ErrNameTooLong         = errors.New("name is too long")
)

const (
	maxSymbolLength = 40
	maxNameLength   = 100
	maxQuantity     = 1e9
	maxPrice        = 1e9
)

// symbolRegex - тикеры бирж (RELIANCE, M&M, BAJAJ-AUTO, AAPL) и ключи инструментов (NSE_EQ|INE002A01018)
var symbolRegex = regexp.MustCompile(`^[A-Z0-9][A-Z0-9&._\-|:/]*$`)

// ValidateSymbol проверяет формат тикера
func ValidateSymbol(symbol string) error {
	normalized := NormalizeSymbol(symbol)
	if normalized == "" || len(normalized) > maxSymbolLength {
		return ErrInvalidSymbol
	}
	if !symbolRegex.MatchString(normalized) {
		return ErrInvalidSymbol
	}
	return nil
}

// NormalizeSymbol приводит тикер к верхнему регистру без внешних пробелов
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func ValidateTradeType(tradeType string) error {
	switch tradeType {
	case "buy", "sell":
		return nil
	default:
		return ErrInvalidTradeType
	}
}

func ValidatePositionSide(side string) error {
	switch side {
	case "long", "short":
		return nil
	default:
		return ErrInvalidPositionSide
	}
}

func ValidateTradeStatus(status string) error {
	switch status {
	case "open", "closed":
		return nil
	default:
		return ErrInvalidTradeStatus
	}
}

// ValidateQuantity проверяет количество (0 < qty <= 1e9)
func ValidateQuantity(qty float64) error {
	if qty <= 0 || qty > maxQuantity {
		return ErrInvalidQuantity
	}
	return nil
}

// ValidatePrice проверяет цену (0 < price <= 1e9)
func ValidatePrice(price float64) error {
	if price <= 0 || price > maxPrice {
		return ErrInvalidPrice
	}
	return nil
}

// ValidateName проверяет отображаемое имя (брокера, стратегии)
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidName
	}
	if len(name) > maxNameLength {
		return ErrNameTooLong
	}
	return nil
}

// ============================================================
// Накопление ошибок
// ============================================================

// FieldError - ошибка конкретного поля
type FieldError struct {
	Field   string
	Message string
}

// ValidationErrors - список ошибок по полям
type ValidationErrors []FieldError

// Add добавляет ошибку поля
func (ve *ValidationErrors) Add(field, message string) {
	*ve = append(*ve, FieldError{Field: field, Message: message})
}

// AddError добавляет ошибку, если err != nil
func (ve *ValidationErrors) AddError(field string, err error) {
	if err != nil {
		ve.Add(field, err.Error())
	}
}

// HasErrors проверяет наличие ошибок
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

func (ve ValidationErrors) Error() string {
	parts := make([]string, 0, len(ve))
	for _, e := range ve {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return strings.Join(parts, "; ")
}

// Err возвращает nil при отсутствии ошибок, иначе сам список
func (ve ValidationErrors) Err() error {
	if !ve.HasErrors() {
		return nil
	}
	return ve
}
