package broker

import (
	"errors"
	"fmt"
)

// Сообщения валидации учетных данных
const (
	msgMissingKeySecret     = "Missing API key or API secret"
	msgMissingUserPassword  = "Missing user ID or password"
	msgMissingMT5Credential = "Missing user ID, password, or server address"
)

// ErrUnsupportedBroker - тип брокера вне поддерживаемого множества
var ErrUnsupportedBroker = errors.New("unsupported broker")

// ValidationError - не хватает обязательных полей учетных данных
type ValidationError struct {
	Broker  Type
	Missing []Field
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// APIError - брокер ответил ошибкой. Message берётся из тела ответа как есть.
type APIError struct {
	Broker     Type
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// newAPIError собирает APIError из статуса и разобранного сообщения
func newAPIError(broker Type, status int, code, message string) *APIError {
	if message == "" {
		message = fmt.Sprintf("broker request failed with status %d", status)
	}
	return &APIError{Broker: broker, StatusCode: status, Code: code, Message: message}
}

// IsValidationError проверяет, является ли ошибка ошибкой валидации
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsAPIError проверяет, является ли ошибка ответом брокера
func IsAPIError(err error) bool {
	var ae *APIError
	return errors.As(err, &ae)
}

// missingMessage - сообщение валидации для типа брокера
func missingMessage(t Type) string {
	switch t {
	case IBKR:
		return msgMissingUserPassword
	case MT5:
		return msgMissingMT5Credential
	default:
		return msgMissingKeySecret
	}
}
