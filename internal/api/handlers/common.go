package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"

	"tradejournal/internal/auth"
	"tradejournal/internal/broker"
	"tradejournal/internal/repository"
	"tradejournal/internal/service"
	"tradejournal/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MaxRequestBodySize ограничение размера тела запроса (1 MB)
const MaxRequestBodySize = 1 << 20

// Response - единый формат ответа API: {success, data, error}
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// respondWithJSON отправляет успешный ответ
func respondWithJSON(w http.ResponseWriter, code int, data interface{}) {
	writeResponse(w, code, Response{Success: true, Data: data})
}

// respondWithError отправляет ответ с ошибкой
func respondWithError(w http.ResponseWriter, code int, message string) {
	writeResponse(w, code, Response{Success: false, Error: message})
}

// RespondWithError доступен middleware (401 до вызова handler'а)
func RespondWithError(w http.ResponseWriter, code int, message string) {
	respondWithError(w, code, message)
}

func writeResponse(w http.ResponseWriter, code int, payload Response) {
	body, err := json.Marshal(payload)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"success":false,"error":"failed to marshal response"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}

// respondWithServiceError переводит ошибку сервиса в HTTP статус
func respondWithServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusForError(err)
	message := err.Error()
	if code == http.StatusInternalServerError {
		utils.Error("request failed", utils.Method(r.Method), utils.Path(r.URL.Path), utils.Err(err))
		message = "internal server error"
	}
	respondWithError(w, code, message)
}

// statusForError - таблица соответствия ошибок и HTTP кодов
func statusForError(err error) int {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized

	case broker.IsValidationError(err),
		errors.Is(err, broker.ErrUnsupportedBroker),
		errors.Is(err, service.ErrInvalidTrade),
		errors.Is(err, service.ErrInvalidBroker),
		errors.Is(err, service.ErrInvalidBrokerStatus),
		errors.Is(err, service.ErrInvalidStrategy),
		errors.Is(err, service.ErrInvalidPeriod),
		errors.Is(err, service.ErrInvalidOAuthState),
		errors.Is(err, service.ErrInvalidRedirectURI),
		errors.Is(err, service.ErrMissingAuthCode),
		errors.Is(err, service.ErrMissingOAuthClient):
		return http.StatusBadRequest

	case errors.Is(err, repository.ErrBrokerNotFound),
		errors.Is(err, repository.ErrTradeNotFound),
		errors.Is(err, repository.ErrStrategyNotFound),
		errors.Is(err, service.ErrNoStoredTokens):
		return http.StatusNotFound

	case errors.Is(err, service.ErrBrokerExists),
		errors.Is(err, repository.ErrStrategyExists),
		errors.Is(err, service.ErrTradeAlreadyClosed):
		return http.StatusConflict

	case errors.Is(err, service.ErrInvalidCredentialsFormat):
		return http.StatusUnprocessableEntity

	case broker.IsAPIError(err), errors.Is(err, service.ErrTokenRefreshFailed):
		return http.StatusBadGateway

	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON читает тело запроса с ограничением размера
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// pathID разбирает числовой параметр пути
func pathID(r *http.Request, name string) (int64, error) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return id, nil
}
