package handlers

import (
	"net/http"
	"time"

	"tradejournal/internal/service"
)

// TokenExchangeResponse - ответ на обмен кода. Сами токены клиенту не отдаются.
type TokenExchangeResponse struct {
	Connected bool      `json:"connected"`
	ExpiresAt time.Time `json:"expires_at"`
}

// UpstoxHandler отвечает за OAuth подключение Upstox и импорт сделок
//
// Endpoints:
// - GET /api/upstox/auth-url?client_id=&redirect_uri=
// - POST /api/upstox/token
// - GET /api/upstox/status
// - DELETE /api/upstox/connection
// - POST /api/upstox/import
type UpstoxHandler struct {
	oauth    service.OAuthServiceInterface
	importer service.ImportServiceInterface
}

// NewUpstoxHandler создает новый UpstoxHandler
func NewUpstoxHandler(oauth service.OAuthServiceInterface, importer service.ImportServiceInterface) *UpstoxHandler {
	return &UpstoxHandler{
		oauth:    oauth,
		importer: importer,
	}
}

// GetAuthURL GET /api/upstox/auth-url
func (h *UpstoxHandler) GetAuthURL(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := h.oauth.BeginAuth(r.Context(), service.AuthURLRequest{
		ClientID:    q.Get("client_id"),
		RedirectURI: q.Get("redirect_uri"),
	})
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

// ExchangeToken обменивает authorization code из redirect'а на токены
// POST /api/upstox/token
//
// Тело запроса: {"code": "...", "state": "..."}, client_id/client_secret/redirect_uri опциональны
//
// Ответы:
// - 200 OK: токены сохранены
// - 400 Bad Request: нет кода, неизвестный или просроченный state
// - 502 Bad Gateway: Upstox отклонил код
func (h *UpstoxHandler) ExchangeToken(w http.ResponseWriter, r *http.Request) {
	var req service.CodeExchangeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	tokens, err := h.oauth.CompleteAuth(r.Context(), req)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, TokenExchangeResponse{
		Connected: true,
		ExpiresAt: tokens.ExpiresAt,
	})
}

// GetStatus GET /api/upstox/status
func (h *UpstoxHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.oauth.Status(r.Context())
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, status)
}

// Disconnect DELETE /api/upstox/connection
func (h *UpstoxHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.oauth.Disconnect(r.Context()); err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]bool{"connected": false})
}

// ImportTrades POST /api/upstox/import
func (h *UpstoxHandler) ImportTrades(w http.ResponseWriter, r *http.Request) {
	result, err := h.importer.ImportTradesToDatabase(r.Context())
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}
