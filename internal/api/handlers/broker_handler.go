package handlers

import (
	"net/http"

	"tradejournal/internal/broker"
	"tradejournal/internal/models"
	"tradejournal/internal/service"
)

// AddBrokerRequest - тело POST /api/brokers
type AddBrokerRequest struct {
	Name           string             `json:"name"`
	BrokerType     string             `json:"broker_type"`
	Credentials    models.Credentials `json:"credentials"`
	TestConnection bool               `json:"test_connection,omitempty"`
}

// UpdateBrokerRequest - тело PUT /api/brokers/{id}
type UpdateBrokerRequest struct {
	Name        *string             `json:"name,omitempty"`
	Credentials *models.Credentials `json:"credentials,omitempty"`
	Status      *string             `json:"status,omitempty"`
}

// TestConnectionRequest - тело POST /api/brokers/test.
// Либо broker_id сохранённого брокера, либо broker_type с учетными данными.
type TestConnectionRequest struct {
	BrokerID    int64              `json:"broker_id,omitempty"`
	BrokerType  string             `json:"broker_type,omitempty"`
	Credentials models.Credentials `json:"credentials"`
}

// BrokerDetails - брокер с замаскированными учетными данными
type BrokerDetails struct {
	*models.BrokerRecord
	Credentials models.Credentials `json:"credentials"`
}

// BrokerHandler отвечает за брокерские аккаунты пользователя
//
// Endpoints:
// - GET /api/trading/accounts - брокеры со статусом и количеством сделок
// - GET /api/brokers - список брокеров
// - POST /api/brokers - добавить брокера
// - GET /api/brokers/status - статусы подключений (для Upstox - OAuth токен)
// - POST /api/brokers/test - проверить учетные данные
// - GET|PUT|DELETE /api/brokers/{id}
type BrokerHandler struct {
	credentials service.CredentialServiceInterface
	connection  service.ConnectionServiceInterface
	accounts    service.AccountServiceInterface
}

// NewBrokerHandler создает новый BrokerHandler
func NewBrokerHandler(credentials service.CredentialServiceInterface, connection service.ConnectionServiceInterface, accounts service.AccountServiceInterface) *BrokerHandler {
	return &BrokerHandler{
		credentials: credentials,
		connection:  connection,
		accounts:    accounts,
	}
}

// GetTradingAccounts GET /api/trading/accounts
func (h *BrokerHandler) GetTradingAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accounts.TradingAccounts(r.Context())
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, accounts)
}

// GetBrokers GET /api/brokers
func (h *BrokerHandler) GetBrokers(w http.ResponseWriter, r *http.Request) {
	brokers, err := h.credentials.List(r.Context())
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	if brokers == nil {
		brokers = []*models.BrokerRecord{}
	}
	respondWithJSON(w, http.StatusOK, brokers)
}

// AddBroker добавляет брокера
// POST /api/brokers
//
// Тело запроса:
//
//	{
//	  "name": "My Alpaca",
//	  "broker_type": "alpaca",
//	  "credentials": {"apiKey": "...", "apiSecret": "..."},
//	  "test_connection": true
//	}
//
// Ответы:
// - 201 Created: брокер сохранён
// - 400 Bad Request: неизвестный брокер или не хватает полей
// - 409 Conflict: брокер этого типа уже добавлен
// - 502 Bad Gateway: брокер отверг учетные данные (test_connection)
func (h *BrokerHandler) AddBroker(w http.ResponseWriter, r *http.Request) {
	var req AddBrokerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx := r.Context()
	if req.TestConnection {
		if _, err := h.connection.Test(ctx, req.BrokerType, req.Credentials); err != nil {
			respondWithServiceError(w, r, err)
			return
		}
	}

	record, err := h.credentials.Store(ctx, service.StoreBrokerInput{
		Name:        req.Name,
		BrokerType:  req.BrokerType,
		Credentials: req.Credentials,
	})
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, record)
}

// GetBrokerStatus GET /api/brokers/status
func (h *BrokerHandler) GetBrokerStatus(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.accounts.BrokerStatuses(r.Context())
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, statuses)
}

// GetBroker GET /api/brokers/{id}
func (h *BrokerHandler) GetBroker(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	record, creds, err := h.credentials.Get(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, BrokerDetails{BrokerRecord: record, Credentials: creds.Masked()})
}

// UpdateBroker PUT /api/brokers/{id}
func (h *BrokerHandler) UpdateBroker(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req UpdateBrokerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	record, err := h.credentials.Update(r.Context(), id, service.UpdateBrokerInput{
		Name:        req.Name,
		Credentials: req.Credentials,
		Status:      req.Status,
	})
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, record)
}

// DeleteBroker DELETE /api/brokers/{id}
func (h *BrokerHandler) DeleteBroker(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.credentials.Delete(r.Context(), id); err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int64{"deleted": id})
}

// TestConnection POST /api/brokers/test
func (h *BrokerHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	var req TestConnectionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx := r.Context()
	var (
		status *broker.ConnectionStatus
		err    error
	)
	if req.BrokerID > 0 {
		status, err = h.connection.TestStored(ctx, req.BrokerID)
	} else {
		status, err = h.connection.Test(ctx, req.BrokerType, req.Credentials)
	}
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, status)
}
