package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"tradejournal/internal/models"
	"tradejournal/internal/service"
	"tradejournal/pkg/utils"
)

// TradeHandler отвечает за журнал сделок
//
// Endpoints:
// - GET /api/trades?status=&symbol=&broker_id=&from=&to=
// - POST /api/trades
// - PUT /api/trades/{id}
// - DELETE /api/trades/{id}
// - POST /api/trades/close/{id}
type TradeHandler struct {
	trades service.TradeServiceInterface
}

// NewTradeHandler создает новый TradeHandler
func NewTradeHandler(trades service.TradeServiceInterface) *TradeHandler {
	return &TradeHandler{trades: trades}
}

// GetTrades возвращает сделки по фильтру
// GET /api/trades
//
// Параметры from/to в RFC3339.
func (h *TradeHandler) GetTrades(w http.ResponseWriter, r *http.Request) {
	filter, err := parseTradeFilter(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	trades, err := h.trades.List(r.Context(), filter)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	if trades == nil {
		trades = []*models.Trade{}
	}
	respondWithJSON(w, http.StatusOK, trades)
}

// CreateTrade POST /api/trades
func (h *TradeHandler) CreateTrade(w http.ResponseWriter, r *http.Request) {
	var input service.TradeInput
	if !decodeJSON(w, r, &input) {
		return
	}

	trade, err := h.trades.Create(r.Context(), input)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, trade)
}

// UpdateTrade PUT /api/trades/{id}
func (h *TradeHandler) UpdateTrade(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	var input service.TradeUpdate
	if !decodeJSON(w, r, &input) {
		return
	}

	trade, err := h.trades.Update(r.Context(), id, input)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, trade)
}

// DeleteTrade DELETE /api/trades/{id}
func (h *TradeHandler) DeleteTrade(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.trades.Delete(r.Context(), id); err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int64{"deleted": id})
}

// CloseTrade закрывает открытую сделку
// POST /api/trades/close/{id}
//
// Тело запроса: {"exit_price": 101.5, "closed_at": "2024-03-15T10:00:00Z"}
//
// Ответы:
// - 200 OK: закрытая сделка
// - 400 Bad Request: некорректная цена выхода
// - 404 Not Found: сделка не найдена
// - 409 Conflict: сделка уже закрыта
func (h *TradeHandler) CloseTrade(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	var input service.CloseTradeInput
	if !decodeJSON(w, r, &input) {
		return
	}

	trade, err := h.trades.Close(r.Context(), id, input)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, trade)
}

func parseTradeFilter(r *http.Request) (models.TradeFilter, error) {
	q := r.URL.Query()
	filter := models.TradeFilter{
		Status: q.Get("status"),
		Symbol: utils.NormalizeSymbol(q.Get("symbol")),
	}

	if raw := q.Get("broker_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return filter, fmt.Errorf("invalid broker_id %q", raw)
		}
		filter.BrokerID = &id
	}

	for _, p := range []struct {
		name string
		dst  **time.Time
	}{
		{"from", &filter.From},
		{"to", &filter.To},
	} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, fmt.Errorf("invalid %s %q", p.name, raw)
		}
		*p.dst = &t
	}

	return filter, nil
}
