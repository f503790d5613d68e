package handlers

import (
	"net/http"

	"tradejournal/internal/models"
	"tradejournal/internal/service"
)

// PortfolioHandler отвечает за сводку портфеля, аналитику и стратегии
//
// Endpoints:
// - GET /api/portfolio/summary
// - GET /api/analytics/data?period=day|week|month|year|all
// - GET /api/strategies
// - POST /api/strategies
// - DELETE /api/strategies/{id}
type PortfolioHandler struct {
	portfolio  service.PortfolioServiceInterface
	strategies service.StrategyServiceInterface
}

// NewPortfolioHandler создает новый PortfolioHandler
func NewPortfolioHandler(portfolio service.PortfolioServiceInterface, strategies service.StrategyServiceInterface) *PortfolioHandler {
	return &PortfolioHandler{
		portfolio:  portfolio,
		strategies: strategies,
	}
}

// CreateStrategyRequest - тело POST /api/strategies
type CreateStrategyRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// GetSummary GET /api/portfolio/summary
func (h *PortfolioHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.portfolio.Summary(r.Context())
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, summary)
}

// GetAnalytics GET /api/analytics/data
func (h *PortfolioHandler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	data, err := h.portfolio.Analytics(r.Context(), r.URL.Query().Get("period"))
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, data)
}

// GetStrategies GET /api/strategies
func (h *PortfolioHandler) GetStrategies(w http.ResponseWriter, r *http.Request) {
	strategies, err := h.strategies.List(r.Context())
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	if strategies == nil {
		strategies = []*models.Strategy{}
	}
	respondWithJSON(w, http.StatusOK, strategies)
}

// CreateStrategy POST /api/strategies
func (h *PortfolioHandler) CreateStrategy(w http.ResponseWriter, r *http.Request) {
	var req CreateStrategyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	strategy, err := h.strategies.Create(r.Context(), req.Name, req.Description)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, strategy)
}

// DeleteStrategy DELETE /api/strategies/{id}
func (h *PortfolioHandler) DeleteStrategy(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.strategies.Delete(r.Context(), id); err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int64{"deleted": id})
}
