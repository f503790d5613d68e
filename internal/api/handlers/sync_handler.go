package handlers

import (
	"net/http"

	"tradejournal/internal/service"
)

// SyncHandler запускает синхронизацию брокеров пользователя
type SyncHandler struct {
	sync service.SyncServiceInterface
}

// NewSyncHandler создает новый SyncHandler
func NewSyncHandler(sync service.SyncServiceInterface) *SyncHandler {
	return &SyncHandler{sync: sync}
}

// SyncBrokers POST /api/sync/brokers
func (h *SyncHandler) SyncBrokers(w http.ResponseWriter, r *http.Request) {
	results, err := h.sync.SyncBrokers(r.Context())
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	if results == nil {
		results = []*service.SyncResult{}
	}
	respondWithJSON(w, http.StatusOK, results)
}
