package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"tradejournal/internal/auth"
	"tradejournal/internal/service"
)

func TestSyncHandler_SyncBrokers(t *testing.T) {
	t.Run("returns per-broker results", func(t *testing.T) {
		mockSvc := &MockSyncService{results: []*service.SyncResult{
			{BrokerID: 1, BrokerType: "upstox", Status: "imported", ImportedCount: 3, TotalTrades: 3},
			{BrokerID: 2, BrokerType: "alpaca", Status: "skipped", Error: "trade import is not supported for this broker"},
		}}
		handler := NewSyncHandler(mockSvc)

		w := httptest.NewRecorder()
		handler.SyncBrokers(w, httptest.NewRequest(http.MethodPost, "/api/sync/brokers", nil))

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}
		resp := decodeEnvelope[[]service.SyncResult](t, w)
		if len(resp.Data) != 2 {
			t.Fatalf("expected 2 results, got %d", len(resp.Data))
		}
		if resp.Data[0].ImportedCount != 3 || resp.Data[1].Status != "skipped" {
			t.Errorf("unexpected results: %+v", resp.Data)
		}
	})

	t.Run("no brokers returns empty array", func(t *testing.T) {
		handler := NewSyncHandler(&MockSyncService{})

		w := httptest.NewRecorder()
		handler.SyncBrokers(w, httptest.NewRequest(http.MethodPost, "/api/sync/brokers", nil))

		if resp := decodeEnvelope[[]service.SyncResult](t, w); resp.Data == nil {
			t.Error("expected empty array, got null")
		}
	})

	t.Run("unauthenticated returns 401", func(t *testing.T) {
		handler := NewSyncHandler(&MockSyncService{err: auth.ErrUnauthenticated})

		w := httptest.NewRecorder()
		handler.SyncBrokers(w, httptest.NewRequest(http.MethodPost, "/api/sync/brokers", nil))

		if w.Code != http.StatusUnauthorized {
			t.Errorf("expected status %d, got %d", http.StatusUnauthorized, w.Code)
		}
	})
}
