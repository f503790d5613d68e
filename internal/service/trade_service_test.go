package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"tradejournal/internal/models"
	"tradejournal/internal/repository"
)

func newTradeService() (*TradeService, *MockTradeRepository, *MockBrokerRepository, *MockStrategyRepository) {
	trades := NewMockTradeRepository()
	brokers := NewMockBrokerRepository()
	strategies := NewMockStrategyRepository()
	return NewTradeService(trades, brokers, strategies, testLogger()), trades, brokers, strategies
}

func floatPtr(v float64) *float64 { return &v }

func int64Ptr(v int64) *int64 { return &v }

func TestTradeService_Create(t *testing.T) {
	freezeTime(t, testNow)
	svc, _, brokers, _ := newTradeService()
	brokers.Create(context.Background(), &models.BrokerRecord{UserID: 1, Name: "Zerodha", BrokerType: "zerodha"})
	brokers.Create(context.Background(), &models.BrokerRecord{UserID: 2, Name: "Zerodha", BrokerType: "zerodha"})

	tests := []struct {
		name       string
		input      TradeInput
		wantErr    error
		wantSide   string
		wantStatus string
	}{
		{
			name:       "buy defaults to long and open",
			input:      TradeInput{Symbol: "reliance", TradeType: "BUY", Quantity: 10, EntryPrice: 2500},
			wantSide:   models.PositionLong,
			wantStatus: models.TradeStatusOpen,
		},
		{
			name:       "sell with exit price is closed short",
			input:      TradeInput{Symbol: "TCS", TradeType: "sell", Quantity: 1, EntryPrice: 4000, ExitPrice: floatPtr(3900)},
			wantSide:   models.PositionShort,
			wantStatus: models.TradeStatusClosed,
		},
		{
			name:       "own broker reference",
			input:      TradeInput{Symbol: "INFY", TradeType: "buy", Quantity: 1, EntryPrice: 1500, BrokerID: int64Ptr(1)},
			wantSide:   models.PositionLong,
			wantStatus: models.TradeStatusOpen,
		},
		{
			name:    "foreign broker reference",
			input:   TradeInput{Symbol: "INFY", TradeType: "buy", Quantity: 1, EntryPrice: 1500, BrokerID: int64Ptr(2)},
			wantErr: ErrInvalidTrade,
		},
		{
			name:    "unknown strategy",
			input:   TradeInput{Symbol: "INFY", TradeType: "buy", Quantity: 1, EntryPrice: 1500, StrategyID: int64Ptr(42)},
			wantErr: ErrInvalidTrade,
		},
		{
			name:    "zero quantity",
			input:   TradeInput{Symbol: "INFY", TradeType: "buy", Quantity: 0, EntryPrice: 1500},
			wantErr: ErrInvalidTrade,
		},
		{
			name:    "closed without exit price",
			input:   TradeInput{Symbol: "INFY", TradeType: "buy", Quantity: 1, EntryPrice: 1500, Status: "closed"},
			wantErr: ErrInvalidTrade,
		},
		{
			name:    "bad trade type",
			input:   TradeInput{Symbol: "INFY", TradeType: "hold", Quantity: 1, EntryPrice: 1500},
			wantErr: ErrInvalidTrade,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trade, err := svc.Create(userCtx(1), tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			if trade.ID == 0 {
				t.Error("trade id not assigned")
			}
			if trade.PositionSide != tt.wantSide || trade.Status != tt.wantStatus {
				t.Errorf("side/status = %s/%s, want %s/%s", trade.PositionSide, trade.Status, tt.wantSide, tt.wantStatus)
			}
			if trade.Symbol != strings.ToUpper(strings.TrimSpace(tt.input.Symbol)) {
				t.Errorf("Symbol = %q", trade.Symbol)
			}
			if !trade.OpenedAt.Equal(testNow) {
				t.Errorf("OpenedAt = %v, want now", trade.OpenedAt)
			}
			if tt.wantStatus == models.TradeStatusClosed && (trade.ClosedAt == nil || !trade.ClosedAt.Equal(testNow)) {
				t.Errorf("ClosedAt = %v, want now", trade.ClosedAt)
			}
		})
	}
}

func TestTradeService_ValidationListsAllFields(t *testing.T) {
	svc, _, _, _ := newTradeService()

	_, err := svc.Create(userCtx(1), TradeInput{Symbol: "", TradeType: "x", Quantity: -1, EntryPrice: -5})
	if !errors.Is(err, ErrInvalidTrade) {
		t.Fatalf("error = %v, want ErrInvalidTrade", err)
	}
	for _, field := range []string{"symbol", "trade_type", "quantity", "entry_price"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("error %q does not mention %s", err.Error(), field)
		}
	}
}

func TestTradeService_Close(t *testing.T) {
	freezeTime(t, testNow)
	svc, _, _, _ := newTradeService()
	ctx := userCtx(1)
	opened := testNow.Add(-time.Hour)
	trade, err := svc.Create(ctx, TradeInput{Symbol: "SBIN", TradeType: "sell", Quantity: 100, EntryPrice: 600, OpenedAt: &opened})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	closed, err := svc.Close(ctx, trade.ID, CloseTradeInput{ExitPrice: 590})
	if err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !closed.IsClosed() || closed.ClosedAt == nil || !closed.ClosedAt.Equal(testNow) {
		t.Errorf("closed trade = %+v", closed)
	}
	if pnl, ok := closed.PnL(); !ok || pnl != 1000 {
		t.Errorf("PnL() = %v, %v, want 1000", pnl, ok)
	}

	if _, err := svc.Close(ctx, trade.ID, CloseTradeInput{ExitPrice: 580}); !errors.Is(err, ErrTradeAlreadyClosed) {
		t.Errorf("second close error = %v, want ErrTradeAlreadyClosed", err)
	}
}

func TestTradeService_CloseValidation(t *testing.T) {
	freezeTime(t, testNow)
	svc, _, _, _ := newTradeService()
	ctx := userCtx(1)
	trade, _ := svc.Create(ctx, TradeInput{Symbol: "SBIN", TradeType: "buy", Quantity: 1, EntryPrice: 600})
	before := testNow.Add(-24 * time.Hour)

	tests := []struct {
		name  string
		id    int64
		input CloseTradeInput
		want  error
	}{
		{"negative price", trade.ID, CloseTradeInput{ExitPrice: -1}, ErrInvalidTrade},
		{"closed before opened", trade.ID, CloseTradeInput{ExitPrice: 610, ClosedAt: &before}, ErrInvalidTrade},
		{"missing trade", 999, CloseTradeInput{ExitPrice: 610}, repository.ErrTradeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Close(ctx, tt.id, tt.input); !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestTradeService_Update(t *testing.T) {
	freezeTime(t, testNow)
	svc, _, _, strategies := newTradeService()
	ctx := userCtx(1)
	strategies.Create(context.Background(), &models.Strategy{UserID: 1, Name: "Breakout"})
	trade, _ := svc.Create(ctx, TradeInput{Symbol: "HDFC", TradeType: "buy", Quantity: 1, EntryPrice: 1600})

	newType := "sell"
	notes := "  reversed  "
	updated, err := svc.Update(ctx, trade.ID, TradeUpdate{TradeType: &newType, Notes: &notes, StrategyID: int64Ptr(1)})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.PositionSide != models.PositionShort || updated.Notes != "reversed" {
		t.Errorf("updated = %+v", updated)
	}

	if _, err := svc.Update(ctx, trade.ID, TradeUpdate{ExitPrice: floatPtr(1700)}); !errors.Is(err, ErrInvalidTrade) {
		t.Errorf("exit price on open trade error = %v", err)
	}
	if _, err := svc.Update(userCtx(2), trade.ID, TradeUpdate{Notes: &notes}); !errors.Is(err, repository.ErrTradeNotFound) {
		t.Errorf("foreign update error = %v", err)
	}
}

func TestTradeService_ListAndDelete(t *testing.T) {
	freezeTime(t, testNow)
	svc, _, _, _ := newTradeService()
	ctx := userCtx(1)
	svc.Create(ctx, TradeInput{Symbol: "AAPL", TradeType: "buy", Quantity: 1, EntryPrice: 180})
	t2, _ := svc.Create(ctx, TradeInput{Symbol: "MSFT", TradeType: "buy", Quantity: 1, EntryPrice: 400, ExitPrice: floatPtr(410)})

	closed, err := svc.List(ctx, models.TradeFilter{Status: "closed"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(closed) != 1 || closed[0].ID != t2.ID {
		t.Errorf("closed trades = %+v", closed)
	}

	bySymbol, _ := svc.List(ctx, models.TradeFilter{Symbol: "aapl"})
	if len(bySymbol) != 1 {
		t.Errorf("symbol filter = %d trades, want 1", len(bySymbol))
	}

	if _, err := svc.List(ctx, models.TradeFilter{Status: "pending"}); !errors.Is(err, ErrInvalidTrade) {
		t.Errorf("bad status error = %v", err)
	}

	if err := svc.Delete(ctx, t2.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := svc.Get(ctx, t2.ID); !errors.Is(err, repository.ErrTradeNotFound) {
		t.Errorf("Get() after delete error = %v", err)
	}
}
