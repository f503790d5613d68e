package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"tradejournal/internal/broker"
	"tradejournal/internal/events"
	"tradejournal/internal/models"
	"tradejournal/pkg/utils"
)

func connectUpstox(t *testing.T, env *testEnv, userID int64) {
	t.Helper()
	env.tokens.Upsert(context.Background(), &models.OAuthToken{
		UserID:       userID,
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    testNow.Add(time.Hour),
	})
}

func brokerTrades(n int) []broker.Trade {
	trades := make([]broker.Trade, n)
	for i := range trades {
		side := "BUY"
		if i%2 == 1 {
			side = "SELL"
		}
		trades[i] = broker.Trade{
			TradeID:         fmt.Sprintf("T%02d", i),
			Symbol:          "infy",
			Exchange:        "NSE",
			TransactionType: side,
			Quantity:        float64(i + 1),
			AveragePrice:    1500.5,
			ExecutedAt:      testNow.Add(-time.Duration(i) * time.Minute),
		}
	}
	return trades
}

func TestImport_PartialFailures(t *testing.T) {
	freezeTime(t, testNow)
	env := newTestEnv()
	connectUpstox(t, env, 1)
	env.upstox.fetchFn = func(accessToken string) ([]broker.Trade, error) {
		if accessToken != "access" {
			t.Errorf("access token = %q", accessToken)
		}
		return brokerTrades(10), nil
	}
	env.trades.failUpserts["T03"] = true
	env.trades.failUpserts["T07"] = true

	result, err := env.importer.ImportTradesToDatabase(userCtx(1))
	if err != nil {
		t.Fatalf("ImportTradesToDatabase() error = %v", err)
	}

	if result.ImportedCount != 8 {
		t.Errorf("ImportedCount = %d, want 8", result.ImportedCount)
	}
	if result.TotalUpstoxTrades != 10 {
		t.Errorf("TotalUpstoxTrades = %d, want 10", result.TotalUpstoxTrades)
	}
	if len(result.Trades) != 8 {
		t.Errorf("len(Trades) = %d, want 8", len(result.Trades))
	}
	if env.trades.upsertCalls != 10 {
		t.Errorf("upsert calls = %d, want 10", env.trades.upsertCalls)
	}
	if env.trades.count() != 8 {
		t.Errorf("stored trades = %d, want 8", env.trades.count())
	}

	record := env.brokers.get(result.BrokerID)
	if record == nil || record.BrokerType != string(broker.Upstox) || !record.IsActive() {
		t.Fatalf("upstox broker record = %+v", record)
	}
	if record.LastSyncAt == nil || !record.LastSyncAt.Equal(testNow) {
		t.Errorf("LastSyncAt = %v, want %v", record.LastSyncAt, testNow)
	}

	if len(env.notifier.imported) != 1 || env.notifier.imported[0].ImportedCount != 8 {
		t.Errorf("notifier = %+v", env.notifier.imported)
	}
	if imported := env.publisher.ofType(events.TypeTradesImported); len(imported) != 1 {
		t.Errorf("published import events = %+v", imported)
	}
}

func TestImport_Idempotent(t *testing.T) {
	freezeTime(t, testNow)
	env := newTestEnv()
	connectUpstox(t, env, 1)
	env.upstox.fetchFn = func(string) ([]broker.Trade, error) { return brokerTrades(3), nil }

	for i := 0; i < 2; i++ {
		result, err := env.importer.ImportTradesToDatabase(userCtx(1))
		if err != nil {
			t.Fatalf("import %d error = %v", i, err)
		}
		if result.ImportedCount != 3 {
			t.Errorf("import %d ImportedCount = %d, want 3", i, result.ImportedCount)
		}
	}
	if env.trades.count() != 3 {
		t.Errorf("stored trades = %d, want 3 after repeated import", env.trades.count())
	}

	list, _ := env.brokers.ListByUser(context.Background(), 1)
	if len(list) != 1 {
		t.Errorf("broker records = %d, want 1", len(list))
	}
}

func TestImport_SkipsUnmappable(t *testing.T) {
	freezeTime(t, testNow)
	env := newTestEnv()
	connectUpstox(t, env, 1)
	env.upstox.fetchFn = func(string) ([]broker.Trade, error) {
		return []broker.Trade{
			{TradeID: "ok", Symbol: "TCS", TransactionType: "BUY", Quantity: 1, AveragePrice: 10},
			{TradeID: "weird", Symbol: "TCS", TransactionType: "HOLD", Quantity: 1, AveragePrice: 10},
			{TradeID: "", Symbol: "TCS", TransactionType: "SELL", Quantity: 1, AveragePrice: 10},
		}, nil
	}

	result, err := env.importer.ImportTradesToDatabase(userCtx(1))
	if err != nil {
		t.Fatalf("ImportTradesToDatabase() error = %v", err)
	}
	if result.ImportedCount != 1 || result.TotalUpstoxTrades != 3 {
		t.Errorf("result = %d/%d, want 1/3", result.ImportedCount, result.TotalUpstoxTrades)
	}
	if env.trades.upsertCalls != 1 {
		t.Errorf("upsert calls = %d, want 1", env.trades.upsertCalls)
	}
}

func TestImport_Errors(t *testing.T) {
	freezeTime(t, testNow)

	t.Run("no tokens", func(t *testing.T) {
		env := newTestEnv()
		_, err := env.importer.ImportTradesToDatabase(userCtx(1))
		if !errors.Is(err, ErrNoStoredTokens) {
			t.Errorf("error = %v, want ErrNoStoredTokens", err)
		}
		if env.upstox.fetchCalls != 0 {
			t.Error("trades fetched without tokens")
		}
	})

	t.Run("fetch failure", func(t *testing.T) {
		env := newTestEnv()
		connectUpstox(t, env, 1)
		fetchErr := &broker.APIError{Broker: broker.Upstox, StatusCode: 401, Message: "Invalid token used to access API"}
		env.upstox.fetchFn = func(string) ([]broker.Trade, error) { return nil, fetchErr }

		_, err := env.importer.ImportTradesToDatabase(userCtx(1))
		if !errors.Is(err, fetchErr) {
			t.Errorf("error = %v, want fetch error", err)
		}
		if env.brokers.calls != 0 {
			t.Error("broker record touched after fetch failure")
		}
	})

	t.Run("publish failure does not fail import", func(t *testing.T) {
		env := newTestEnv()
		connectUpstox(t, env, 1)
		env.publisher.err = errors.New("kafka: leader not available")
		env.upstox.fetchFn = func(string) ([]broker.Trade, error) { return brokerTrades(1), nil }

		result, err := env.importer.ImportTradesToDatabase(userCtx(1))
		if err != nil {
			t.Fatalf("error = %v", err)
		}
		if result.ImportedCount != 1 {
			t.Errorf("ImportedCount = %d", result.ImportedCount)
		}
	})
}

func TestMapUpstoxTrade(t *testing.T) {
	executed := time.Date(2024, 3, 15, 4, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		in       broker.Trade
		wantType string
		wantSide string
		wantAt   time.Time
		wantErr  bool
	}{
		{
			name:     "buy",
			in:       broker.Trade{TradeID: "1", Symbol: " reliance ", TransactionType: "BUY", Quantity: 5, AveragePrice: 2500, ExecutedAt: executed},
			wantType: models.TradeTypeBuy,
			wantSide: models.PositionLong,
			wantAt:   executed,
		},
		{
			name:     "sell lowercase, no timestamp",
			in:       broker.Trade{TradeID: "2", Symbol: "TCS", TransactionType: "sell", Quantity: 1, AveragePrice: 3900},
			wantType: models.TradeTypeSell,
			wantSide: models.PositionShort,
			wantAt:   testNow,
		},
		{
			name:    "unknown type",
			in:      broker.Trade{TradeID: "3", TransactionType: "SHORT"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := mapUpstoxTrade(9, 4, tt.in, testNow)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got.TradeType != tt.wantType || got.PositionSide != tt.wantSide {
				t.Errorf("type/side = %s/%s, want %s/%s", got.TradeType, got.PositionSide, tt.wantType, tt.wantSide)
			}
			if got.Status != models.TradeStatusClosed {
				t.Errorf("Status = %q, want closed", got.Status)
			}
			if got.EntryPrice != tt.in.AveragePrice || got.ExitPrice == nil || *got.ExitPrice != tt.in.AveragePrice {
				t.Errorf("prices = %v/%v, want %v", got.EntryPrice, got.ExitPrice, tt.in.AveragePrice)
			}
			if !got.OpenedAt.Equal(tt.wantAt) || got.ClosedAt == nil || !got.ClosedAt.Equal(tt.wantAt) {
				t.Errorf("opened/closed = %v/%v, want %v", got.OpenedAt, got.ClosedAt, tt.wantAt)
			}
			if got.ExternalID == nil || *got.ExternalID != tt.in.TradeID {
				t.Errorf("ExternalID = %v, want %s", got.ExternalID, tt.in.TradeID)
			}
			if got.UserID != 9 || got.BrokerID == nil || *got.BrokerID != 4 {
				t.Errorf("owner = %d/%v", got.UserID, got.BrokerID)
			}
			if got.Symbol == "" || got.Symbol != utils.NormalizeSymbol(tt.in.Symbol) {
				t.Errorf("Symbol = %q", got.Symbol)
			}
		})
	}
}
