package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tradejournal/internal/api/handlers"
	"tradejournal/internal/api/middleware"
	"tradejournal/internal/service"
	"tradejournal/internal/websocket"
	"tradejournal/pkg/utils"
)

// Pinger проверяет доступность хранилища (*sql.DB)
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	CredentialService service.CredentialServiceInterface
	ConnectionService service.ConnectionServiceInterface
	AccountService    service.AccountServiceInterface
	OAuthService      service.OAuthServiceInterface
	ImportService     service.ImportServiceInterface
	TradeService      service.TradeServiceInterface
	PortfolioService  service.PortfolioServiceInterface
	StrategyService   service.StrategyServiceInterface
	SyncService       service.SyncServiceInterface

	Tokens middleware.TokenParser
	Hub    *websocket.Hub
	DB     Pinger
	Logger *utils.Logger

	AllowedOrigins  []string
	MetricsUsername string
	MetricsPassword string
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Структура маршрутов:
//
// /api/ (под Auth)
//
//	├── GET  /trading/accounts - брокеры с количеством сделок
//	├── /brokers
//	│   ├── GET / - список брокеров
//	│   ├── POST / - добавить брокера
//	│   ├── GET /status - статусы подключений
//	│   ├── POST /test - проверить учетные данные
//	│   ├── GET /{id} - брокер с замаскированными учетными данными
//	│   ├── PUT /{id} - обновить
//	│   └── DELETE /{id} - удалить
//	├── /trades
//	│   ├── GET / - список сделок (status, symbol, broker_id, from, to)
//	│   ├── POST / - создать сделку
//	│   ├── PUT /{id} - обновить
//	│   ├── DELETE /{id} - удалить
//	│   └── POST /close/{id} - закрыть
//	├── GET  /portfolio/summary
//	├── GET  /analytics/data?period=
//	├── GET|POST /strategies, DELETE /strategies/{id}
//	├── POST /sync/brokers
//	└── /upstox
//	    ├── GET /auth-url
//	    ├── POST /token
//	    ├── GET /status
//	    ├── DELETE /connection
//	    └── POST /import
//
// /ws/stream - WebSocket событий пользователя (под Auth)
// /metrics - Prometheus (BasicAuth, если задан)
// /health
//
// Middleware применяется в следующем порядке:
// 1. Recovery (для всех маршрутов)
// 2. Logging (для всех маршрутов)
// 3. CORS (для всех маршрутов)
// 4. Auth (только /api и /ws)
func SetupRoutes(deps *Dependencies) *mux.Router {
	if deps == nil {
		deps = &Dependencies{}
	}

	router := mux.NewRouter()

	// Глобальные middleware (применяются ко всем маршрутам)
	router.Use(middleware.Recovery(deps.Logger))
	router.Use(middleware.Logging(deps.Logger))
	router.Use(middleware.CORS(deps.AllowedOrigins))

	// Preflight отвечает CORS middleware, маршрут нужен, чтобы mux не вернул 405
	router.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	api := router.PathPrefix("/api").Subrouter()
	ws := router.PathPrefix("/ws").Subrouter()
	if deps.Tokens != nil {
		api.Use(middleware.Auth(deps.Tokens))
		ws.Use(middleware.Auth(deps.Tokens))
	}

	// Broker routes
	if deps.CredentialService != nil && deps.ConnectionService != nil && deps.AccountService != nil {
		h := handlers.NewBrokerHandler(deps.CredentialService, deps.ConnectionService, deps.AccountService)
		api.HandleFunc("/trading/accounts", h.GetTradingAccounts).Methods(http.MethodGet)
		api.HandleFunc("/brokers", h.GetBrokers).Methods(http.MethodGet)
		api.HandleFunc("/brokers", h.AddBroker).Methods(http.MethodPost)
		api.HandleFunc("/brokers/status", h.GetBrokerStatus).Methods(http.MethodGet)
		api.HandleFunc("/brokers/test", h.TestConnection).Methods(http.MethodPost)
		api.HandleFunc("/brokers/{id:[0-9]+}", h.GetBroker).Methods(http.MethodGet)
		api.HandleFunc("/brokers/{id:[0-9]+}", h.UpdateBroker).Methods(http.MethodPut)
		api.HandleFunc("/brokers/{id:[0-9]+}", h.DeleteBroker).Methods(http.MethodDelete)
	}

	// Trade routes
	if deps.TradeService != nil {
		h := handlers.NewTradeHandler(deps.TradeService)
		api.HandleFunc("/trades", h.GetTrades).Methods(http.MethodGet)
		api.HandleFunc("/trades", h.CreateTrade).Methods(http.MethodPost)
		api.HandleFunc("/trades/close/{id:[0-9]+}", h.CloseTrade).Methods(http.MethodPost)
		api.HandleFunc("/trades/{id:[0-9]+}", h.UpdateTrade).Methods(http.MethodPut)
		api.HandleFunc("/trades/{id:[0-9]+}", h.DeleteTrade).Methods(http.MethodDelete)
	}

	// Portfolio, analytics and strategy routes
	if deps.PortfolioService != nil && deps.StrategyService != nil {
		h := handlers.NewPortfolioHandler(deps.PortfolioService, deps.StrategyService)
		api.HandleFunc("/portfolio/summary", h.GetSummary).Methods(http.MethodGet)
		api.HandleFunc("/analytics/data", h.GetAnalytics).Methods(http.MethodGet)
		api.HandleFunc("/strategies", h.GetStrategies).Methods(http.MethodGet)
		api.HandleFunc("/strategies", h.CreateStrategy).Methods(http.MethodPost)
		api.HandleFunc("/strategies/{id:[0-9]+}", h.DeleteStrategy).Methods(http.MethodDelete)
	}

	// Sync routes
	if deps.SyncService != nil {
		h := handlers.NewSyncHandler(deps.SyncService)
		api.HandleFunc("/sync/brokers", h.SyncBrokers).Methods(http.MethodPost)
	}

	// Upstox OAuth routes
	if deps.OAuthService != nil && deps.ImportService != nil {
		h := handlers.NewUpstoxHandler(deps.OAuthService, deps.ImportService)
		api.HandleFunc("/upstox/auth-url", h.GetAuthURL).Methods(http.MethodGet)
		api.HandleFunc("/upstox/token", h.ExchangeToken).Methods(http.MethodPost)
		api.HandleFunc("/upstox/status", h.GetStatus).Methods(http.MethodGet)
		api.HandleFunc("/upstox/connection", h.Disconnect).Methods(http.MethodDelete)
		api.HandleFunc("/upstox/import", h.ImportTrades).Methods(http.MethodPost)
	}

	// WebSocket route
	if deps.Hub != nil {
		ws.HandleFunc("/stream", deps.Hub.Handler(websocket.NewOriginChecker(deps.AllowedOrigins))).Methods(http.MethodGet)
	}

	router.Handle("/metrics", middleware.BasicAuth(deps.MetricsUsername, deps.MetricsPassword)(promhttp.Handler())).
		Methods(http.MethodGet)

	// Health check endpoint
	router.HandleFunc("/health", healthHandler(deps.DB)).Methods(http.MethodGet)

	return router
}

func healthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"unavailable"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}
