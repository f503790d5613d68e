// Package metrics содержит Prometheus метрики backend журнала.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tradejournal"

// ============ HTTP API ============

// HTTPRequestDuration - время обработки запроса REST API
var HTTPRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_ms",
		Help:      "REST API request duration in milliseconds",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	},
	[]string{"method", "route"},
)

// HTTPRequestsTotal - количество запросов по статусу ответа
var HTTPRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of REST API requests",
	},
	[]string{"method", "route", "status"},
)

// ============ Брокеры ============

// BrokerRequestDuration - длительность операций с API брокера
var BrokerRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "broker",
		Name:      "request_duration_ms",
		Help:      "Broker API call duration in milliseconds",
		Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 15000},
	},
	[]string{"broker", "operation"}, // operation: test, exchange, refresh, fetch_trades
)

// ConnectionTests - проверки подключения по результату
var ConnectionTests = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "broker",
		Name:      "connection_tests_total",
		Help:      "Number of broker connection tests",
	},
	[]string{"broker", "result"}, // result: connected, validated, invalid, failed
)

// TokenRefreshes - обновления OAuth токенов
var TokenRefreshes = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "oauth",
		Name:      "token_refreshes_total",
		Help:      "Number of OAuth access token refreshes",
	},
	[]string{"result"}, // success, failed
)

// ============ Импорт сделок ============

// TradesImported - сделки, записанные при импорте
var TradesImported = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "import",
		Name:      "trades_total",
		Help:      "Number of trades upserted from broker imports",
	},
	[]string{"broker"},
)

// ImportSkipped - сделки, пропущенные из-за ошибки записи
var ImportSkipped = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "import",
		Name:      "skipped_total",
		Help:      "Number of broker trades skipped because the upsert failed",
	},
	[]string{"broker"},
)

// ImportRuns - запуски импорта по результату
var ImportRuns = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "import",
		Name:      "runs_total",
		Help:      "Number of import runs",
	},
	[]string{"broker", "trigger", "result"}, // trigger: api, sync, cli
)

// ============ Состояние ============

// WebsocketClients - подключённые websocket клиенты
var WebsocketClients = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "websocket",
		Name:      "clients",
		Help:      "Current number of connected websocket clients",
	},
)

// WebsocketDropped - сообщения, отброшенные из-за переполнения буфера клиента
var WebsocketDropped = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "websocket",
		Name:      "dropped_messages_total",
		Help:      "Number of websocket messages dropped for slow clients",
	},
)

// ============ Вспомогательные функции ============

// ObserveHTTPRequest записывает длительность и статус запроса
func ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, route).Observe(ms(duration))
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

// ObserveBrokerCall записывает длительность вызова API брокера
func ObserveBrokerCall(broker, operation string, duration time.Duration) {
	BrokerRequestDuration.WithLabelValues(broker, operation).Observe(ms(duration))
}

// RecordConnectionTest записывает результат проверки подключения
func RecordConnectionTest(broker, result string) {
	ConnectionTests.WithLabelValues(broker, result).Inc()
}

// RecordTokenRefresh записывает результат обновления токена
func RecordTokenRefresh(success bool) {
	TokenRefreshes.WithLabelValues(resultLabel(success)).Inc()
}

// RecordImport записывает итог импорта
func RecordImport(broker, trigger string, imported, skipped int, success bool) {
	if imported > 0 {
		TradesImported.WithLabelValues(broker).Add(float64(imported))
	}
	if skipped > 0 {
		ImportSkipped.WithLabelValues(broker).Add(float64(skipped))
	}
	ImportRuns.WithLabelValues(broker, trigger, resultLabel(success)).Inc()
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failed"
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
