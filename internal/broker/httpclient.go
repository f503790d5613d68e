// Package broker предоставляет единый интерфейс для работы с API брокеров.
package broker

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"

	"tradejournal/pkg/ratelimit"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxResponseSize - ограничение на тело ответа брокера
const maxResponseSize = 4 << 20

// HTTPClientConfig содержит настройки HTTP клиента для брокеров
type HTTPClientConfig struct {
	ConnectTimeout time.Duration // таймаут установки TCP соединения (default: 5s)
	ReadTimeout    time.Duration // таймаут ожидания заголовков ответа (default: 10s)
	TotalTimeout   time.Duration // общий таймаут запроса (default: 15s)

	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration

	TLSHandshakeTimeout time.Duration
	KeepAliveInterval   time.Duration

	// Ограничение исходящих запросов на ключ (брокер + пользователь)
	RateLimit float64
	RateBurst float64
}

// DefaultHTTPClientConfig возвращает конфигурацию по умолчанию
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		ConnectTimeout: 5 * time.Second,
		ReadTimeout:    10 * time.Second,
		TotalTimeout:   15 * time.Second,

		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout: 5 * time.Second,
		KeepAliveInterval:   30 * time.Second,

		RateLimit: 10,
		RateBurst: 20,
	}
}

// HTTPClient - HTTP клиент для API брокеров с пулом соединений и rate limit
type HTTPClient struct {
	client  *http.Client
	limiter *ratelimit.KeyedLimiter
	config  HTTPClientConfig
}

// NewHTTPClient создаёт HTTP клиент с заданной конфигурацией
func NewHTTPClient(config HTTPClientConfig) *HTTPClient {
	dialer := &net.Dialer{
		Timeout:   config.ConnectTimeout,
		KeepAlive: config.KeepAliveInterval,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          config.MaxIdleConns,
		MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
		IdleConnTimeout:       config.IdleConnTimeout,
		TLSHandshakeTimeout:   config.TLSHandshakeTimeout,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
		ForceAttemptHTTP2:     true,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: config.ReadTimeout,
	}

	return &HTTPClient{
		client: &http.Client{
			Transport: transport,
			Timeout:   config.TotalTimeout,
		},
		limiter: ratelimit.NewKeyedLimiter(config.RateLimit, config.RateBurst),
		config:  config,
	}
}

type limitKeyCtx struct{}

// WithLimitKey задаёт ключ rate limit для исходящих запросов (например "upstox:42")
func WithLimitKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, limitKeyCtx{}, key)
}

// limitKey возвращает ключ из контекста, по умолчанию - хост запроса
func limitKey(req *http.Request) string {
	if key, ok := req.Context().Value(limitKeyCtx{}).(string); ok && key != "" {
		return key
	}
	return req.URL.Host
}

// Do выполняет запрос после получения токена rate limit
func (hc *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	if err := hc.limiter.Wait(req.Context(), limitKey(req)); err != nil {
		return nil, err
	}
	return hc.client.Do(req)
}

// Close закрывает idle соединения
func (hc *HTTPClient) Close() {
	if transport, ok := hc.client.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}

// errorParser извлекает код и сообщение ошибки из тела ответа брокера
type errorParser func(body []byte) (code, message string)

// doJSON выполняет запрос и декодирует успешный ответ в out.
// Ответ вне диапазона 2xx превращается в APIError.
func (hc *HTTPClient) doJSON(req *http.Request, broker Type, parse errorParser, out interface{}) error {
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", broker, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%s read response: %w", broker, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		code, message := parse(body)
		return newAPIError(broker, resp.StatusCode, code, message)
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s decode response: %w", broker, err)
	}
	return nil
}
