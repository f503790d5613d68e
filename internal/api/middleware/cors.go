package middleware

import (
	"net/http"
	"strings"
)

// CORS - middleware для Cross-Origin Resource Sharing
//
// Frontend ходит в API с cookie сессии, поэтому для разрешенных origins
// выставляется конкретный origin и Access-Control-Allow-Credentials.
// Неразрешенным origins заголовки не выставляются, браузер заблокирует ответ.
// Запросы без Origin (curl, CLI) проходят без CORS заголовков.
//
// Preflight (OPTIONS) отвечает 204 без вызова handler'а.
func CORS(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(origins))
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			allowed[origin] = true
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && allowed[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Add("Vary", "Origin")
			}

			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
			w.Header().Set("Access-Control-Max-Age", "86400") // 24 часа кеширования preflight

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
