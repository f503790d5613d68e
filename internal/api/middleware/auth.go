package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"tradejournal/internal/api/handlers"
	"tradejournal/internal/auth"
)

// TokenParser проверяет сессионный токен (auth.TokenManager)
type TokenParser interface {
	Parse(token string) (int64, error)
}

var _ TokenParser = (*auth.TokenManager)(nil)

// Auth - middleware аутентификации запросов
//
// Токен берётся из cookie "session", затем из заголовка
// Authorization: Bearer <token>. id пользователя кладётся в context запроса,
// сервисы достают его через auth.UserIDFromContext. Без валидного
// токена запрос не доходит до handler'а: 401 {success:false, error}.
func Auth(tokens TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				handlers.RespondWithError(w, http.StatusUnauthorized, auth.ErrUnauthenticated.Error())
				return
			}

			userID, err := tokens.Parse(token)
			if err != nil {
				handlers.RespondWithError(w, http.StatusUnauthorized, auth.ErrInvalidToken.Error())
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithUserID(r.Context(), userID)))
		})
	}
}

func extractToken(r *http.Request) string {
	if c, err := r.Cookie(auth.SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	header := r.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// BasicAuth - middleware для служебных endpoints (/metrics)
//
// Пустые username/password отключают проверку. Сравнение constant-time.
//
//	router.Handle("/metrics", middleware.BasicAuth(user, pass)(promhttp.Handler()))
func BasicAuth(username, password string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if username == "" || password == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			userMatch := subtle.ConstantTimeCompare([]byte(user), []byte(username)) == 1
			passMatch := subtle.ConstantTimeCompare([]byte(pass), []byte(password)) == 1
			if !ok || !userMatch || !passMatch {
				w.Header().Set("WWW-Authenticate", `Basic realm="metrics"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
