package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"tradejournal/internal/api/handlers"
	"tradejournal/pkg/utils"
)

// Recovery - middleware восстановления после паники в handlers
//
// Паника логируется вместе со stack trace, клиент получает
// 500 {success:false, error:"internal server error"} без деталей.
// http.ErrAbortHandler пробрасывается дальше, как того ожидает net/http.
func Recovery(logger *utils.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = utils.L()
	}
	logger = logger.WithComponent("http")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logger.Error("panic recovered",
					utils.Method(r.Method),
					utils.Path(r.URL.Path),
					utils.String("panic", fmt.Sprint(rec)),
					utils.String("stack", string(debug.Stack())),
				)
				handlers.RespondWithError(w, http.StatusInternalServerError, "internal server error")
			}()

			next.ServeHTTP(w, r)
		})
	}
}
