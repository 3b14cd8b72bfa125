package handler

import (
	"context"
	"net/http"

	"github.com/boddenberg/cash-console-bfa/internal/domain"
	"github.com/boddenberg/cash-console-bfa/internal/service"

	"go.uber.org/zap"
)

// SessionCookie carries the opaque BFA session id. Backend tokens never
// reach the browser.
const SessionCookie = "console_session"

type contextKey string

const sessionKey contextKey = "session"

// SessionMiddleware resolves the session cookie and injects the session
// into the request context.
func SessionMiddleware(console *service.Console, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ck, err := r.Cookie(SessionCookie)
			if err != nil || ck.Value == "" {
				logger.Debug("session: missing cookie",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "not logged in")
				return
			}

			sess, err := console.Session(r.Context(), ck.Value)
			if err != nil {
				logger.Debug("session: rejected",
					zap.String("path", r.URL.Path),
					zap.Error(err),
				)
				handleServiceError(w, err, logger)
				return
			}

			ctx := context.WithValue(r.Context(), sessionKey, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionFromContext returns the session injected by SessionMiddleware.
func SessionFromContext(ctx context.Context) *domain.Session {
	v, _ := ctx.Value(sessionKey).(*domain.Session)
	return v
}
