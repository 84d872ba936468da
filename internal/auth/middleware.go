package auth

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/procureflow/procureflow/internal/access"
	"github.com/procureflow/procureflow/internal/platform/httpx"
	"github.com/procureflow/procureflow/internal/shared"
)

// Middleware resolves the session into an access.Actor for downstream
// handlers. Requests without a valid user carry the anonymous actor.
type Middleware struct {
	logger  *slog.Logger
	service *Service
}

// NewMiddleware constructs the actor middleware.
func NewMiddleware(logger *slog.Logger, service *Service) *Middleware {
	return &Middleware{logger: logger, service: service}
}

// WithActor loads the session user and stores the derived actor in the
// request context.
func (m *Middleware) WithActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var actor access.Actor
		if sess := shared.SessionFromContext(r.Context()); sess != nil {
			if id, err := uuid.Parse(sess.User()); err == nil {
				user, err := m.service.GetUser(r.Context(), id)
				if err == nil && user.IsActive {
					actor = user.Actor()
				} else if err != nil {
					m.logger.Warn("resolve session user", slog.Any("error", err))
				}
			}
		}
		next.ServeHTTP(w, r.WithContext(access.ContextWithActor(r.Context(), actor)))
	})
}

// RequireUser rejects anonymous requests.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := access.ActorFromContext(r.Context())
		if actor.ID == uuid.Nil {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
