package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/gemtrade-backend/api/responses"
	"github.com/angelmondragon/gemtrade-backend/pkg/auth"
	"github.com/angelmondragon/gemtrade-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/gemtrade-backend/pkg/errors"
	"github.com/angelmondragon/gemtrade-backend/pkg/logger"
)

// Auth admits requests carrying a valid operator token and records the
// operator on the context, where the outbox picks it up as the event actor.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}
			claims, err := auth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			ctx := auth.WithSubject(r.Context(), claims.Subject)
			if logg != nil {
				ctx = logg.WithUserID(ctx, claims.Subject)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken accepts "Bearer <token>" in any case, or a bare token.
func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	scheme, rest, found := strings.Cut(header, " ")
	switch {
	case found && strings.EqualFold(scheme, "bearer"):
		header = strings.TrimSpace(rest)
	case strings.EqualFold(header, "bearer"):
		header = ""
	}
	return header, header != ""
}
