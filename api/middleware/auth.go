package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/craftstore-backend/api/responses"
	pkgAuth "github.com/angelmondragon/craftstore-backend/pkg/auth"
	"github.com/angelmondragon/craftstore-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/craftstore-backend/pkg/errors"
	"github.com/angelmondragon/craftstore-backend/pkg/logger"
)

// BrowsingSessionHeader carries the tab id the UI keeps in session storage.
const BrowsingSessionHeader = "X-Browsing-Session"

// Auth validates the bearer token and puts the buyer id on the request context.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r.Header.Get("Authorization"))
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			buyerID := claims.BuyerID()
			ctx := WithUserID(r.Context(), buyerID)
			if tab := strings.TrimSpace(r.Header.Get(BrowsingSessionHeader)); tab != "" {
				ctx = WithBrowsingSession(ctx, tab)
				if logg != nil {
					ctx = logg.WithBrowsingSession(ctx, tab)
				}
			}
			if logg != nil {
				ctx = logg.WithUserID(ctx, buyerID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(raw string) string {
	token := strings.TrimSpace(raw)
	if len(token) >= 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	return token
}
