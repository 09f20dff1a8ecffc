package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"greenroom.fm/internal/auth"
)

const authHeader = "Authorization"

// publicPaths принимают запросы без токена независимо от метода.
var publicPaths = map[string]struct{}{
	"/v1/auth/register": {},
	"/v1/auth/token":    {},
	"/healthz":          {},
	"/readyz":           {},
	"/metrics":          {},
	"/v1/info":          {},
}

func isPublicPath(path string) bool {
	_, ok := publicPaths[path]
	return ok
}

// withAuth authenticates requests. Reads (GET) are public projections of
// the ledger and pass through, picking up identity when a valid bearer
// token rides along; every mutation requires one.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		if r.Method == http.MethodGet {
			if raw := r.Header.Get(authHeader); raw != "" {
				if ctx, ok := identityFromHeader(r, raw); ok {
					r = r.WithContext(ctx)
				}
			}
			next.ServeHTTP(w, r)
			return
		}
		raw := r.Header.Get(authHeader)
		token, err := extractBearerToken(raw)
		if err != nil {
			unauthorized(w, r, err.Error())
			return
		}
		claims, err := auth.ParseAndValidate(token)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) {
				unauthorized(w, r, "invalid token")
				return
			}
			writeError(w, r, http.StatusInternalServerError, "authentication unavailable")
			return
		}
		userID, ok := claims.UserID()
		if !ok {
			unauthorized(w, r, "invalid token")
			return
		}
		ctx := auth.ContextWithUser(r.Context(), userID, claims.Roles)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func identityFromHeader(r *http.Request, raw string) (ctx context.Context, ok bool) {
	token, err := extractBearerToken(raw)
	if err != nil {
		return nil, false
	}
	claims, err := auth.ParseAndValidate(token)
	if err != nil {
		return nil, false
	}
	userID, idOK := claims.UserID()
	if !idOK {
		return nil, false
	}
	return auth.ContextWithUser(r.Context(), userID, claims.Roles), true
}

func extractBearerToken(header string) (string, error) {
	if strings.TrimSpace(header) == "" {
		return "", errors.New("missing bearer token")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("authorization header must be of form: Bearer <token>")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func unauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="greenroom"`)
	writeError(w, r, http.StatusUnauthorized, msg)
}
