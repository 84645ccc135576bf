package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/juggajay/siteproof-v2-sub005/internal/model"
	"github.com/juggajay/siteproof-v2-sub005/internal/ncr"
	"github.com/juggajay/siteproof-v2-sub005/pkg/apierror"
)

// ActorKey is the key for storing the caller identity in request context.
const ActorKey contextKey = "actor"

// Identity headers set by the gateway in front of the API.
const (
	HeaderAPIKey  = "X-API-Key"
	HeaderUserID  = "X-User-ID"
	HeaderOrgRole = "X-Org-Role"
)

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	// APIKeys accepted in X-API-Key or Authorization: Bearer. Empty disables the check.
	APIKeys []string

	// PublicPaths skip both the key check and identity extraction.
	PublicPaths []string
}

// NewAuthMiddleware checks the API key and stores the gateway-asserted caller in
// the request context. A missing user id is a 401; an unknown org role is a 400.
// Requests without X-Org-Role act as members.
func NewAuthMiddleware(cfg AuthConfig) func(http.Handler) http.Handler {
	public := make(map[string]bool, len(cfg.PublicPaths))
	for _, p := range cfg.PublicPaths {
		public[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if public[r.URL.Path] || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			if len(cfg.APIKeys) > 0 {
				apiKey := extractAPIKey(r)
				if apiKey == "" {
					writeError(w, apierror.Unauthorized("Authentication required. Use X-API-Key header."))
					return
				}
				if !isValidKey(apiKey, cfg.APIKeys) {
					writeError(w, apierror.Unauthorized("Invalid API key"))
					return
				}
			}

			userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
			if userID == "" {
				writeError(w, apierror.Unauthorized("X-User-ID header is required"))
				return
			}

			orgRole := model.OrgMember
			if raw := r.Header.Get(HeaderOrgRole); raw != "" {
				parsed, err := ncr.ParseOrgRole(raw)
				if err != nil {
					writeError(w, apierror.BadRequest(err.Error()))
					return
				}
				orgRole = parsed
			}

			ctx := WithActor(r.Context(), model.Actor{UserID: userID, OrgRole: orgRole})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractAPIKey(r *http.Request) string {
	if key := r.Header.Get(HeaderAPIKey); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// writeError writes an API error response.
func writeError(w http.ResponseWriter, err *apierror.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.StatusCode)
	w.Write(err.ToJSON())
}

// isValidKey checks if the provided key is in the valid keys list.
func isValidKey(key string, validKeys []string) bool {
	for _, valid := range validKeys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(valid)) == 1 {
			return true
		}
	}
	return false
}

// WithActor returns a context carrying actor.
func WithActor(ctx context.Context, actor model.Actor) context.Context {
	return context.WithValue(ctx, ActorKey, actor)
}

// ActorFromContext retrieves the caller identity from request context.
func ActorFromContext(ctx context.Context) (model.Actor, bool) {
	actor, ok := ctx.Value(ActorKey).(model.Actor)
	return actor, ok
}

// RequireOrgRole rejects callers whose organization role is not in roles.
func RequireOrgRole(roles ...model.OrgRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok {
				writeError(w, apierror.Unauthorized(""))
				return
			}
			for _, role := range roles {
				if actor.OrgRole == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, apierror.Forbidden("insufficient organization role"))
		})
	}
}
