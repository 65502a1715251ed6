package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront-checkout/internal/domain/auth"
)

// apiKeyHeader carries admin API keys.
const apiKeyHeader = "api_key"

// requireAdmin rejects requests without an API key holding the admin scope.
func (h *Handler) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		info, err := h.keys.Authenticate(ctx, r.Header.Get(apiKeyHeader), auth.ScopeAdmin)
		if err != nil {
			h.fail(ctx, w, err)
			return
		}
		ctx = zctx.With(ctx, zap.String("api_key_id", info.ID))
		next(w, r.WithContext(ctx))
	}
}

// requireUser rejects requests without a valid bearer token.
func (h *Handler) requireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := h.tokens.Verify(bearerToken(r))
		if err != nil {
			h.fail(r.Context(), w, err)
			return
		}
		next(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
	}
}

// optionalUser returns the caller's identity, or nil for guests. An invalid
// token is treated as a guest.
func (h *Handler) optionalUser(r *http.Request) *auth.Identity {
	token := bearerToken(r)
	if token == "" {
		return nil
	}
	id, err := h.tokens.Verify(token)
	if err != nil {
		zctx.From(r.Context()).Debug("Ignoring invalid session token", zap.Error(err))
		return nil
	}
	return id
}

func bearerToken(r *http.Request) string {
	const prefix = "bearer "
	v := r.Header.Get("Authorization")
	if len(v) < len(prefix) || !strings.EqualFold(v[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(v[len(prefix):])
}
