package handlers

import (
	"context"
	"net/http"
)

type contextKey string

const walletContextKey contextKey = "walletAddress"

// RequireSession resolves the bearer token and stashes the authenticated
// wallet on the request context. Protected handlers additionally match the
// wallet named in the payload against this value.
func (h *Handler) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, err := h.auth.ResolveSession(r.Header.Get("Authorization"))
		if err != nil {
			writeError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), walletContextKey, session.WalletAddress)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func walletFromContext(r *http.Request) string {
	wallet, _ := r.Context().Value(walletContextKey).(string)
	return wallet
}
