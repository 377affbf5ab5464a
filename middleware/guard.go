package middleware

import (
	"context"
	"net/http"
	"strings"

	goCreds "github.com/MrEthical07/goCreds"
)

// AccessVerifier is satisfied by *goCreds.Engine.
type AccessVerifier interface {
	VerifyAccess(ctx context.Context, token string) (*goCreds.Claims, error)
}

type ctxKey struct{}

// ClaimsFromContext returns the claims stored by Guard.
func ClaimsFromContext(ctx context.Context) (*goCreds.Claims, bool) {
	claims, ok := ctx.Value(ctxKey{}).(*goCreds.Claims)
	return claims, ok && claims != nil
}

// Guard answers 401 unless the request carries a bearer access token that
// verifier accepts. Accepted claims are available via ClaimsFromContext.
func Guard(verifier AccessVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := authenticate(r, verifier)
			if !ok {
				unauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, claims)))
		})
	}
}

func authenticate(r *http.Request, verifier AccessVerifier) (*goCreds.Claims, bool) {
	if verifier == nil {
		return nil, false
	}
	token, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		return nil, false
	}
	claims, err := verifier.VerifyAccess(r.Context(), token)
	return claims, err == nil && claims != nil
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
