package middleware

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/MrEthical07/tenantauth"
	"github.com/MrEthical07/tenantauth/token"
)

// Validator is the subset of *tenantauth.Engine used by Guard.
type Validator interface {
	ValidateAccessToken(ctx context.Context, tok string) (*token.Claims, error)
}

type claimsContextKey struct{}

// ClaimsFromContext returns the claims stored by Guard.
func ClaimsFromContext(ctx context.Context) (*token.Claims, bool) {
	c, ok := ctx.Value(claimsContextKey{}).(*token.Claims)
	return c, ok
}

// CallerFromContext builds the administrative Caller for the authenticated request.
func CallerFromContext(ctx context.Context) (tenantauth.Caller, bool) {
	c, ok := ClaimsFromContext(ctx)
	if !ok {
		return tenantauth.Caller{}, false
	}
	return tenantauth.CallerFromClaims(c), true
}

// Guard rejects requests without a valid access token with 401. The client IP and
// request id headers are attached to the context for audit events.
func Guard(v Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				writeError(w, http.StatusUnauthorized, tenantauth.CodeInvalidToken, "Authentication required")
				return
			}

			tok, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeError(w, http.StatusUnauthorized, tenantauth.CodeInvalidToken, "Authentication required")
				return
			}

			ctx := RequestContext(r)
			claims, err := v.ValidateAccessToken(ctx, tok)
			if err != nil {
				writeError(w, http.StatusUnauthorized, tenantauth.CodeInvalidToken, "Invalid or expired token")
				return
			}

			ctx = context.WithValue(ctx, claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission passes requests whose claims hold every code. It must run after Guard.
func RequirePermission(codes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, ok := CallerFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, tenantauth.CodeInvalidToken, "Authentication required")
				return
			}
			for _, code := range codes {
				if !caller.Permissions.Has(code) && !caller.Permissions.Has(tenantauth.PermSystemAdmin) {
					writeError(w, http.StatusForbidden, tenantauth.CodeForbidden, "Missing permission "+code)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestContext copies the client IP, user agent and X-Request-ID of r into its context.
func RequestContext(r *http.Request) context.Context {
	return tenantauth.WithRequestInfo(r.Context(), tenantauth.RequestInfo{
		ClientIP:  clientIP(r),
		UserAgent: r.UserAgent(),
		RequestID: r.Header.Get("X-Request-ID"),
	})
}

// clientIP prefers the first X-Forwarded-For hop, then RemoteAddr without the port.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	tok := strings.TrimSpace(value[len(bearer):])
	if tok == "" {
		return "", false
	}
	return tok, true
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Code: code, Message: msg})
}
