package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Simplici0/batchcost/internal/audit"
)

const (
	sessionCookieName = "batchcost_session"
	requestIDHeader   = "X-Request-ID"
	estimatorRole     = "estimator"
	devPrincipal      = "dev"
)

// authService verifies session tokens issued for a principal id. A token is
// the base64 principal id and its HMAC-SHA256 signature joined by a dot.
type authService struct {
	sessionSecret []byte
	// allowAnonymous attributes unauthenticated requests to a development
	// principal instead of rejecting them.
	allowAnonymous bool
}

func newAuthService(sessionSecret string, allowAnonymous bool) *authService {
	return &authService{sessionSecret: []byte(sessionSecret), allowAnonymous: allowAnonymous}
}

func (a *authService) createSessionValue(principal string) string {
	payload := base64.RawURLEncoding.EncodeToString([]byte(principal))
	return payload + "." + a.sign(payload)
}

func (a *authService) sign(payload string) string {
	mac := hmac.New(sha256.New, a.sessionSecret)
	_, _ = mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func (a *authService) verifySessionValue(value string) (string, bool) {
	if len(a.sessionSecret) == 0 {
		return "", false
	}
	payload, signature, ok := strings.Cut(value, ".")
	if !ok {
		return "", false
	}

	provided, err := hex.DecodeString(signature)
	if err != nil {
		return "", false
	}
	expected, _ := hex.DecodeString(a.sign(payload))
	if !hmac.Equal(provided, expected) {
		return "", false
	}

	decoded, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil || len(decoded) == 0 {
		return "", false
	}
	return string(decoded), true
}

// token reads the session from the cookie or a bearer Authorization header.
func token(r *http.Request) string {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		return cookie.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

// principalMiddleware attaches the authenticated principal to the request
// context; audit columns are filled from it.
func (a *authService) principalMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := a.verifySessionValue(token(r))
		if !ok {
			if !a.allowAnonymous {
				writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authentication required"})
				return
			}
			id = devPrincipal
		}
		ctx := audit.WithPrincipal(r.Context(), audit.Principal{ID: id, Role: estimatorRole})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// requestID propagates the caller's X-Request-ID or assigns a new one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []zap.Field{
				zap.Int("status", status),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("query", r.URL.RawQuery),
				zap.String("ip", r.RemoteAddr),
				zap.Duration("latency", time.Since(start)),
				zap.String("request_id", requestIDFrom(r.Context())),
			}
			switch {
			case status >= 500:
				log.Error("server error", fields...)
			case status >= 400:
				log.Warn("client error", fields...)
			default:
				log.Info("request", fields...)
			}
		})
	}
}
