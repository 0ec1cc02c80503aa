package server

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/joseph-ayodele/cfdi-bills/internal/common"
)

const requestIDHeader = "X-Request-Id"

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		start := time.Now()
		next.ServeHTTP(w, r.WithContext(common.WithRequestID(r.Context(), id)))
		s.logger.Debug("server.request",
			"method", r.Method,
			"path", r.URL.Path,
			"req_id", id,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	})
}

// authMiddleware requires an HS256 bearer token signed with the configured
// secret. With no secret configured the API is open.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	if s.cfg.JWTSecret == "" {
		return next
	}
	secret := []byte(s.cfg.JWTSecret)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			s.writeError(w, r, errors.Join(common.ErrUnauthorized, errors.New("bearer token required")), nil)
			return
		}

		token, err := jwt.Parse(strings.TrimSpace(raw), func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
		if err != nil || !token.Valid {
			s.logger.Warn("server.auth.rejected", "path", r.URL.Path, "req_id", common.RequestIDFromContext(r.Context()), "error", err)
			s.writeError(w, r, errors.Join(common.ErrUnauthorized, errors.New("invalid or expired token")), nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.allow(clientIP(r)) {
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, errorBody{
				Error:     "rate limit exceeded",
				RequestID: common.RequestIDFromContext(r.Context()),
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ipLimiter keeps one token bucket per client address. Buckets are dropped
// ten minutes after creation.
type ipLimiter struct {
	limit rate.Limit
	burst int
	byIP  *cache.Cache
}

func newIPLimiter(perSec float64, burst int) *ipLimiter {
	if perSec <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &ipLimiter{limit: rate.Limit(perSec), burst: burst, byIP: cache.New(10*time.Minute, 10*time.Minute)}
}

func (l *ipLimiter) allow(ip string) bool {
	if v, ok := l.byIP.Get(ip); ok {
		return v.(*rate.Limiter).Allow()
	}
	lim := rate.NewLimiter(l.limit, l.burst)
	// another request may have raced us in; keep whichever landed first
	if err := l.byIP.Add(ip, lim, cache.DefaultExpiration); err != nil {
		if v, ok := l.byIP.Get(ip); ok {
			lim = v.(*rate.Limiter)
		}
	}
	return lim.Allow()
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
