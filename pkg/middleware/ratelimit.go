package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/time/rate"

	"github.com/JoaquinSabater/EcommerceCPF-sub000/pkg/httputil"
)

// maxTrackedClients bounds the number of per-client limiters kept in memory.
// The least recently seen client is forgotten first.
const maxTrackedClients = 10000

type limiterStore struct {
	mu    sync.Mutex
	cache *lru.Cache
	limit rate.Limit
	burst int
}

func (s *limiterStore) get(client string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.cache.Get(client); ok {
		return v.(*rate.Limiter)
	}
	l := rate.NewLimiter(s.limit, s.burst)
	s.cache.Add(client, l)
	return l
}

// RateLimit enforces a token bucket of rps requests per second with the given
// burst per client IP, answering 429 once it is empty. rps <= 0 disables it.
// Forwarding headers name the client only when the peer is inside
// trustedProxies; otherwise the peer address is the client.
func RateLimit(rps float64, burst int, trustedProxies []string, logger *slog.Logger) func(http.Handler) http.Handler {
	if rps <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	cache, _ := lru.New(maxTrackedClients)
	store := &limiterStore{cache: cache, limit: rate.Limit(rps), burst: max(1, burst)}
	proxies := parsePrefixes(trustedProxies, "trusted proxy", logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r, proxies)
			if !store.get(ip).Allow() {
				logger.Warn("rate limit exceeded",
					slog.String("ip", ip),
					slog.String("path", r.URL.Path),
				)
				w.Header().Set("Retry-After", "1")
				httputil.WriteJSON(w, http.StatusTooManyRequests, httputil.Response{
					Error: &httputil.ErrorResponse{Code: "RATE_LIMITED", Message: "too many requests"},
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP returns the peer address unless the peer is a trusted proxy, in
// which case the first X-Forwarded-For hop, then X-Real-IP, wins.
func clientIP(r *http.Request, trusted []netip.Prefix) string {
	peer := peerHost(r.RemoteAddr)
	if !containsPeer(trusted, r.RemoteAddr) {
		return peer
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip.String()
		}
	}
	if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
		return ip.String()
	}
	return peer
}
