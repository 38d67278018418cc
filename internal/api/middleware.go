package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// contextKey is an unexported type for context keys to avoid collisions.
type contextKey int

const agentCtxKey contextKey = iota

// authAgent holds the authenticated agent context for a request.
type authAgent struct {
	ID   string
	Name string
}

// agentFromContext extracts the authenticated agent from the request context.
func agentFromContext(ctx context.Context) *authAgent {
	v, _ := ctx.Value(agentCtxKey).(*authAgent)
	return v
}

// --- Auth cache (stale-while-revalidate) ---

type cacheEntry struct {
	agent      *authAgent
	expiresAt  time.Time
	refreshing atomic.Bool
}

type authCache struct {
	store sync.Map // map[string]*cacheEntry (keyed by full API key)
	ttl   time.Duration
}

func newAuthCache(ttl time.Duration) *authCache {
	return &authCache{ttl: ttl}
}

func (c *authCache) get(key string) (agent *authAgent, hit bool, needsRefresh bool) {
	v, ok := c.store.Load(key)
	if !ok {
		return nil, false, false
	}
	entry := v.(*cacheEntry)
	if time.Now().Before(entry.expiresAt) {
		return entry.agent, true, false // fresh
	}
	// Stale, return value but signal refresh needed (only one goroutine refreshes)
	needsRefresh = entry.refreshing.CompareAndSwap(false, true)
	return entry.agent, true, needsRefresh
}

func (c *authCache) set(key string, agent *authAgent) {
	c.store.Store(key, &cacheEntry{
		agent:     agent,
		expiresAt: time.Now().Add(c.ttl),
	})
}

// --- Auth middleware ---

// authMiddleware returns an http.HandlerFunc that validates Bearer agk_ tokens
// and injects the authenticated agent into the request context. All wrapped
// routes share one cache, so a token pays bcrypt verification once per TTL
// window regardless of which endpoint it hits.
func (d *Dependencies) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	if d.auth == nil {
		d.auth = newAuthCache(d.CacheTTL)
	}
	cache := d.auth

	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := extractBearerToken(r)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, ErrorResp{Detail: "Missing or invalid Authorization header"})
			return
		}
		if len(token) < 8 || !strings.HasPrefix(token, "agk_") {
			writeJSON(w, http.StatusUnauthorized, ErrorResp{Detail: "Invalid API key format"})
			return
		}

		// Cache lookup
		agent, hit, needsRefresh := cache.get(token)
		if hit && needsRefresh {
			// Stale hit, return stale immediately, refresh in background
			go d.refreshAuth(cache, token)
		}
		if hit && agent != nil {
			ctx := context.WithValue(r.Context(), agentCtxKey, agent)
			next(w, r.WithContext(ctx))
			return
		}

		// Cache miss, synchronous lookup
		agent, err := d.authenticateToken(r.Context(), token)
		if err != nil {
			d.Logger.Warn("auth failed", zap.Error(err))
			writeJSON(w, http.StatusUnauthorized, ErrorResp{Detail: "Invalid API key"})
			return
		}

		cache.set(token, agent)
		ctx := context.WithValue(r.Context(), agentCtxKey, agent)
		next(w, r.WithContext(ctx))
	}
}

// authenticateToken validates an API key against Postgres and returns the
// agent context.
func (d *Dependencies) authenticateToken(ctx context.Context, token string) (*authAgent, error) {
	prefix := token[:8]
	agent, err := d.Store.LookupByPrefix(ctx, prefix)
	if err != nil {
		return nil, err
	}
	if agent == nil {
		return nil, fmt.Errorf("agent not found for prefix")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(agent.APIKeyHash), []byte(token)); err != nil {
		return nil, err
	}

	return &authAgent{ID: agent.ID, Name: agent.Name}, nil
}

// refreshAuth refreshes the cache entry in the background.
func (d *Dependencies) refreshAuth(cache *authCache, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	agent, err := d.authenticateToken(ctx, token)
	if err != nil {
		d.Logger.Warn("background auth refresh failed", zap.Error(err))
		return
	}
	cache.set(token, agent)
}

// extractBearerToken extracts the token from "Authorization: Bearer <token>".
func extractBearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return "", false
	}
	return strings.TrimSpace(auth[len(prefix):]), true
}

// --- JSON helpers ---

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// readJSON decodes a JSON request body into the given pointer.
func readJSON(r *http.Request, v interface{}) error {
	defer func() { _ = r.Body.Close() }()
	return json.NewDecoder(r.Body).Decode(v)
}

// --- Request logging ---

func requestLogging(next http.Handler, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", sw.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// --- CORS ---

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
