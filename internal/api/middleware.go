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

	"github.com/brightpath-assess/toolgate/internal/resolve"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// contextKey is an unexported type for context keys to avoid collisions.
type contextKey int

const districtCtxKey contextKey = iota

// authDistrict holds the authenticated district context for a request.
type authDistrict struct {
	ID                 string
	Active             bool
	Policy             *resolve.DistrictPolicy
	PlacementAllowList []string
}

// districtFromContext extracts the authenticated district from the request context.
func districtFromContext(ctx context.Context) *authDistrict {
	v, _ := ctx.Value(districtCtxKey).(*authDistrict)
	return v
}

// --- Auth cache (stale-while-revalidate) ---

type cacheEntry struct {
	district   *authDistrict
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

func (c *authCache) get(key string) (dist *authDistrict, hit bool, needsRefresh bool) {
	v, ok := c.store.Load(key)
	if !ok {
		return nil, false, false
	}
	entry := v.(*cacheEntry)
	if time.Now().Before(entry.expiresAt) {
		return entry.district, true, false // fresh
	}
	// Stale — return value but signal refresh needed (only one goroutine refreshes)
	needsRefresh = entry.refreshing.CompareAndSwap(false, true)
	return entry.district, true, needsRefresh
}

func (c *authCache) set(key string, dist *authDistrict) {
	c.store.Store(key, &cacheEntry{
		district:  dist,
		expiresAt: time.Now().Add(c.ttl),
	})
}

// --- Auth middleware ---

// authMiddleware returns an http.HandlerFunc that validates Bearer dsk_ tokens
// and injects the authenticated district into the request context.
func (d *Dependencies) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	cache := newAuthCache(d.CacheTTL)

	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := extractBearerToken(r)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, ErrorResp{Detail: "Missing or invalid Authorization header"})
			return
		}
		if len(token) < 8 || !strings.HasPrefix(token, "dsk_") {
			writeJSON(w, http.StatusUnauthorized, ErrorResp{Detail: "Invalid API key format"})
			return
		}

		// Cache lookup
		dist, hit, needsRefresh := cache.get(token)
		if hit && needsRefresh {
			// Stale hit — return stale immediately, refresh in background
			go d.refreshAuth(cache, token)
		}
		if hit && dist != nil {
			ctx := context.WithValue(r.Context(), districtCtxKey, dist)
			next(w, r.WithContext(ctx))
			return
		}

		// Cache miss — synchronous lookup
		dist, err := d.authenticateToken(r.Context(), token)
		if err != nil {
			d.Logger.Warn("auth failed", zap.Error(err))
			writeJSON(w, http.StatusUnauthorized, ErrorResp{Detail: "Invalid API key"})
			return
		}
		if !dist.Active {
			writeJSON(w, http.StatusForbidden, ErrorResp{Detail: "District is deactivated"})
			return
		}

		cache.set(token, dist)
		ctx := context.WithValue(r.Context(), districtCtxKey, dist)
		next(w, r.WithContext(ctx))
	}
}

// authenticateToken validates an API key against Postgres and returns the
// district context with its parsed tool policy.
func (d *Dependencies) authenticateToken(ctx context.Context, token string) (*authDistrict, error) {
	prefix := token[:8]
	dw, err := d.Store.LookupByPrefix(ctx, prefix)
	if err != nil {
		return nil, err
	}
	if dw == nil {
		return nil, fmt.Errorf("district not found for prefix")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(dw.APIKeyHash), []byte(token)); err != nil {
		return nil, err
	}

	return &authDistrict{
		ID:                 dw.ID,
		Active:             dw.Active,
		Policy:             parseToolPolicy(dw.BlockedSupportIDs, dw.RequiredSupportIDs),
		PlacementAllowList: parseStringArray(dw.PlacementAllowList),
	}, nil
}

// refreshAuth refreshes the cache entry in the background.
func (d *Dependencies) refreshAuth(cache *authCache, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	dist, err := d.authenticateToken(ctx, token)
	if err != nil {
		d.Logger.Warn("background auth refresh failed", zap.Error(err))
		return
	}
	cache.set(token, dist)
}

// parseToolPolicy converts the JSONB id arrays into a resolver policy.
// Returns nil when the district has no blocks or requirements.
func parseToolPolicy(blocked, required json.RawMessage) *resolve.DistrictPolicy {
	b := parseStringArray(blocked)
	r := parseStringArray(required)
	if len(b) == 0 && len(r) == 0 {
		return nil
	}
	return &resolve.DistrictPolicy{
		BlockedSupportIDs:  b,
		RequiredSupportIDs: r,
	}
}

// parseStringArray parses a JSONB array of strings; nil on empty or invalid.
func parseStringArray(raw json.RawMessage) []string {
	if len(raw) == 0 || string(raw) == "null" || string(raw) == "[]" {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
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
