package plansource

import (
	"sync"
	"sync/atomic"
	"time"
)

// PlanCache is a TTL-based in-memory cache with stale-while-revalidate for
// accommodation plans. Uses sync.Map for lock-free reads on the hot path.
type PlanCache struct {
	store sync.Map // map[string]*planCacheEntry
	ttl   time.Duration
}

type planCacheEntry struct {
	plan       *PlanData // nil = negative cache (no plan on file)
	expiresAt  time.Time
	refreshing atomic.Bool
}

// CacheGetResult holds the result of a cache lookup.
type CacheGetResult struct {
	Plan         *PlanData // nil if not found or negative cache
	Hit          bool      // true if a value was found (fresh or stale)
	NeedsRefresh bool      // true if expired — caller should refresh in background
}

// NewPlanCache creates a cache with the given TTL.
func NewPlanCache(ttl time.Duration) *PlanCache {
	return &PlanCache{ttl: ttl}
}

// cacheKey builds the lookup key for a district+student+assessment triple.
func cacheKey(districtID, studentID, assessmentID string) string {
	return districtID + ":" + studentID + ":" + assessmentID
}

// Get performs a non-blocking cache lookup. Returns stale entries with
// NeedsRefresh=true when expired; only one caller wins the refresh CAS.
func (c *PlanCache) Get(districtID, studentID, assessmentID string) CacheGetResult {
	val, ok := c.store.Load(cacheKey(districtID, studentID, assessmentID))
	if !ok {
		return CacheGetResult{}
	}

	entry := val.(*planCacheEntry)
	if time.Now().Before(entry.expiresAt) {
		return CacheGetResult{Plan: entry.plan, Hit: true}
	}

	needsRefresh := entry.refreshing.CompareAndSwap(false, true)
	return CacheGetResult{
		Plan:         entry.plan,
		Hit:          true,
		NeedsRefresh: needsRefresh,
	}
}

// Set stores a plan with a fresh TTL. Passing nil stores a negative entry.
func (c *PlanCache) Set(districtID, studentID, assessmentID string, plan *PlanData) {
	c.store.Store(cacheKey(districtID, studentID, assessmentID), &planCacheEntry{
		plan:      plan,
		expiresAt: time.Now().Add(c.ttl),
	})
}

// Delete removes an entry from the cache.
func (c *PlanCache) Delete(districtID, studentID, assessmentID string) {
	c.store.Delete(cacheKey(districtID, studentID, assessmentID))
}
