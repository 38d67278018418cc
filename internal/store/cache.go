package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// policySource is the slice of Store the cache reads through.
type policySource interface {
	ListPoliciesFor(ctx context.Context, agentID, toolName string) ([]Policy, error)
	GetSecurityConfig(ctx context.Context, agentID, toolName string) (*SecurityConfig, error)
}

// CachingPolicyReader sits in front of the Store's read path for the
// evaluation hot loop. Entries are keyed (agentID, toolName) and carry the
// generation counter current at fill time: any policy mutation bumps the
// generation, so a reader never serves a policy set from before a
// syncPolicies call. Expired entries are served stale while one goroutine
// refreshes in the background.
type CachingPolicyReader struct {
	store      policySource
	entries    sync.Map // map[string]*policyCacheEntry
	generation atomic.Uint64
	ttl        time.Duration
	logger     *zap.Logger
}

type policyCacheEntry struct {
	policies   []Policy
	config     *SecurityConfig
	generation uint64
	expiresAt  time.Time
	refreshing atomic.Bool
}

// NewCachingPolicyReader creates a caching reader with the given TTL.
func NewCachingPolicyReader(s policySource, ttl time.Duration, logger *zap.Logger) *CachingPolicyReader {
	if ttl == 0 {
		ttl = 30 * time.Second
	}
	return &CachingPolicyReader{store: s, ttl: ttl, logger: logger}
}

// Bump invalidates every cached entry. Called after any policy mutation.
func (c *CachingPolicyReader) Bump() {
	c.generation.Add(1)
}

func policyCacheKey(agentID, toolName string) string {
	return agentID + ":" + toolName
}

// ListPoliciesFor returns the cached policy set for the pair, filling from
// the store on miss or on a generation mismatch.
func (c *CachingPolicyReader) ListPoliciesFor(ctx context.Context, agentID, toolName string) ([]Policy, error) {
	entry, err := c.lookup(ctx, agentID, toolName)
	if err != nil {
		return nil, err
	}
	return entry.policies, nil
}

// GetSecurityConfig returns the cached relationship default for the pair.
func (c *CachingPolicyReader) GetSecurityConfig(ctx context.Context, agentID, toolName string) (*SecurityConfig, error) {
	entry, err := c.lookup(ctx, agentID, toolName)
	if err != nil {
		return nil, err
	}
	return entry.config, nil
}

func (c *CachingPolicyReader) lookup(ctx context.Context, agentID, toolName string) (*policyCacheEntry, error) {
	key := policyCacheKey(agentID, toolName)
	gen := c.generation.Load()

	if v, ok := c.entries.Load(key); ok {
		entry := v.(*policyCacheEntry)
		if entry.generation == gen {
			if time.Now().Before(entry.expiresAt) {
				return entry, nil
			}
			// Stale but same generation: serve it, refresh once in background.
			if entry.refreshing.CompareAndSwap(false, true) {
				go c.refreshInBackground(agentID, toolName)
			}
			return entry, nil
		}
		// Generation mismatch: a mutation happened, fall through to a
		// synchronous refill so the caller never sees the replaced set.
	}

	return c.fill(ctx, key, agentID, toolName, gen)
}

func (c *CachingPolicyReader) fill(ctx context.Context, key, agentID, toolName string, gen uint64) (*policyCacheEntry, error) {
	policies, err := c.store.ListPoliciesFor(ctx, agentID, toolName)
	if err != nil {
		return nil, err
	}
	config, err := c.store.GetSecurityConfig(ctx, agentID, toolName)
	if err != nil {
		return nil, err
	}
	entry := &policyCacheEntry{
		policies:   policies,
		config:     config,
		generation: gen,
		expiresAt:  time.Now().Add(c.ttl),
	}
	c.entries.Store(key, entry)
	return entry, nil
}

func (c *CachingPolicyReader) refreshInBackground(agentID, toolName string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	key := policyCacheKey(agentID, toolName)
	if _, err := c.fill(ctx, key, agentID, toolName, c.generation.Load()); err != nil {
		c.logger.Warn("background policy cache refresh failed",
			zap.String("agent_id", agentID),
			zap.String("tool_name", toolName),
			zap.Error(err),
		)
	}
}
