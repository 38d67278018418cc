package trust

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kingerharshit/toolgate/internal/store"
	"go.uber.org/zap"
)

// Origin classifies where a tool's output comes from.
type Origin int

const (
	// OriginUnknown means the resolver has no record of the tool. Treated as
	// untrusted by the classifier.
	OriginUnknown Origin = iota
	// OriginFirstParty is the platform's own control-plane tooling.
	OriginFirstParty
	// OriginTrusted is a tool from a server the operator marked trusted.
	OriginTrusted
	// OriginUntrusted is a tool from a known but untrusted server.
	OriginUntrusted
)

func (o Origin) String() string {
	switch o {
	case OriginFirstParty:
		return "first_party"
	case OriginTrusted:
		return "trusted"
	case OriginUntrusted:
		return "untrusted"
	default:
		return "unknown"
	}
}

// Credentials carries opaque caller credentials through to resolvers that
// need them to resolve remote tool identity. The built-in resolvers ignore
// them.
type Credentials map[string]string

// Resolver resolves the provenance of a tool for an agent. Implementations
// must respect the context deadline: resolution is the only I/O the
// classifier performs.
type Resolver interface {
	Resolve(ctx context.Context, agentID, toolName string, creds Credentials) (Origin, error)
}

// ChainResolver consults resolvers in order, returning the first answer that
// is not OriginUnknown. An error from any link stops the chain: provenance
// the chain cannot confirm must not be guessed by a later link.
type ChainResolver []Resolver

func (c ChainResolver) Resolve(ctx context.Context, agentID, toolName string, creds Credentials) (Origin, error) {
	for _, r := range c {
		origin, err := r.Resolve(ctx, agentID, toolName, creds)
		if err != nil {
			return OriginUnknown, err
		}
		if origin != OriginUnknown {
			return origin, nil
		}
	}
	return OriginUnknown, nil
}

// StoreResolver resolves provenance from the agent_tools table: a tool
// assigned to the agent is trusted iff its originating server is marked
// trusted. Lookups go through a TTL stale-while-revalidate cache so the
// per-message walk does not hammer Postgres.
type StoreResolver struct {
	store   *store.Store
	entries sync.Map // map[string]*resolverCacheEntry
	ttl     time.Duration
	logger  *zap.Logger
}

type resolverCacheEntry struct {
	origin     Origin
	expiresAt  time.Time
	refreshing atomic.Bool
}

// NewStoreResolver creates a StoreResolver with the given cache TTL.
func NewStoreResolver(s *store.Store, ttl time.Duration, logger *zap.Logger) *StoreResolver {
	if ttl == 0 {
		ttl = 60 * time.Second
	}
	return &StoreResolver{store: s, ttl: ttl, logger: logger}
}

func (r *StoreResolver) Resolve(ctx context.Context, agentID, toolName string, _ Credentials) (Origin, error) {
	key := agentID + ":" + toolName

	if v, ok := r.entries.Load(key); ok {
		entry := v.(*resolverCacheEntry)
		if time.Now().Before(entry.expiresAt) {
			return entry.origin, nil
		}
		if entry.refreshing.CompareAndSwap(false, true) {
			go r.refreshInBackground(agentID, toolName, key)
		}
		return entry.origin, nil
	}

	origin, err := r.lookup(ctx, agentID, toolName)
	if err != nil {
		return OriginUnknown, err
	}
	r.entries.Store(key, &resolverCacheEntry{origin: origin, expiresAt: time.Now().Add(r.ttl)})
	return origin, nil
}

func (r *StoreResolver) lookup(ctx context.Context, agentID, toolName string) (Origin, error) {
	at, err := r.store.GetAgentTool(ctx, agentID, toolName)
	if err != nil {
		return OriginUnknown, err
	}
	if at == nil {
		return OriginUnknown, nil
	}
	if at.ServerTrusted {
		return OriginTrusted, nil
	}
	return OriginUntrusted, nil
}

func (r *StoreResolver) refreshInBackground(agentID, toolName, key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	origin, err := r.lookup(ctx, agentID, toolName)
	if err != nil {
		r.logger.Warn("background provenance refresh failed",
			zap.String("agent_id", agentID),
			zap.String("tool_name", toolName),
			zap.Error(err),
		)
		return
	}
	r.entries.Store(key, &resolverCacheEntry{origin: origin, expiresAt: time.Now().Add(r.ttl)})
}
