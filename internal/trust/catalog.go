package trust

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Catalog is the operator-maintained map of trusted tool sources. It answers
// before the store-backed resolver, so first-party tools and statically
// trusted integrations never need a database round trip.
type Catalog struct {
	// FirstPartyPrefix marks the platform's own tool namespace.
	FirstPartyPrefix string `yaml:"first_party_prefix"`
	// TrustedTools are tool names trusted for every agent.
	TrustedTools []string `yaml:"trusted_tools"`
	// Agents maps agent id → additional trusted tool names for that agent.
	Agents map[string][]string `yaml:"agents"`
}

// CatalogResolver resolves provenance from a YAML catalog file, hot-reloaded
// on change. Unlisted tools resolve to OriginUnknown so the next resolver in
// the chain gets a chance.
type CatalogResolver struct {
	path    string
	catalog atomic.Pointer[Catalog]
	logger  *zap.Logger
}

// NewCatalogResolver loads the catalog file. An empty path yields an empty
// catalog, so every lookup falls through to the next resolver.
func NewCatalogResolver(path string, logger *zap.Logger) (*CatalogResolver, error) {
	r := &CatalogResolver{path: path, logger: logger}
	if path == "" {
		r.catalog.Store(&Catalog{})
		return r, nil
	}
	if err := r.reload(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *CatalogResolver) reload() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("catalog reload: %w", err)
	}
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return fmt.Errorf("catalog reload: %w", err)
	}
	r.catalog.Store(&cat)
	return nil
}

// Snapshot returns the current catalog.
func (r *CatalogResolver) Snapshot() *Catalog {
	return r.catalog.Load()
}

func (r *CatalogResolver) Resolve(_ context.Context, agentID, toolName string, _ Credentials) (Origin, error) {
	cat := r.catalog.Load()
	if cat == nil {
		return OriginUnknown, nil
	}
	if cat.FirstPartyPrefix != "" && len(toolName) >= len(cat.FirstPartyPrefix) &&
		toolName[:len(cat.FirstPartyPrefix)] == cat.FirstPartyPrefix {
		return OriginFirstParty, nil
	}
	for _, name := range cat.TrustedTools {
		if name == toolName {
			return OriginTrusted, nil
		}
	}
	for _, name := range cat.Agents[agentID] {
		if name == toolName {
			return OriginTrusted, nil
		}
	}
	return OriginUnknown, nil
}

// Watch reloads the catalog when the file changes. Blocks until ctx is
// cancelled. A reload failure keeps the previous catalog.
func (r *CatalogResolver) Watch(ctx context.Context) error {
	if r.path == "" {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("catalog watch: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(r.path); err != nil {
		return fmt.Errorf("catalog watch: %w", err)
	}

	// Debounce: editors fire multiple events per save.
	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(200*time.Millisecond, func() {
					if err := r.reload(); err != nil {
						r.logger.Warn("trust catalog reload failed", zap.Error(err))
					} else {
						r.logger.Info("trust catalog reloaded", zap.String("path", r.path))
					}
				})
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("trust catalog watcher error", zap.Error(err))
		}
	}
}
