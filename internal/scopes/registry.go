package scopes

import (
	"fmt"
	"sort"
	"time"

	"github.com/rob634/rmhtitiler-sub001/internal/config"
	"github.com/rob634/rmhtitiler-sub001/internal/core"
)

// DefaultRefreshThreshold is how long before hard expiry a cached token
// is considered due for refresh.
const DefaultRefreshThreshold = 5 * time.Minute

// Registry is the fixed set of credential scopes this process may
// request. It is built once at startup; lookups of names that were
// never registered are wiring bugs and fail hard.
type Registry struct {
	scopes map[string]core.Scope
	names  []string
}

// BuildRegistry assembles the registry from the built-in scopes plus
// configured overrides and additions.
func BuildRegistry(cfg *config.Config) (*Registry, error) {
	scopes := map[string]core.Scope{
		core.ScopeStorage: {
			Name:             core.ScopeStorage,
			Audience:         core.StorageAudience,
			RefreshThreshold: DefaultRefreshThreshold,
			Publish:          core.PublishEnv,
		},
	}
	if cfg.Database != nil {
		scopes[core.ScopeDatabase] = core.Scope{
			Name:             core.ScopeDatabase,
			Audience:         core.DatabaseAudience,
			RefreshThreshold: DefaultRefreshThreshold,
			Publish:          core.PublishConnString,
		}
	}

	for idx, sc := range cfg.Scopes {
		base, exists := scopes[sc.Name]
		if !exists {
			if sc.Audience == "" {
				return nil, fmt.Errorf("scope %q at index %d: audience is required for custom scopes", sc.Name, idx)
			}
			base = core.Scope{
				Name:             sc.Name,
				RefreshThreshold: DefaultRefreshThreshold,
				Publish:          core.PublishNone,
			}
		}
		if sc.Audience != "" {
			base.Audience = sc.Audience
		}
		if sc.RefreshThreshold > 0 {
			base.RefreshThreshold = sc.RefreshThreshold
		}
		if sc.Publish != "" {
			base.Publish = core.PublishTarget(sc.Publish)
		}
		scopes[sc.Name] = base
	}

	names := make([]string, 0, len(scopes))
	for name := range scopes {
		names = append(names, name)
	}
	sort.Strings(names)

	return &Registry{scopes: scopes, names: names}, nil
}

// Get returns the scope for name, or ErrUnknownScope.
func (r *Registry) Get(name string) (core.Scope, error) {
	sc, ok := r.scopes[name]
	if !ok {
		return core.Scope{}, fmt.Errorf("%w: %q", core.ErrUnknownScope, name)
	}
	return sc, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.scopes[name]
	return ok
}

// Names returns all registered scope names in stable order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// All returns all registered scopes in stable name order.
func (r *Registry) All() []core.Scope {
	out := make([]core.Scope, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.scopes[name])
	}
	return out
}
