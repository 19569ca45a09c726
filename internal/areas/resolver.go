package areas

import (
	"fmt"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds how many distinct configuration files a Resolver keeps.
const DefaultCacheSize = 16

// Resolver loads area configurations once per path and answers resolution
// queries against them. It is safe for concurrent use.
type Resolver struct {
	cache *lru.Cache[string, *AreaConfig]
	opts  []Option
}

// NewResolver builds a resolver caching up to size configurations. A size <= 0
// uses DefaultCacheSize. The options apply to every configuration it loads.
func NewResolver(size int, opts ...Option) (*Resolver, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, *AreaConfig](size)
	if err != nil {
		return nil, fmt.Errorf("area cache: %w", err)
	}
	return &Resolver{cache: cache, opts: opts}, nil
}

// Load returns the configuration at path, parsing it only on first use.
func (r *Resolver) Load(path string) (*AreaConfig, error) {
	key, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve area config path: %w", err)
	}
	if cfg, ok := r.cache.Get(key); ok {
		return cfg, nil
	}
	cfg, err := Load(key, r.opts...)
	if err != nil {
		return nil, err
	}
	r.cache.Add(key, cfg)
	return cfg, nil
}

// Resolve loads the configuration at path and resolves requested against it.
func (r *Resolver) Resolve(path string, requested []string) (Resolution, error) {
	cfg, err := r.Load(path)
	if err != nil {
		return Resolution{}, err
	}
	return cfg.ResolveProjects(requested), nil
}

// Forget drops any cached configuration for path so the next Load re-reads it.
func (r *Resolver) Forget(path string) {
	if key, err := filepath.Abs(path); err == nil {
		r.cache.Remove(key)
	}
}
