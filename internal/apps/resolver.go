package apps

import (
	"fmt"
	"sync"

	"github.com/goodtune/usagereporter/internal/metrics"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

// DefaultCacheSize bounds the display name cache.
const DefaultCacheSize = 512

// Resolver maps application ids to display names. Names are cached per id
// until Purge or Reload; unknown ids resolve to themselves.
type Resolver struct {
	path      string
	inventory *Inventory
	cache     *lru.Cache[string, string]
	logger    zerolog.Logger
	mu        sync.RWMutex
}

// NewResolver loads the inventory at path and creates the name cache.
func NewResolver(path string, cacheSize int, logger zerolog.Logger) (*Resolver, error) {
	inventory, err := LoadInventory(path)
	if err != nil {
		return nil, err
	}
	return newResolver(path, inventory, cacheSize, logger)
}

// NewStaticResolver serves names from a fixed inventory.
func NewStaticResolver(inventory *Inventory, cacheSize int, logger zerolog.Logger) (*Resolver, error) {
	return newResolver("", inventory, cacheSize, logger)
}

func newResolver(path string, inventory *Inventory, cacheSize int, logger zerolog.Logger) (*Resolver, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}

	cache, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create name cache: %w", err)
	}

	r := &Resolver{
		path:      path,
		inventory: inventory,
		cache:     cache,
		logger:    logger.With().Str("component", "apps").Logger(),
	}

	r.logger.Info().
		Str("path", path).
		Int("applications", inventory.Len()).
		Int("cache_size", cacheSize).
		Msg("Application inventory loaded")

	return r, nil
}

// Resolve returns the display name for id. It never fails.
func (r *Resolver) Resolve(id string) string {
	if name, ok := r.cache.Get(id); ok {
		metrics.NameCacheHits.Inc()
		return name
	}
	metrics.NameCacheMisses.Inc()

	r.mu.RLock()
	app, found := r.inventory.Lookup(id)
	r.mu.RUnlock()

	name := id
	if found && app.Name != "" {
		name = app.Name
	}

	r.cache.Add(id, name)
	return name
}

// List returns the user-facing applications sorted by name.
func (r *Resolver) List() []Application {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.inventory.List()
}

// Purge clears the name cache.
func (r *Resolver) Purge() {
	r.cache.Purge()
	r.logger.Debug().Msg("Application name cache purged")
}

// Reload re-reads the inventory file and clears the cache. The previous
// inventory stays in place when the file cannot be parsed.
func (r *Resolver) Reload() error {
	if r.path == "" {
		r.Purge()
		return nil
	}

	inventory, err := LoadInventory(r.path)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.inventory = inventory
	r.mu.Unlock()
	r.cache.Purge()

	r.logger.Info().
		Str("path", r.path).
		Int("applications", inventory.Len()).
		Msg("Application inventory reloaded")

	return nil
}

// Path returns the inventory file path, empty for static resolvers.
func (r *Resolver) Path() string {
	return r.path
}
