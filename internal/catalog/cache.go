package catalog

import (
	"context"
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/joseph-ayodele/cfdi-bills/internal/entity"
)

const (
	itemsCacheKey   = "items:all"
	vendorsCacheKey = "vendors"
	accountsPrefix  = "accounts:"
)

// CachedSource keeps the full item list for ttl. Name and substring lookups
// pass through; within a run they are deduplicated by LookupMemo instead.
type CachedSource struct {
	src    Source
	cache  *cache.Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedSource wraps src. A ttl of zero or less disables caching.
func NewCachedSource(src Source, ttl time.Duration, logger *slog.Logger) *CachedSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedSource{
		src:    src,
		cache:  newTTLCache(ttl),
		ttl:    ttl,
		logger: logger,
	}
}

func newTTLCache(ttl time.Duration) *cache.Cache {
	if ttl <= 0 {
		return nil
	}
	return cache.New(ttl, 2*ttl)
}

func (c *CachedSource) FetchAllItems(ctx context.Context) ([]entity.CatalogEntry, error) {
	if c.cache != nil {
		if v, ok := c.cache.Get(itemsCacheKey); ok {
			items := v.([]entity.CatalogEntry)
			c.logger.Debug("catalog.cache.hit", "items", len(items))
			return append([]entity.CatalogEntry(nil), items...), nil
		}
	}

	start := time.Now()
	items, err := c.src.FetchAllItems(ctx)
	if err != nil {
		c.logger.Warn("catalog.fetch.failed", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, err
	}
	if c.cache != nil {
		c.cache.Set(itemsCacheKey, append([]entity.CatalogEntry(nil), items...), cache.DefaultExpiration)
	}
	c.logger.Info("catalog.fetch.ok", "items", len(items), "ttl", c.ttl.String(), "elapsed_ms", time.Since(start).Milliseconds())
	return items, nil
}

func (c *CachedSource) FetchItemByName(ctx context.Context, name string) (*entity.CatalogEntry, error) {
	return c.src.FetchItemByName(ctx, name)
}

func (c *CachedSource) FetchItemsLike(ctx context.Context, pattern string) ([]entity.CatalogEntry, error) {
	return c.src.FetchItemsLike(ctx, pattern)
}

// Invalidate drops the cached item list.
func (c *CachedSource) Invalidate() {
	if c.cache != nil {
		c.cache.Delete(itemsCacheKey)
	}
}

// CachedDirectory keeps vendor and account listings for ttl.
type CachedDirectory struct {
	dir    Directory
	cache  *cache.Cache
	logger *slog.Logger
}

func NewCachedDirectory(dir Directory, ttl time.Duration, logger *slog.Logger) *CachedDirectory {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedDirectory{dir: dir, cache: newTTLCache(ttl), logger: logger}
}

func (d *CachedDirectory) ListVendors(ctx context.Context) ([]entity.NamedRef, error) {
	return d.cached(vendorsCacheKey, func() ([]entity.NamedRef, error) {
		return d.dir.ListVendors(ctx)
	})
}

func (d *CachedDirectory) ListAccounts(ctx context.Context, accountType string) ([]entity.NamedRef, error) {
	return d.cached(accountsPrefix+accountType, func() ([]entity.NamedRef, error) {
		return d.dir.ListAccounts(ctx, accountType)
	})
}

func (d *CachedDirectory) cached(key string, load func() ([]entity.NamedRef, error)) ([]entity.NamedRef, error) {
	if d.cache != nil {
		if v, ok := d.cache.Get(key); ok {
			return append([]entity.NamedRef(nil), v.([]entity.NamedRef)...), nil
		}
	}
	refs, err := load()
	if err != nil {
		d.logger.Warn("directory.fetch.failed", "key", key, "error", err)
		return nil, err
	}
	if d.cache != nil {
		d.cache.Set(key, append([]entity.NamedRef(nil), refs...), cache.DefaultExpiration)
	}
	return refs, nil
}
