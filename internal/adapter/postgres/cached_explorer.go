package postgres

import (
	"context"
	"time"

	"github.com/guillermoBallester/pgchat/internal/core/port"
	"github.com/jellydator/ttlcache/v3"
)

const listTablesCacheKey = "tables"

// CachedExplorer memoizes schema lookups for ttl. Schema changes made while
// the process runs show up once entries expire. Errors are never cached.
type CachedExplorer struct {
	inner   port.SchemaExplorer
	ttl     time.Duration
	tables  *ttlcache.Cache[string, []port.TableInfo]
	details *ttlcache.Cache[string, *port.TableDetail]
}

func NewCachedExplorer(inner port.SchemaExplorer, ttl time.Duration) *CachedExplorer {
	return &CachedExplorer{
		inner:   inner,
		ttl:     ttl,
		tables:  ttlcache.New(ttlcache.WithTTL[string, []port.TableInfo](ttl)),
		details: ttlcache.New(ttlcache.WithTTL[string, *port.TableDetail](ttl)),
	}
}

func (c *CachedExplorer) ListTables(ctx context.Context) ([]port.TableInfo, error) {
	if cached := c.tables.Get(listTablesCacheKey); cached != nil {
		return cached.Value(), nil
	}
	tables, err := c.inner.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	c.tables.Set(listTablesCacheKey, tables, c.ttl)
	return tables, nil
}

func (c *CachedExplorer) DescribeTable(ctx context.Context, schema, tableName string) (*port.TableDetail, error) {
	key := schema + "." + tableName
	if cached := c.details.Get(key); cached != nil {
		return cached.Value(), nil
	}
	detail, err := c.inner.DescribeTable(ctx, schema, tableName)
	if err != nil {
		return nil, err
	}
	c.details.Set(key, detail, c.ttl)
	return detail, nil
}

// Invalidate drops every cached entry.
func (c *CachedExplorer) Invalidate() {
	c.tables.DeleteAll()
	c.details.DeleteAll()
}
