package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/singleflight"

	"github.com/FrancescoCarrabino/feelghost/internal/analyzer"
)

// CachedClient memoizes suggestions per (model, context) for a fixed TTL and
// shares one model call between identical concurrent requests.
type CachedClient struct {
	next  Client
	cache *ttlcache.Cache[string, string]
	group singleflight.Group
}

// NewCachedClient wraps next. Call Close to stop the expiration loop.
func NewCachedClient(next Client, ttl time.Duration) *CachedClient {
	c := ttlcache.New[string, string](
		ttlcache.WithTTL[string, string](ttl),
		ttlcache.WithDisableTouchOnHit[string, string](),
	)
	go c.Start()
	return &CachedClient{next: next, cache: c}
}

// Close stops the cache expiration loop.
func (c *CachedClient) Close() {
	c.cache.Stop()
}

func (c *CachedClient) GetSuggestion(ctx context.Context, info *analyzer.ContextInfo) (string, error) {
	key := c.key(info)
	if item := c.cache.Get(key); item != nil {
		log.Printf("[FG][cache] Hit for %s", key[:12])
		return item.Value(), nil
	}

	v, err, shared := c.group.Do(key, func() (any, error) {
		s, err := c.next.GetSuggestion(ctx, info)
		if err != nil {
			return "", err
		}
		c.cache.Set(key, s, ttlcache.DefaultTTL)
		return s, nil
	})
	if shared {
		log.Printf("[FG][cache] Shared in-flight request for %s", key[:12])
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *CachedClient) Identify() string {
	return c.next.Identify()
}

// Len returns the number of live entries.
func (c *CachedClient) Len() int {
	return c.cache.Len()
}

func (c *CachedClient) key(info *analyzer.ContextInfo) string {
	var enclosing string
	if info.EnclosingNode != nil {
		enclosing = info.EnclosingNode.Content
	}
	h := sha256.New()
	for _, part := range []string{
		c.next.Identify(), info.LanguageID, info.EvalContext,
		info.BeforeCursor(), info.AfterCursor(),
		enclosing, strings.Join(info.Imports, "\n"),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
