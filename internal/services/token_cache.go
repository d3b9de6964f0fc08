package services

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"esadad-service/internal/auditlog"
	"esadad-service/internal/gateway"
)

const (
	tokenCacheService = "token_cache"
	gatewayTimeLayout = "20060102150405"
	tokenExpiryBuffer = 5
)

// TokenCache keeps the merchant's authentication token until shortly before
// the gateway expires it. Concurrent misses may both authenticate; the last
// write wins.
type TokenCache struct {
	store        *cache.Cache
	key          string
	authenticate func(ctx context.Context) (*gateway.Response, error)
	audit        auditlog.Sink
	location     *time.Location
	now          func() time.Time
}

func NewTokenCache(merchantCode string, authenticate func(ctx context.Context) (*gateway.Response, error), audit auditlog.Sink, location *time.Location) *TokenCache {
	if location == nil {
		location = time.Local
	}
	return &TokenCache{
		store:        cache.New(cache.NoExpiration, 10*time.Minute),
		key:          "esadad_token_" + merchantCode,
		authenticate: authenticate,
		audit:        audit,
		location:     location,
		now:          time.Now,
	}
}

// Get returns the cached token unless forceNew is set or nothing valid is cached.
func (c *TokenCache) Get(ctx context.Context, forceNew bool) (*gateway.Response, error) {
	if !forceNew {
		if cached, ok := c.store.Get(c.key); ok {
			resp := cached.(*gateway.Response).Clone()
			resp.FromCache = true
			c.audit.Info(ctx, tokenCacheService, "Using cached token", auditlog.Context{
				"expiry_date": resp.ExpiryDate,
			}, nil)
			return resp, nil
		}
	}

	resp, err := c.authenticate(ctx)
	if err != nil {
		return nil, err
	}
	if resp.Successful() {
		c.put(ctx, resp)
	}
	return resp, nil
}

// Forget evicts the cached token.
func (c *TokenCache) Forget() {
	c.store.Delete(c.key)
}

func (c *TokenCache) put(ctx context.Context, resp *gateway.Response) {
	if resp.TokenKey == "" || resp.ExpiryDate == "" {
		return
	}
	ttl, err := CacheTTL(resp.ExpiryDate, c.now(), c.location)
	if err != nil {
		c.audit.Error(ctx, tokenCacheService, fmt.Sprintf("Failed to cache token: %v", err), auditlog.Context{
			"exception":   err.Error(),
			"expiry_date": resp.ExpiryDate,
		}, nil)
		return
	}
	c.store.Set(c.key, resp.Clone(), ttl)
	c.audit.Info(ctx, tokenCacheService, "Token cached", auditlog.Context{
		"expiry_date":   resp.ExpiryDate,
		"cache_minutes": int(ttl / time.Minute),
	}, nil)
}

// CacheTTL is max(1, minutesUntilExpiry-5) minutes, with minutesUntilExpiry
// truncated toward zero. An expiry in the past yields the one minute floor.
func CacheTTL(expiryDate string, now time.Time, location *time.Location) (time.Duration, error) {
	expiry, err := time.ParseInLocation(gatewayTimeLayout, expiryDate, location)
	if err != nil {
		return 0, fmt.Errorf("invalid expiry date %q: %w", expiryDate, err)
	}
	minutes := int64(expiry.Sub(now) / time.Minute)
	cacheMinutes := minutes - tokenExpiryBuffer
	if cacheMinutes < 1 {
		cacheMinutes = 1
	}
	return time.Duration(cacheMinutes) * time.Minute, nil
}
