// Package redishealth pings the control plane's session-store Redis
// backend for GET /status, independent of the session middleware's own
// connection (gin-contrib/sessions/redis, backed by gomodule/redigo). It
// uses redis/go-redis/v9 directly — the client the original channel
// repositories used throughout, and otherwise left without a home once
// those repositories were replaced by the supervisor's in-memory state.
package redishealth

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Pinger checks Redis reachability without owning any application data.
type Pinger struct {
	client *redis.Client
}

// New returns a Pinger against addr, or nil if addr is empty (no Redis
// backend configured).
func New(addr string) *Pinger {
	if addr == "" {
		return nil
	}
	return &Pinger{client: redis.NewClient(&redis.Options{Addr: addr})}
}

// OK reports whether Redis answered PING within 500ms.
func (p *Pinger) OK() bool {
	if p == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	return p.client.Ping(ctx).Err() == nil
}

// Close releases the underlying connection pool.
func (p *Pinger) Close() error {
	if p == nil {
		return nil
	}
	return p.client.Close()
}
