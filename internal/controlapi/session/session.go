// Package session selects the gin-contrib/sessions backing store for the
// control plane's admin login. This is ephemeral HTTP-session state for the
// control plane's own auth, distinct from (and never a substitute for) the
// supervisor's in-memory fleet state — it does not conflict with the core
// spec's Non-goal on persistent supervisor state.
package session

import (
	"fmt"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-contrib/sessions/redis"
)

// NewStore returns a cookie-backed session store, or a Redis-backed one
// (gin-contrib/sessions/redis, itself backed by boj/redistore and
// gomodule/redigo) when redisAddr is non-empty — mirroring the teacher's
// pattern of swapping session backends by address presence.
func NewStore(redisAddr string, secret []byte) (sessions.Store, error) {
	if redisAddr == "" {
		return cookie.NewStore(secret), nil
	}

	store, err := redis.NewStore(10, "tcp", redisAddr, "", secret)
	if err != nil {
		return nil, fmt.Errorf("session: redis store: %w", err)
	}
	return store, nil
}
