package ratelimit

import (
	"sync"
	"time"

	"groupwarden/internal/platform"

	"golang.org/x/time/rate"
)

// Gate suppresses moderation reactions for a (group, user) pair that fires
// faster than the cooldown. Command handling and counting are not gated.
type Gate struct {
	cooldown time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewGate(cooldown time.Duration) *Gate {
	return &Gate{
		cooldown: cooldown,
		limiters: make(map[string]*rate.Limiter),
	}
}

// ShouldSuppress reports whether moderation for this pair is inside the
// cooldown window at now. The first call for a pair always passes.
func (g *Gate) ShouldSuppress(group, user platform.JID, now time.Time) bool {
	key := group.User() + ":" + user.User()

	g.mu.Lock()
	limiter, ok := g.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(g.cooldown), 1)
		g.limiters[key] = limiter
	}
	g.mu.Unlock()

	return !limiter.AllowN(now, 1)
}
