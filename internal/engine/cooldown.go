package engine

import (
	"sync"
	"time"

	"hivetrust/internal/model"
)

// Cooldown rate-limits how often a rule may publish new signals.
type Cooldown struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func NewCooldown() *Cooldown {
	return &Cooldown{last: make(map[string]time.Time)}
}

func (c *Cooldown) Allow(rule model.AlertRule, now time.Time, cooldown time.Duration) bool {
	return c.AllowKey(rule.ID+"|"+string(rule.Scope)+"|"+rule.ScopeID, now, cooldown)
}

func (c *Cooldown) AllowKey(key string, now time.Time, cooldown time.Duration) bool {
	if cooldown <= 0 {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if ts, ok := c.last[key]; ok && now.Sub(ts) < cooldown {
		return false
	}
	c.last[key] = now
	return true
}
