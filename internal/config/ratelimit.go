package config

import "time"

// RateLimitConfig configures the token bucket in front of the login
// endpoint.  A bucket holds Capacity tokens and regains RefillTokens every
// RefillInterval.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
	KeyStrategy    string
	Prefix         string
	Debug          bool
}

func loadRateLimit(l *loader) RateLimitConfig {
	c := RateLimitConfig{
		Enabled:        l.boolean("RATE_LIMIT_ENABLED", true),
		Capacity:       l.integer("RATE_LIMIT_CAPACITY", 5),
		RefillTokens:   l.integer("RATE_LIMIT_REFILL_TOKENS", 1),
		RefillInterval: l.duration("RATE_LIMIT_REFILL_INTERVAL", 12*time.Second),
		TTL:            l.duration("RATE_LIMIT_TTL", 10*time.Minute),
		KeyStrategy:    l.oneOf("RATE_LIMIT_KEY_STRATEGY", "ip_route", "ip", "route", "ip_route"),
		Prefix:         l.str("RATE_LIMIT_PREFIX", "ems:rl"),
		Debug:          l.boolean("RATE_LIMIT_DEBUG", false),
	}
	if c.Capacity < 1 {
		c.Capacity = 1
	}
	if c.RefillTokens < 1 {
		c.RefillTokens = 1
	}
	if c.RefillInterval <= 0 {
		c.RefillInterval = time.Second
	}
	if minTTL := 5 * c.RefillInterval; c.TTL < minTTL {
		c.TTL = minTTL
	}
	return c
}
