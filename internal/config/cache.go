package config

import (
	"strings"
	"time"
)

// CacheConfig configures the response cache used for reference data such
// as the module catalogue.  Methods lists the cacheable HTTP methods.
type CacheConfig struct {
	Enabled      bool
	Methods      map[string]bool
	TTL          time.Duration
	Prefix       string
	MaxBodyBytes int
}

func loadCache(l *loader) CacheConfig {
	return CacheConfig{
		Enabled:      l.boolean("CACHE_ENABLED", true),
		Methods:      parseMethods(l.str("CACHE_METHODS", "GET")),
		TTL:          l.duration("CACHE_TTL", 5*time.Minute),
		Prefix:       l.str("CACHE_PREFIX", "ems:cache"),
		MaxBodyBytes: l.integer("CACHE_MAX_BODY_BYTES", 1<<20),
	}
}

func parseMethods(s string) map[string]bool {
	m := map[string]bool{}
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(strings.ToUpper(p))
		if p != "" {
			m[p] = true
		}
	}
	return m
}
