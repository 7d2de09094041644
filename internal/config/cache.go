package config

import (
	"strings"
	"time"
)

// CacheConfig defines settings for the response cache middleware. Methods
// is derived from MethodList once the environment has been parsed.
type CacheConfig struct {
	Enabled      bool          `env:"CACHE_ENABLED"        envDefault:"true"`
	MethodList   []string      `env:"CACHE_METHODS"        envDefault:"GET" envSeparator:","`
	TTL          time.Duration `env:"CACHE_TTL"            envDefault:"30s"`
	KeyStrategy  string        `env:"CACHE_KEY_STRATEGY"   envDefault:"route_query"`
	Prefix       string        `env:"CACHE_PREFIX"         envDefault:"cache"`
	MaxBodyBytes int           `env:"CACHE_MAX_BODY_BYTES" envDefault:"1048576"`

	Methods map[string]bool
}

func (c *CacheConfig) normalize() {
	c.Methods = parseMethods(c.MethodList)
	if c.TTL <= 0 {
		c.TTL = 30 * time.Second
	}
}

func parseMethods(list []string) map[string]bool {
	m := map[string]bool{}
	for _, p := range list {
		p = strings.TrimSpace(strings.ToUpper(p))
		if p != "" {
			m[p] = true
		}
	}
	return m
}
