package config

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig addresses the Redis server used for rate limiting, response
// caching and the sweeper lock. REDIS_ADDR is used unless both REDIS_HOST
// and REDIS_PORT are set.
type RedisConfig struct {
	Host     string `env:"REDIS_HOST"`
	Port     string `env:"REDIS_PORT"`
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB"   envDefault:"0"`
	TLS      bool   `env:"REDIS_TLS"  envDefault:"false"`
}

// Address resolves the host:port to dial.
func (c RedisConfig) Address() string {
	if c.Host != "" && c.Port != "" {
		return c.Host + ":" + c.Port
	}
	if c.Addr == "" {
		return "localhost:6379"
	}
	return c.Addr
}

// NewRedisClient dials Redis and pings it with a short timeout. It returns
// nil when the server is unreachable; callers degrade by disabling caching,
// rate limiting and the sweeper lock.
func NewRedisClient(cfg RedisConfig) *redis.Client {
	var tlsConf *tls.Config
	if cfg.TLS {
		tlsConf = &tls.Config{InsecureSkipVerify: true}
	}
	client := redis.NewClient(&redis.Options{
		Addr:      cfg.Address(),
		Password:  cfg.Password,
		DB:        cfg.DB,
		TLSConfig: tlsConf,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil
	}
	return client
}
