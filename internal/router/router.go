// Package router wires handlers and middleware onto the echo instance.
package router

import (
	"database/sql"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/emigresto/meal-reservation/internal/config"
	"github.com/emigresto/meal-reservation/internal/handler"
	"github.com/emigresto/meal-reservation/internal/middleware"
)

// Guard holds the middleware shared by every authenticated group.
type Guard struct {
	JWTSecret string
	Redis     *redis.Client // nil disables rate limiting and caching
	RateLimit config.RateLimitConfig
	Cache     config.CacheConfig
	Log       logrus.FieldLogger
}

// chain is JWTAuth followed by the rate limiter, keyed on the caller.
func (g Guard) chain() []echo.MiddlewareFunc {
	return []echo.MiddlewareFunc{
		middleware.JWTAuth(g.JWTSecret),
		middleware.NewTokenBucket(g.RateLimit, g.Redis, g.Log),
	}
}

// RegisterRoutes registers the unauthenticated routes.
func RegisterRoutes(e *echo.Echo, db *sql.DB) {
	e.GET("/healthz", handler.Health(db))
}
