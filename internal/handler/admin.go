package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// Sweeper runs one expiry sweep under the sweep lock. ran is false when
// another sweep holds the lock.
type Sweeper interface {
	Sweep(ctx context.Context) (n int, ran bool, err error)
}

// AdminHandler exposes maintenance operations to STAFF and ADMIN.
type AdminHandler struct {
	Sweeper Sweeper
	Log     logrus.FieldLogger
}

// Sweep handles POST /v1/admin/sweep. It answers 409 while another sweep
// is running.
func (h *AdminHandler) Sweep(c echo.Context) error {
	n, ran, err := h.Sweeper.Sweep(c.Request().Context())
	if err != nil {
		return writeError(c, h.Log, err)
	}
	if !ran {
		return c.JSON(http.StatusConflict, echo.Map{"error": "a sweep is already running"})
	}
	return c.JSON(http.StatusOK, echo.Map{"expired": n})
}

// Health answers GET /healthz with "ok" while the database answers pings
// and 503 otherwise. A nil db only checks that the process is up.
func Health(db *sql.DB) echo.HandlerFunc {
	return func(c echo.Context) error {
		if db != nil {
			ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				return c.String(http.StatusServiceUnavailable, "database unavailable")
			}
		}
		return c.String(http.StatusOK, "ok")
	}
}
