package router

import (
	"github.com/labstack/echo/v4"

	"github.com/emigresto/meal-reservation/internal/handler"
)

// RegisterReservations mounts the booking endpoints under /v1. Any role
// may call them; scoping to the caller's own reservations happens in the
// service.
func RegisterReservations(e *echo.Echo, h *handler.ReservationHandler, g Guard) {
	grp := e.Group("/v1/reservations", g.chain()...)
	grp.POST("", h.Create)
	grp.GET("", h.List)
	grp.POST("/cancel-batch", h.CancelBatch)
	grp.GET("/:id", h.Get)
	grp.DELETE("/:id", h.Cancel)
}
