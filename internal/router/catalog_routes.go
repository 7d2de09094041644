package router

import (
	"github.com/labstack/echo/v4"

	"github.com/emigresto/meal-reservation/internal/handler"
	"github.com/emigresto/meal-reservation/internal/middleware"
	"github.com/emigresto/meal-reservation/internal/model"
)

// RegisterCatalog mounts the catalog reads. Only the outlook goes through
// the response cache: it aggregates the whole week and is the same for
// every caller.
func RegisterCatalog(e *echo.Echo, h *handler.CatalogHandler, g Guard) {
	grp := e.Group("/v1", g.chain()...)
	grp.GET("/periods", h.Periods)
	grp.GET("/weekdays", h.Weekdays)
	grp.GET("/catalog/occupancy", h.Occupancy)
	grp.GET("/catalog/weekly", h.Weekly)
	grp.GET("/catalog/outlook", h.Outlook, middleware.NewRedisCache(g.Cache, g.Redis, g.Log))
}

// RegisterAdmin mounts maintenance endpoints for STAFF and ADMIN.
func RegisterAdmin(e *echo.Echo, h *handler.AdminHandler, g Guard) {
	grp := e.Group("/v1/admin", g.chain()...)
	grp.Use(middleware.RequireRole(model.RoleStaff, model.RoleAdmin))
	grp.POST("/sweep", h.Sweep)
}
