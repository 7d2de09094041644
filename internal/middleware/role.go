package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/emigresto/meal-reservation/internal/model"
)

// RequireRole rejects callers whose role is not one of roles with 403.
// It must run after JWTAuth.
func RequireRole(roles ...model.Role) echo.MiddlewareFunc {
	allowed := make(map[model.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := PrincipalFrom(c)
			if !ok || !allowed[p.Role] {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			return next(c)
		}
	}
}
