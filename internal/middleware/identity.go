package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/emigresto/meal-reservation/internal/model"
)

// PrincipalFrom returns the caller stored by JWTAuth.
func PrincipalFrom(c echo.Context) (model.Principal, bool) {
	p, ok := c.Get(ctxPrincipal).(model.Principal)
	return p, ok
}

// currentUserID is the rate-limit identity of the caller, "anon" before
// authentication.
func currentUserID(c echo.Context) string {
	if s, ok := c.Get(ctxUserID).(string); ok && s != "" {
		return s
	}
	return "anon"
}
