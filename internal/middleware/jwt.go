package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/emigresto/meal-reservation/internal/model"
)

// Context keys set by JWTAuth.
const (
	ctxPrincipal = "principal"
	ctxUserID    = "user_id"
)

// JWTAuth validates an HS256 Bearer token and stores the caller as a
// model.Principal in the echo context. The token must carry "sub" (the
// user id, string or number) and "role"; "beneficiary_id" is optional.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, echo.ErrUnauthorized
				}
				return []byte(secret), nil
			})
			if err != nil || !tok.Valid {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			claims, ok := tok.Claims.(jwt.MapClaims)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid claims"})
			}
			p, err := principalFromClaims(claims)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": err.Error()})
			}

			c.Set(ctxPrincipal, p)
			c.Set(ctxUserID, strconv.FormatUint(p.UserID, 10))
			return next(c)
		}
	}
}

func principalFromClaims(claims jwt.MapClaims) (model.Principal, error) {
	uid, err := claimID(claims["sub"])
	if err != nil || uid == 0 {
		return model.Principal{}, errors.New("invalid subject")
	}
	role, _ := claims["role"].(string)
	switch r := model.Role(strings.ToUpper(role)); r {
	case model.RoleStudent, model.RoleStaff, model.RoleAdmin:
		p := model.Principal{UserID: uid, Role: r}
		if v, present := claims["beneficiary_id"]; present && v != nil {
			bid, err := claimID(v)
			if err != nil {
				return model.Principal{}, errors.New("invalid beneficiary_id")
			}
			p.BeneficiaryID = &bid
		}
		return p, nil
	default:
		return model.Principal{}, errors.New("invalid role")
	}
}

// claimID accepts ids encoded as JSON numbers or decimal strings.
func claimID(v any) (uint64, error) {
	switch t := v.(type) {
	case float64:
		if t < 0 || t != float64(uint64(t)) {
			return 0, fmt.Errorf("bad id %v", t)
		}
		return uint64(t), nil
	case string:
		return strconv.ParseUint(t, 10, 64)
	default:
		return 0, fmt.Errorf("bad id %v", v)
	}
}
