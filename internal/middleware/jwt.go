package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/servicehub/internal/auth"
)

// JWTMiddleware authenticates the request from a bearer token, or from the
// token query parameter for websocket upgrades, and stores the claims on the
// context as user_id, phone, role and is_admin.
func JWTMiddleware(issuer *auth.Issuer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenStr := c.QueryParam("token")
			if h := c.Request().Header.Get("Authorization"); h != "" {
				const prefix = "Bearer "
				if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
					return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "error": "invalid Authorization format"})
				}
				tokenStr = h[len(prefix):]
			}
			if tokenStr == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "error": "missing Authorization header"})
			}

			claims, err := issuer.Parse(tokenStr)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "error": err.Error()})
			}

			c.Set("user_id", claims.UserID)
			c.Set("phone", claims.Phone)
			c.Set("role", string(claims.Role))
			c.Set("is_admin", claims.Admin)
			return next(c)
		}
	}
}
