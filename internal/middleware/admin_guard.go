package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// AdminGuard ensures only operators listed in ADMIN_PHONES reach admin routes
func AdminGuard(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		admin, ok := c.Get("is_admin").(bool)
		if !ok || !admin {
			return c.JSON(http.StatusForbidden, echo.Map{
				"success": false,
				"error":   "admin access only",
			})
		}
		return next(c)
	}
}
