package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/sudo-init-do/servicehub/internal/apperr"
	"github.com/sudo-init-do/servicehub/internal/user"
)

type Handler struct {
	users  *user.Store
	issuer *Issuer
	log    zerolog.Logger
}

func NewHandler(users *user.Store, issuer *Issuer, log zerolog.Logger) *Handler {
	return &Handler{users: users, issuer: issuer, log: log}
}

// ===== Register =====
func (h *Handler) Register(c echo.Context) error {
	var req user.Profile
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	u, err := h.users.Register(req)
	if err != nil {
		return apperr.JSON(c, err)
	}

	token, err := h.issuer.Issue(u)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", u.ID).Msg("token generation failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token generation failed"})
	}

	h.log.Info().Str("user_id", u.ID).Str("role", string(u.Role)).Msg("user registered")
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "user": u, "token": token})
}
