package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/herdbook/internal/service"
)

// UserHandler serves the caller's own account.  Routes run behind JWTAuth.
type UserHandler struct {
	base
	profiles *service.ProfileService
}

// NewUserHandler builds a UserHandler with the per-request timeout.
func NewUserHandler(p *service.ProfileService, timeout time.Duration, logger *slog.Logger) *UserHandler {
	return &UserHandler{base: newBase(timeout, logger), profiles: p}
}

type profileResp struct {
	ID            uint64    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
}

// Profile: GET /users/profile
func (h *UserHandler) Profile(c echo.Context) error {
	ctx, cancel := h.ctx(c)
	defer cancel()

	u, err := h.profiles.Get(ctx, caller(c).ID)
	if err != nil {
		return h.failErr(c, err, "User not found")
	}
	return c.JSON(http.StatusOK, profileResp{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		EmailVerified: u.EmailVerified,
		CreatedAt:     u.CreatedAt,
	})
}
