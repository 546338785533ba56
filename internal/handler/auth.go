package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/herdbook/internal/service"
)

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	base
	svc *service.AuthService
}

// NewAuthHandler builds an AuthHandler with the per-request timeout.
func NewAuthHandler(svc *service.AuthService, timeout time.Duration, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{base: newBase(timeout, logger), svc: svc}
}

// ----- DTOs -----

type registerReq struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type userPart struct {
	ID    uint64 `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}
type authResp struct {
	User    userPart  `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

func sessionResp(s *service.Session) authResp {
	return authResp{
		User:    userPart{ID: s.User.ID, Email: s.User.Email, Name: s.User.Name},
		Access:  tokenPart{Token: s.Access.Token, Expires: s.Access.Exp},
		Refresh: tokenPart{Token: s.Refresh.Raw, Expires: s.Refresh.Exp}, // raw back to client
	}
}

// Register: create user, queue the verification email and return tokens.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "Invalid body")
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	s, err := h.svc.Register(ctx, req.Name, req.Email, req.Password)
	if err != nil {
		return h.failErr(c, err, "User not found")
	}
	return c.JSON(http.StatusCreated, sessionResp(s))
}

// Login: verify and return a new pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "Invalid body")
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return fail(c, http.StatusBadRequest, "Email and password are required")
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	s, err := h.svc.Login(ctx, req.Email, req.Password)
	if err != nil {
		return h.failErr(c, err, "User not found")
	}
	return c.JSON(http.StatusOK, sessionResp(s))
}

// Refresh: validate by hash, revoke old, issue new.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return fail(c, http.StatusBadRequest, "refresh_token required")
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	s, err := h.svc.Refresh(ctx, strings.TrimSpace(req.RefreshToken))
	if err != nil {
		if errors.Is(err, service.ErrInvalidToken) {
			return fail(c, http.StatusUnauthorized, "Invalid refresh token")
		}
		return h.failErr(c, err, "User not found")
	}
	return c.JSON(http.StatusOK, sessionResp(s))
}

// Logout: revoke the presented refresh token.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return fail(c, http.StatusBadRequest, "refresh_token required")
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	if err := h.svc.Logout(ctx, strings.TrimSpace(req.RefreshToken)); err != nil {
		return h.failErr(c, err, "User not found")
	}
	return c.NoContent(http.StatusNoContent)
}

// VerifyEmail: GET /auth/verify/:token from the emailed link.
func (h *AuthHandler) VerifyEmail(c echo.Context) error {
	ctx, cancel := h.ctx(c)
	defer cancel()

	if err := h.svc.VerifyEmail(ctx, c.Param("token")); err != nil {
		if errors.Is(err, service.ErrInvalidToken) {
			return fail(c, http.StatusBadRequest, "Invalid or expired verification link")
		}
		return h.failErr(c, err, "User not found")
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Email verified successfully"})
}
