package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/herdbook/internal/middleware"
	"github.com/iliyamo/herdbook/internal/model"
	"github.com/iliyamo/herdbook/internal/repository"
	"github.com/iliyamo/herdbook/internal/service"
)

// base carries what every handler needs.
type base struct {
	timeout time.Duration
	log     *slog.Logger
}

func newBase(timeout time.Duration, logger *slog.Logger) base {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return base{timeout: timeout, log: logger}
}

func (b base) ctx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), b.timeout)
}

func fail(c echo.Context, status int, msg string) error {
	return c.JSON(status, echo.Map{"error": msg})
}

// failErr maps a service or repository error to a response.  notFound is
// the message used for repository.ErrNotFound; unexpected errors are logged
// and answered with a generic 500 so no internals leak.
func (b base) failErr(c echo.Context, err error, notFound string) error {
	var fe *service.FieldError
	switch {
	case errors.As(err, &fe):
		return fail(c, http.StatusBadRequest, fe.Msg)
	case errors.Is(err, repository.ErrNotFound):
		return fail(c, http.StatusNotFound, notFound)
	case errors.Is(err, repository.ErrDuplicateNumber):
		return fail(c, http.StatusBadRequest, "Animal number already exists")
	case errors.Is(err, repository.ErrEmailExists):
		return fail(c, http.StatusBadRequest, "User already exists")
	case errors.Is(err, service.ErrInvalidCredentials):
		return fail(c, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, context.DeadlineExceeded):
		b.log.Error("request timed out", "path", c.Path(), "err", err)
		return fail(c, http.StatusServiceUnavailable, "Request timed out")
	default:
		b.log.Error("request failed", "path", c.Path(), "err", err)
		return fail(c, http.StatusInternalServerError, "Internal server error")
	}
}

// caller returns the identity attached by JWTAuth.  Routes using it are
// always behind that middleware.
func caller(c echo.Context) model.Identity {
	id, _ := middleware.IdentityFrom(c)
	return id
}
