package router // package router defines how HTTP routes are registered for the API

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/herdbook/internal/database"
	"github.com/iliyamo/herdbook/internal/handler"
	"github.com/iliyamo/herdbook/internal/middleware"
	"github.com/iliyamo/herdbook/internal/storage"
)

// Deps is everything New needs to assemble the API.
type Deps struct {
	Logger    *slog.Logger
	DB        database.Pinger // nil with the in-memory store
	Auth      *handler.AuthHandler
	Animals   *handler.AnimalHandler
	Users     *handler.UserHandler
	JWTAuth   echo.MiddlewareFunc
	RateLimit echo.MiddlewareFunc // applied to the credential endpoints
	UploadDir string
	UploadMax int64
}

// New builds the echo instance with global middleware and every route.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(d.Logger)

	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.RequestLogger(d.Logger))
	e.Use(echomw.Recover())
	e.Use(middleware.Metrics())

	RegisterRoutes(e, d.DB)
	RegisterAuth(e, d.Auth, d.RateLimit)
	RegisterAnimals(e, d.Animals, d.JWTAuth, d.UploadMax)
	RegisterUsers(e, d.Users, d.JWTAuth)
	RegisterUploads(e, d.UploadDir)
	return e
}

// RegisterRoutes registers the operational endpoints that do not require
// authentication.
func RegisterRoutes(e *echo.Echo, db database.Pinger) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(db))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterAuth registers the account endpoints.  Register, login and
// refresh go through the rate limiter; the limiter may be nil.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, limiter echo.MiddlewareFunc) {
	g := e.Group("/auth")
	var limited []echo.MiddlewareFunc
	if limiter != nil {
		limited = append(limited, limiter)
	}
	g.POST("/register", a.Register, limited...)
	g.POST("/login", a.Login, limited...)
	g.POST("/refresh", a.Refresh, limited...)
	g.POST("/logout", a.Logout)
	g.GET("/verify/:token", a.VerifyEmail)
}

// RegisterAnimals registers the owner-scoped record routes.  Bodies are
// capped slightly above the image limit so an oversized image reaches the
// upload check and gets its own message.
func RegisterAnimals(e *echo.Echo, h *handler.AnimalHandler, auth echo.MiddlewareFunc, uploadMax int64) {
	g := e.Group("/animals", auth)
	limit := echomw.BodyLimit(fmt.Sprintf("%dB", uploadMax+1<<20))
	g.GET("", h.List)
	g.GET("/stats", h.Stats)
	g.GET("/:id", h.Get)
	g.POST("", h.Create, limit)
	g.PUT("/:id", h.Update, limit)
	g.DELETE("/:id", h.Delete)
}

// RegisterUsers registers the authenticated account routes.
func RegisterUsers(e *echo.Echo, h *handler.UserHandler, auth echo.MiddlewareFunc) {
	g := e.Group("/users", auth)
	g.GET("/profile", h.Profile)
}

// RegisterUploads serves stored photos read-only.
func RegisterUploads(e *echo.Echo, dir string) {
	e.Static(storage.URLPrefix, dir)
}

// errorHandler renders errors raised by echo itself (unknown route, wrong
// method, body limit, recovered panic) with the same {"error": msg} body as
// the handlers.  A body over the limit on the record routes can only be an
// oversized photo and is reported as such.
func errorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, msg := http.StatusInternalServerError, "Internal server error"
		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			msg = http.StatusText(he.Code)
			if m, ok := he.Message.(string); ok && m != "" {
				msg = m
			}
		} else {
			logger.Error("unhandled error", "path", c.Path(), "err", err)
		}
		if status == http.StatusRequestEntityTooLarge && strings.HasPrefix(c.Request().URL.Path, "/animals") {
			status, msg = http.StatusBadRequest, "Image exceeds size limit"
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, echo.Map{"error": msg})
		}
		if err != nil {
			logger.Warn("write error response", "err", err)
		}
	}
}
