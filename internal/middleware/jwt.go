package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/herdbook/internal/model"
	"github.com/iliyamo/herdbook/internal/repository"
	"github.com/iliyamo/herdbook/internal/utils"
)

// UserLookup resolves the subject of a verified token.
type UserLookup interface {
	GetByID(ctx context.Context, id uint64) (*model.User, error)
}

// JWTAuth returns an Echo middleware that validates a Bearer access token,
// loads the user it names and stores {id, email} in the request context.
//
//	no bearer header            401 Access token required
//	bad signature, expired, ... 403 Invalid or expired token
//	subject no longer exists    403 User not found
//	store failure               500 Database error
func JWTAuth(secret string, users UserLookup, logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearer(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Access token required"})
			}

			claims, err := utils.ParseToken(secret, raw, utils.PurposeAccess)
			if err != nil {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "Invalid or expired token"})
			}
			uid, err := claims.UserID()
			if err != nil {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "Invalid or expired token"})
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
			defer cancel()
			u, err := users.GetByID(ctx, uid)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return c.JSON(http.StatusForbidden, echo.Map{"error": "User not found"})
				}
				logger.Error("resolve token subject", "user_id", uid, "err", err)
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Database error"})
			}

			SetIdentity(c, model.Identity{ID: u.ID, Email: u.Email})
			return next(c)
		}
	}
}

// bearer extracts the token from "Bearer <token>".  The scheme is matched
// case-insensitively.
func bearer(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
