package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/iliyamo/herdbook/internal/model"
	"github.com/iliyamo/herdbook/internal/queue"
	"github.com/iliyamo/herdbook/internal/repository"
	"github.com/iliyamo/herdbook/internal/utils"
)

// UserStore is the account persistence the auth flows need.
type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id uint64) (*model.User, error)
	MarkEmailVerified(ctx context.Context, id uint64) error
}

// TokenStore keeps refresh token hashes.  RevokeByHash returns
// repository.ErrNotFound when no live token had that hash.
type TokenStore interface {
	StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string, now time.Time) (uint64, error)
	RevokeByHash(ctx context.Context, tokenHash string) error
}

// AuthConfig holds the signing secret and token lifetimes.
type AuthConfig struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	VerifyTTL  time.Duration
	BcryptCost int
}

// Session is what a successful register, login or refresh returns.
type Session struct {
	User    model.User
	Access  utils.SignedToken
	Refresh utils.RefreshToken
}

// AuthService implements registration, login, token rotation and email
// verification.
type AuthService struct {
	users    UserStore
	tokens   TokenStore
	notifier VerificationNotifier
	cfg      AuthConfig
	now      func() time.Time
	log      *slog.Logger
}

// NewAuthService wires the stores and the verification notifier, which may
// be nil.
func NewAuthService(users UserStore, tokens TokenStore, notifier VerificationNotifier, cfg AuthConfig, logger *slog.Logger) *AuthService {
	return &AuthService{
		users:    users,
		tokens:   tokens,
		notifier: notifier,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
		log:      logger.With("component", "auth"),
	}
}

// Register creates the account, queues the verification email and signs the
// caller in.  A duplicate address yields repository.ErrEmailExists.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (*Session, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || email == "" || password == "" {
		return nil, invalid("Name, email and password are required")
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, invalid("Invalid email")
	}
	if len(password) < utils.MinPasswordLen {
		return nil, invalid(fmt.Sprintf("Password must be at least %d characters", utils.MinPasswordLen))
	}
	hash, err := utils.HashPassword(password, s.cfg.BcryptCost)
	if err != nil {
		return nil, invalid("Password is too long")
	}

	u := &model.User{Name: name, Email: email, PasswordHash: hash}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}

	verify, err := utils.NewVerifyToken(s.cfg.Secret, u.ID, u.Email, s.cfg.VerifyTTL)
	if err != nil {
		s.log.Error("sign verification token", "user_id", u.ID, "err", err)
	} else if s.notifier != nil {
		s.notifier.NotifyVerification(ctx, queue.VerificationEmailEvent{
			Email:       u.Email,
			Name:        u.Name,
			Token:       verify.Token,
			RequestedAt: s.now().Format(time.RFC3339),
		})
	}
	return s.issue(ctx, u)
}

// Login checks the password.  Unknown address and wrong password are
// indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return s.issue(ctx, u)
}

// Refresh rotates a refresh token: the presented one is revoked and a new
// pair is issued.  Concurrent refreshes with one token yield one new pair.
func (s *AuthService) Refresh(ctx context.Context, raw string) (*Session, error) {
	if raw == "" {
		return nil, ErrInvalidToken
	}
	hash := utils.HashRefreshRaw(raw)
	uid, err := s.tokens.ValidateRefresh(ctx, hash, s.now())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	u, err := s.users.GetByID(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	// Only the caller whose revoke lands may mint the next pair.
	if err := s.tokens.RevokeByHash(ctx, hash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return s.issue(ctx, u)
}

// Logout revokes the given refresh token.  Unknown tokens are ignored.
func (s *AuthService) Logout(ctx context.Context, raw string) error {
	if raw == "" {
		return invalid("refresh_token is required")
	}
	err := s.tokens.RevokeByHash(ctx, utils.HashRefreshRaw(raw))
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	return err
}

// VerifyEmail consumes a verification token from the emailed link.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) error {
	claims, err := utils.ParseToken(s.cfg.Secret, token, utils.PurposeVerify)
	if err != nil {
		return ErrInvalidToken
	}
	uid, err := claims.UserID()
	if err != nil {
		return ErrInvalidToken
	}
	if err := s.users.MarkEmailVerified(ctx, uid); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidToken
		}
		return err
	}
	return nil
}

func (s *AuthService) issue(ctx context.Context, u *model.User) (*Session, error) {
	access, err := utils.NewAccessToken(s.cfg.Secret, u.ID, u.Email, s.cfg.AccessTTL)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := utils.NewRefreshToken(s.cfg.RefreshTTL)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	if err := s.tokens.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return nil, err
	}
	return &Session{User: *u, Access: access, Refresh: refresh}, nil
}

// ProfileService returns the caller's own account.
type ProfileService struct {
	users interface {
		GetByID(ctx context.Context, id uint64) (*model.User, error)
	}
}

// NewProfileService builds a ProfileService over users.
func NewProfileService(users UserStore) *ProfileService { return &ProfileService{users: users} }

// Get returns repository.ErrNotFound when the account no longer exists.
func (s *ProfileService) Get(ctx context.Context, id uint64) (*model.User, error) {
	return s.users.GetByID(ctx, id)
}
