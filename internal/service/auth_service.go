package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"retail-ledger/internal/core/domain"
	"retail-ledger/internal/core/ports"
	"retail-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

const minPasswordLength = 8

// LockoutPolicy configures the account lockout guard.
type LockoutPolicy struct {
	MaxAttempts int
	Duration    time.Duration
}

// DefaultLockoutPolicy locks a user for 15 minutes after 5 bad passwords.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{MaxAttempts: domain.DefaultMaxFailedLogins, Duration: domain.DefaultLockoutDuration}
}

// AuthServiceImpl implements ports.AuthService.
type AuthServiceImpl struct {
	users    ports.UserRepository
	runner   ports.TxRunner
	hashSvc  ports.HashService
	tokenSvc ports.TokenService
	audit    ports.AuditService
	lockout  LockoutPolicy
	clock    func() time.Time
	log      zerolog.Logger
}

// NewAuthService creates a new AuthServiceImpl. A zero policy falls back to
// DefaultLockoutPolicy.
func NewAuthService(
	users ports.UserRepository,
	runner ports.TxRunner,
	hashSvc ports.HashService,
	tokenSvc ports.TokenService,
	audit ports.AuditService,
	lockout LockoutPolicy,
	log zerolog.Logger,
) *AuthServiceImpl {
	def := DefaultLockoutPolicy()
	if lockout.MaxAttempts < 1 {
		lockout.MaxAttempts = def.MaxAttempts
	}
	if lockout.Duration <= 0 {
		lockout.Duration = def.Duration
	}
	return &AuthServiceImpl{
		users:    users,
		runner:   runner,
		hashSvc:  hashSvc,
		tokenSvc: tokenSvc,
		audit:    audit,
		lockout:  lockout,
		clock:    func() time.Time { return time.Now().UTC() },
		log:      log,
	}
}

// Register creates a customer.
func (s *AuthServiceImpl) Register(ctx context.Context, req ports.RegisterRequest) (*domain.User, error) {
	email := normalizeEmail(req.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperror.Validation("Email is not valid")
	}
	name := strings.TrimSpace(req.FullName)
	if name == "" {
		return nil, apperror.Validation("Full name is required")
	}
	if len(req.Password) < minPasswordLength {
		return nil, apperror.Validation(fmt.Sprintf("Password must be at least %d characters", minPasswordLength))
	}
	if req.Password != req.ConfirmPassword {
		return nil, apperror.Validation("Passwords do not match")
	}

	passwordHash, err := s.hashSvc.Hash(req.Password)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("hash password: %w", err))
	}

	now := s.clock()
	user := &domain.User{
		ID:           uuid.New(),
		Email:        email,
		FullName:     name,
		PasswordHash: passwordHash,
		Role:         domain.RoleCustomer,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrDuplicateEmail) {
			return nil, apperror.ErrEmailExists()
		}
		return nil, apperror.InternalError(fmt.Errorf("create user: %w", err))
	}

	s.audit.Log(ctx, &domain.AuditLog{
		ID:           uuid.New(),
		ActorID:      &user.ID,
		Action:       domain.AuditActionRegister,
		ResourceType: "user",
		ResourceID:   user.ID.String(),
		CreatedAt:    now,
	})
	s.log.Info().Str("user_id", user.ID.String()).Msg("user registered")
	return user, nil
}

// Login authenticates a user and issues a token. The lockout check runs
// before the password check; a failed attempt is committed before the
// error is returned so the counter survives.
func (s *AuthServiceImpl) Login(ctx context.Context, email, password string) (*ports.LoginResult, error) {
	email = normalizeEmail(email)

	var (
		user    *domain.User
		outcome error
	)
	err := s.runner.RunInTx(ctx, func(tx pgx.Tx) error {
		user, outcome = nil, nil

		u, err := s.users.GetByEmailForUpdate(ctx, tx, email)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("find user: %w", err))
		}
		if u == nil {
			outcome = apperror.ErrInvalidCredentials()
			return nil
		}

		now := s.clock()
		if u.IsLockedOut(now) {
			outcome = apperror.ErrAccountLocked(*u.LockoutEnd)
			return nil
		}

		valid, err := s.hashSvc.Verify(password, u.PasswordHash)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("verify password: %w", err))
		}

		if !valid {
			u.RecordFailedLogin(s.lockout.MaxAttempts, s.lockout.Duration, now)
			if err := s.users.UpdateLoginState(ctx, tx, u); err != nil {
				return apperror.InternalError(fmt.Errorf("record failed login: %w", err))
			}
			if u.IsLockedOut(now) {
				s.log.Warn().
					Str("user_id", u.ID.String()).
					Time("locked_until", *u.LockoutEnd).
					Msg("user locked out after repeated failed sign-ins")
				outcome = apperror.ErrAccountLocked(*u.LockoutEnd)
				return nil
			}
			s.log.Warn().
				Str("user_id", u.ID.String()).
				Int("failed_attempts", u.FailedLoginAttempts).
				Msg("failed sign-in")
			outcome = apperror.ErrInvalidCredentials()
			return nil
		}

		u.RecordSuccessfulLogin(now)
		if err := s.users.UpdateLoginState(ctx, tx, u); err != nil {
			return apperror.InternalError(fmt.Errorf("record login: %w", err))
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	if outcome != nil {
		return nil, outcome
	}

	token, expiresAt, err := s.tokenSvc.Generate(user.ID, user.Role)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("generate token: %w", err))
	}

	s.audit.Log(ctx, &domain.AuditLog{
		ID:           uuid.New(),
		ActorID:      &user.ID,
		Action:       domain.AuditActionLogin,
		ResourceType: "user",
		ResourceID:   user.ID.String(),
		CreatedAt:    s.clock(),
	})
	return &ports.LoginResult{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// UnlockUser clears a lockout. Staff only.
func (s *AuthServiceImpl) UnlockUser(ctx context.Context, caller domain.Caller, userID uuid.UUID) error {
	if !caller.IsStaff() {
		return apperror.ErrForbidden()
	}

	err := s.runner.RunInTx(ctx, func(tx pgx.Tx) error {
		u, err := s.users.GetByIDForUpdate(ctx, tx, userID)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("find user: %w", err))
		}
		if u == nil {
			return apperror.ErrNotFound("user")
		}
		u.Unlock(s.clock())
		if err := s.users.UpdateLoginState(ctx, tx, u); err != nil {
			return apperror.InternalError(fmt.Errorf("unlock user: %w", err))
		}
		return nil
	})
	if err != nil {
		return err
	}

	actor := caller.UserID
	s.audit.Log(ctx, &domain.AuditLog{
		ID:           uuid.New(),
		ActorID:      &actor,
		Action:       domain.AuditActionUnlockUser,
		ResourceType: "user",
		ResourceID:   userID.String(),
		CreatedAt:    s.clock(),
	})
	s.log.Info().
		Bool("audit", true).
		Str("actor_id", actor.String()).
		Str("user_id", userID.String()).
		Msg("user unlocked")
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
