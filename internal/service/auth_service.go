package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/healthcure/clinic/internal/audit"
	"github.com/healthcure/clinic/internal/crypto"
	"github.com/healthcure/clinic/internal/domain"
	"github.com/healthcure/clinic/internal/platform/auth"
	"github.com/healthcure/clinic/internal/platform/mailer"
	"github.com/healthcure/clinic/internal/repo/postgres"
	"github.com/healthcure/clinic/pkg/logger"
)

// AuthService implements registration, the two-step login, and account
// management. Login is password first, then a mailed one-time code; a session
// token exists only after both steps pass.
type AuthService struct {
	users      postgres.UserRepository
	hasher     *crypto.PasswordHasher
	challenges *ChallengeManager
	issuer     *auth.Issuer
	mail       mailer.Service
	recorder   *audit.Recorder

	// decoyHash absorbs a verification for usernames that do not exist, so
	// the unknown-user and wrong-password branches cost the same.
	decoyHash string
}

func NewAuthService(
	users postgres.UserRepository,
	hasher *crypto.PasswordHasher,
	challenges *ChallengeManager,
	issuer *auth.Issuer,
	mail mailer.Service,
	recorder *audit.Recorder,
) *AuthService {
	decoyHash, err := hasher.Hash(context.Background(), "decoy-password-never-matched")
	if err != nil {
		logger.Error("create decoy hash", "error", err)
	}
	return &AuthService{
		users:      users,
		hasher:     hasher,
		challenges: challenges,
		issuer:     issuer,
		mail:       mail,
		recorder:   recorder,
		decoyHash:  decoyHash,
	}
}

func (s *AuthService) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.User, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	role, err := domain.ParseRole(req.Role)
	if err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(ctx, req.Password)
	if err != nil {
		return nil, err
	}

	user, err := s.users.Create(ctx, req, role, hash)
	if err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, domain.AuditRegister, &user.ID, map[string]any{
		"username": user.Username,
		"role":     user.Role,
	})

	return user, nil
}

// Login runs the first factor. On success a one-time code is issued and
// mailed; no token is returned here. Unknown usernames and wrong passwords
// are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, req *domain.LoginRequest) error {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return domain.ErrInvalidCredentials
	}

	user, err := s.users.FindByUsername(ctx, req.Username)
	if err != nil {
		return err
	}
	if user == nil {
		// Burn the same argon2id work a real account would cost.
		_, _ = s.hasher.Verify(ctx, req.Password, s.decoyHash)
		s.recorder.Record(ctx, domain.AuditLoginFailed, nil, map[string]any{
			"username": req.Username,
			"reason":   "unknown user",
		})
		return domain.ErrInvalidCredentials
	}

	match, err := s.hasher.Verify(ctx, req.Password, user.PasswordHash)
	if err != nil {
		// Unusable stored hash. Not a caller mistake; surface internally.
		return err
	}
	if !match {
		s.recorder.Record(ctx, domain.AuditLoginFailed, &user.ID, map[string]any{
			"username": user.Username,
			"reason":   "password mismatch",
		})
		return domain.ErrInvalidCredentials
	}

	code, err := s.challenges.Issue(ctx, user.ID)
	if err != nil {
		return err
	}

	if err := s.mail.SendLoginCode(user.Email, user.Username, code, s.challenges.ttl); err != nil {
		// An undelivered code must not stay verifiable.
		if invErr := s.challenges.Invalidate(ctx, user.ID); invErr != nil {
			logger.ErrorContext(ctx, "invalidate challenge after delivery failure",
				"user_id", user.ID, "error", invErr)
		}
		return fmt.Errorf("%w: %v", domain.ErrCodeDelivery, err)
	}

	return nil
}

// VerifyCode runs the second factor and, on success, mints the session token.
func (s *AuthService) VerifyCode(ctx context.Context, req *domain.VerifyCodeRequest) (*domain.User, string, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, "", domain.ErrNoChallenge
	}

	user, err := s.users.FindByUsername(ctx, req.Username)
	if err != nil {
		return nil, "", err
	}
	if user == nil {
		return nil, "", domain.ErrNoChallenge
	}

	if err := s.challenges.Verify(ctx, user.ID, req.Code); err != nil {
		if errors.Is(err, domain.ErrNoChallenge) ||
			errors.Is(err, domain.ErrInvalidCode) ||
			errors.Is(err, domain.ErrChallengeExpired) {
			s.recorder.Record(ctx, domain.AuditMFAFailed, &user.ID, map[string]any{
				"username": user.Username,
				"reason":   err.Error(),
			})
		}
		return nil, "", err
	}

	token, err := s.issuer.Issue(user.ID, user.Username, user.Role)
	if err != nil {
		return nil, "", fmt.Errorf("issue token: %w", err)
	}

	s.recorder.Record(ctx, domain.AuditLoginSuccess, &user.ID, map[string]any{
		"username": user.Username,
		"role":     user.Role,
	})

	return user, token, nil
}

func (s *AuthService) ChangePassword(ctx context.Context, userID int64, req *domain.ChangePasswordRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return domain.ErrNotFound
	}

	match, err := s.hasher.Verify(ctx, req.CurrentPassword, user.PasswordHash)
	if err != nil {
		return err
	}
	if !match {
		return domain.ErrInvalidCredentials
	}

	newHash, err := s.hasher.Hash(ctx, req.NewPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, userID, newHash); err != nil {
		return err
	}

	s.recorder.Record(ctx, domain.AuditPasswordChanged, &userID, map[string]any{
		"username": user.Username,
	})
	return nil
}

func (s *AuthService) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrNotFound
	}
	return user, nil
}

func (s *AuthService) ListUsers(ctx context.Context, limit, offset int) ([]domain.User, error) {
	return s.users.List(ctx, limit, offset)
}

// CreateUser is the admin-side registration path; unlike self-service
// registration it may create any role, including another admin.
func (s *AuthService) CreateUser(ctx context.Context, actorID int64, req *domain.RegisterRequest) (*domain.User, error) {
	user, err := s.Register(ctx, req)
	if err != nil {
		return nil, err
	}
	s.recorder.Record(ctx, domain.AuditUserCreated, &actorID, map[string]any{
		"created_id":   user.ID,
		"created_role": user.Role,
	})
	return user, nil
}

func (s *AuthService) DeleteUser(ctx context.Context, actorID, targetID int64) error {
	if err := s.users.Delete(ctx, targetID); err != nil {
		return err
	}
	s.recorder.Record(ctx, domain.AuditUserDeleted, &actorID, map[string]any{
		"deleted_id": targetID,
	})
	return nil
}
