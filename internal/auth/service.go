package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/procureflow/procureflow/internal/shared"
)

// ErrCodeInvalid rejects a wrong or expired two-factor code.
var ErrCodeInvalid = errors.New("auth: invalid or expired code")

// Notifier delivers a two-factor code to the user. Selected at startup;
// deployments without a delivery channel use the log notifier.
type Notifier interface {
	SendCode(ctx context.Context, user User, code string) error
}

// Service wraps authentication business rules.
type Service struct {
	repo     Repository
	redis    *redis.Client
	notifier Notifier
	codeTTL  time.Duration
}

// NewService constructs a new Service.
func NewService(repo Repository, rdb *redis.Client, notifier Notifier) *Service {
	return &Service{repo: repo, redis: rdb, notifier: notifier, codeTTL: 5 * time.Minute}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// StartTwoFactor generates a 6-digit code, stores it with a TTL and sends
// it through the notifier.
func (s *Service) StartTwoFactor(ctx context.Context, user *User) error {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return err
	}
	code := fmt.Sprintf("%06d", n.Int64())
	if err := s.redis.Set(ctx, codeKey(user.ID), code, s.codeTTL).Err(); err != nil {
		return err
	}
	return s.notifier.SendCode(ctx, *user, code)
}

// VerifyTwoFactor checks the submitted code and consumes it on success.
func (s *Service) VerifyTwoFactor(ctx context.Context, userID uuid.UUID, code string) error {
	stored, err := s.redis.Get(ctx, codeKey(userID)).Result()
	if err != nil {
		return ErrCodeInvalid
	}
	if stored != code {
		return ErrCodeInvalid
	}
	return s.redis.Del(ctx, codeKey(userID)).Err()
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id string, userID uuid.UUID, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, userID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}

// GetUser loads one user by id.
func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.FindByID(ctx, id)
}

func codeKey(userID uuid.UUID) string {
	return "2fa:" + userID.String()
}
