package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/healthcure/clinic/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

// staleReadChallenges serves one stale snapshot from Get while the backing
// store already holds a newer challenge, the interleaving of a verify racing
// a re-login.
type staleReadChallenges struct {
	*memChallenges
	stale *domain.OTPChallenge
}

func (s *staleReadChallenges) Get(ctx context.Context, userID int64) (*domain.OTPChallenge, error) {
	if s.stale != nil {
		ch := s.stale
		s.stale = nil
		return ch, nil
	}
	return s.memChallenges.Get(ctx, userID)
}

func mustHash(t *testing.T, code string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	return string(h)
}

func TestVerifyExpiredStaleDoesNotKillFreshChallenge(t *testing.T) {
	ctx := context.Background()
	backing := newMemChallenges()
	repo := &staleReadChallenges{memChallenges: backing}
	manager := NewChallengeManager(repo, 10*time.Minute, 6, 5)

	fresh := &domain.OTPChallenge{
		UserID:    1,
		CodeHash:  mustHash(t, "654321"),
		ExpiresAt: time.Now().UTC().Add(10 * time.Minute),
	}
	if err := backing.Upsert(ctx, fresh); err != nil {
		t.Fatal(err)
	}
	repo.stale = &domain.OTPChallenge{
		UserID:    1,
		CodeHash:  mustHash(t, "111111"),
		ExpiresAt: time.Now().UTC().Add(-time.Minute),
	}

	if err := manager.Verify(ctx, 1, "111111"); !errors.Is(err, domain.ErrChallengeExpired) {
		t.Fatalf("expected ErrChallengeExpired, got %v", err)
	}
	if _, ok := backing.rows[1]; !ok {
		t.Fatal("expiry cleanup of a stale challenge removed the fresh one")
	}

	// The fresh challenge is still fully usable.
	if err := manager.Verify(ctx, 1, "654321"); err != nil {
		t.Fatalf("fresh challenge should verify: %v", err)
	}
}

func TestVerifyAttemptCapStaleDoesNotKillFreshChallenge(t *testing.T) {
	ctx := context.Background()
	backing := newMemChallenges()
	repo := &staleReadChallenges{memChallenges: backing}
	manager := NewChallengeManager(repo, 10*time.Minute, 6, 5)

	fresh := &domain.OTPChallenge{
		UserID:    1,
		CodeHash:  mustHash(t, "654321"),
		ExpiresAt: time.Now().UTC().Add(10 * time.Minute),
	}
	if err := backing.Upsert(ctx, fresh); err != nil {
		t.Fatal(err)
	}
	backing.rows[1].Attempts = 4

	repo.stale = &domain.OTPChallenge{
		UserID:    1,
		CodeHash:  mustHash(t, "111111"),
		ExpiresAt: time.Now().UTC().Add(10 * time.Minute),
		Attempts:  4,
	}

	// Wrong code against the stale snapshot crosses the cap, but the retire
	// delete is keyed on the stale hash and must miss the fresh row.
	if err := manager.Verify(ctx, 1, "000000"); !errors.Is(err, domain.ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}
	if _, ok := backing.rows[1]; !ok {
		t.Fatal("attempt-cap retirement of a stale challenge removed the fresh one")
	}
}
