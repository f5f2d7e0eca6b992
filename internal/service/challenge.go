package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/healthcure/clinic/internal/domain"
	"github.com/healthcure/clinic/internal/repo/postgres"
	"golang.org/x/crypto/bcrypt"
)

// ChallengeManager owns the second login factor. At most one challenge is
// live per user; issuing a new one silently replaces the old, and every
// terminal verify outcome deletes the row.
type ChallengeManager struct {
	repo        postgres.ChallengeRepository
	ttl         time.Duration
	codeLength  int
	maxAttempts int
}

func NewChallengeManager(repo postgres.ChallengeRepository, ttl time.Duration, codeLength, maxAttempts int) *ChallengeManager {
	if codeLength <= 0 {
		codeLength = 6
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &ChallengeManager{
		repo:        repo,
		ttl:         ttl,
		codeLength:  codeLength,
		maxAttempts: maxAttempts,
	}
}

// generateCode draws each digit independently from crypto/rand, so leading
// zeros are as likely as any other digit.
func (m *ChallengeManager) generateCode() (string, error) {
	digits := make([]byte, m.codeLength)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}

// Issue creates a fresh challenge for the user and returns the plaintext code
// for delivery. Only the bcrypt hash is stored.
func (m *ChallengeManager) Issue(ctx context.Context, userID int64) (string, error) {
	code, err := m.generateCode()
	if err != nil {
		return "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash code: %w", err)
	}

	ch := &domain.OTPChallenge{
		UserID:    userID,
		CodeHash:  string(hash),
		ExpiresAt: time.Now().UTC().Add(m.ttl),
	}
	if err := m.repo.Upsert(ctx, ch); err != nil {
		return "", fmt.Errorf("store challenge: %w", err)
	}

	return code, nil
}

// Invalidate drops any live challenge for the user. Used when code delivery
// fails: a code that may not have reached its owner must not stay verifiable.
func (m *ChallengeManager) Invalidate(ctx context.Context, userID int64) error {
	return m.repo.DeleteAll(ctx, userID)
}

// Verify consumes the user's live challenge.
//
//   - no challenge:        domain.ErrNoChallenge (covers replay, too)
//   - past expiry:         domain.ErrChallengeExpired, challenge removed
//   - wrong code:          domain.ErrInvalidCode; the attempt counter moves,
//     and at the cap the challenge is removed
//   - right code:          nil, challenge consumed
//
// Consumption is conditioned on the stored hash, so if a new challenge was
// issued mid-verify the stale code loses and reports ErrNoChallenge.
func (m *ChallengeManager) Verify(ctx context.Context, userID int64, code string) error {
	ch, err := m.repo.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("load challenge: %w", err)
	}
	if ch == nil {
		return domain.ErrNoChallenge
	}

	// Terminal deletes are conditioned on the hash read above, so a verify
	// racing a re-login never tears down the freshly issued challenge.
	if ch.Expired(time.Now().UTC()) {
		if _, err := m.repo.Delete(ctx, userID, ch.CodeHash); err != nil {
			return fmt.Errorf("expire challenge: %w", err)
		}
		return domain.ErrChallengeExpired
	}

	if bcrypt.CompareHashAndPassword([]byte(ch.CodeHash), []byte(code)) != nil {
		attempts, err := m.repo.IncrementAttempts(ctx, userID)
		if err != nil {
			return fmt.Errorf("count attempt: %w", err)
		}
		if attempts >= m.maxAttempts {
			if _, err := m.repo.Delete(ctx, userID, ch.CodeHash); err != nil {
				return fmt.Errorf("retire challenge: %w", err)
			}
		}
		return domain.ErrInvalidCode
	}

	consumed, err := m.repo.Delete(ctx, userID, ch.CodeHash)
	if err != nil {
		return fmt.Errorf("consume challenge: %w", err)
	}
	if !consumed {
		return domain.ErrNoChallenge
	}
	return nil
}
