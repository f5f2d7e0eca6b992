package crypto

import (
	"context"
	"fmt"

	"github.com/alexedwards/argon2id"
	"github.com/healthcure/clinic/internal/domain"
	"golang.org/x/sync/semaphore"
)

// PasswordHasher wraps argon2id with a bounded number of concurrent hashing
// slots so a burst of logins cannot pin every core. Hashing is salted and
// non-deterministic; verification is deterministic and constant-time inside
// argon2id.
type PasswordHasher struct {
	params *argon2id.Params
	slots  *semaphore.Weighted
}

func NewPasswordHasher(maxConcurrent int) *PasswordHasher {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &PasswordHasher{
		params: argon2id.DefaultParams,
		slots:  semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

func (h *PasswordHasher) Hash(ctx context.Context, secret string) (string, error) {
	if err := h.slots.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer h.slots.Release(1)

	hash, err := argon2id.CreateHash(secret, h.params)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

// Verify distinguishes a wrong secret (false, nil) from an unusable stored
// record (false, ErrCorruptCredential). Callers must not collapse the two.
func (h *PasswordHasher) Verify(ctx context.Context, secret, hash string) (bool, error) {
	if err := h.slots.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer h.slots.Release(1)

	match, err := argon2id.ComparePasswordAndHash(secret, hash)
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrCorruptCredential, err)
	}
	return match, nil
}
