package postgres

import (
	"context"
	"time"

	"github.com/healthcure/clinic/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ChallengeRepository persists the single live login challenge per user.
// Consumption is delete, not flagging: a verified or dead challenge leaves
// no row behind, so a second verify of the same code finds nothing.
type ChallengeRepository interface {
	Upsert(ctx context.Context, ch *domain.OTPChallenge) error
	Get(ctx context.Context, userID int64) (*domain.OTPChallenge, error)
	// Delete removes the challenge only if it still carries codeHash, and
	// reports whether a row was deleted. A false return means the challenge
	// was replaced or removed concurrently and this verification loses.
	Delete(ctx context.Context, userID int64, codeHash string) (bool, error)
	DeleteAll(ctx context.Context, userID int64) error
	IncrementAttempts(ctx context.Context, userID int64) (int, error)
}

type challengeRepository struct {
	pool *pgxpool.Pool
}

func NewChallengeRepository(pool *pgxpool.Pool) ChallengeRepository {
	return &challengeRepository{pool: pool}
}

func (r *challengeRepository) Upsert(ctx context.Context, ch *domain.OTPChallenge) error {
	const q = `
		INSERT INTO login_challenges (user_id, code_hash, expires_at, attempts)
		VALUES ($1, $2, $3, 0)
		ON CONFLICT (user_id) DO UPDATE
		SET code_hash = EXCLUDED.code_hash,
		    expires_at = EXCLUDED.expires_at,
		    attempts = 0`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, ch.UserID, ch.CodeHash, ch.ExpiresAt)
	return err
}

func (r *challengeRepository) Get(ctx context.Context, userID int64) (*domain.OTPChallenge, error) {
	const q = `SELECT user_id, code_hash, expires_at, attempts FROM login_challenges WHERE user_id = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var ch domain.OTPChallenge
	err := r.pool.QueryRow(ctx, q, userID).Scan(&ch.UserID, &ch.CodeHash, &ch.ExpiresAt, &ch.Attempts)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

func (r *challengeRepository) Delete(ctx context.Context, userID int64, codeHash string) (bool, error) {
	const q = `DELETE FROM login_challenges WHERE user_id = $1 AND code_hash = $2`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, userID, codeHash)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() == 1, nil
}

func (r *challengeRepository) DeleteAll(ctx context.Context, userID int64) error {
	const q = `DELETE FROM login_challenges WHERE user_id = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, userID)
	return err
}

func (r *challengeRepository) IncrementAttempts(ctx context.Context, userID int64) (int, error) {
	const q = `
		UPDATE login_challenges SET attempts = attempts + 1
		WHERE user_id = $1
		RETURNING attempts`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var attempts int
	err := r.pool.QueryRow(ctx, q, userID).Scan(&attempts)
	if err == pgx.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return attempts, nil
}
