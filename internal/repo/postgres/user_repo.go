package postgres

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/healthcure/clinic/internal/crypto"
	"github.com/healthcure/clinic/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRepository is the credential store. Email (and the patient address in
// the profile row) cross this boundary encrypted; no layer below ever sees
// them in the clear.
type UserRepository interface {
	Create(ctx context.Context, req *domain.RegisterRequest, role domain.Role, passwordHash string) (*domain.User, error)
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	FindByID(ctx context.Context, id int64) (*domain.User, error)
	UpdatePassword(ctx context.Context, id int64, newHash string) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, limit, offset int) ([]domain.User, error)
}

type userRepository struct {
	pool   *pgxpool.Pool
	cipher *crypto.FieldCipher
}

func NewUserRepository(pool *pgxpool.Pool, cipher *crypto.FieldCipher) UserRepository {
	return &userRepository{pool: pool, cipher: cipher}
}

// emailDigest gives a deterministic lookup/uniqueness handle for the encrypted
// email column; AES-GCM ciphertext differs per call and cannot carry a unique
// index.
func emailDigest(email string) []byte {
	sum := sha256.Sum256([]byte(strings.ToLower(email)))
	return sum[:]
}

func (r *userRepository) Create(ctx context.Context, req *domain.RegisterRequest, role domain.Role, passwordHash string) (*domain.User, error) {
	emailCipher, err := r.cipher.EncryptString(req.Email)
	if err != nil {
		return nil, fmt.Errorf("encrypt email: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	const q = `
		INSERT INTO users (username, role, password_hash, email_cipher, email_digest)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, username, role, password_hash, created_at, updated_at`

	var u domain.User
	err = tx.QueryRow(ctx, q, req.Username, string(role), passwordHash, emailCipher, emailDigest(req.Email)).Scan(
		&u.ID, &u.Username, &u.Role, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, mapUniqueViolation(err)
	}
	u.Email = req.Email

	switch role {
	case domain.RolePatient:
		addrCipher, err := r.cipher.EncryptString(req.Address)
		if err != nil {
			return nil, fmt.Errorf("encrypt address: %w", err)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO patients (user_id, name, dob, address_cipher) VALUES ($1, $2, $3, $4)`,
			u.ID, req.Name, req.DOB, addrCipher)
		if err != nil {
			return nil, err
		}
	case domain.RoleDoctor:
		_, err = tx.Exec(ctx,
			`INSERT INTO doctors (user_id, name, specialty) VALUES ($1, $2, $3)`,
			u.ID, req.Name, req.Specialty)
		if err != nil {
			return nil, err
		}
	case domain.RoleNurse:
		_, err = tx.Exec(ctx,
			`INSERT INTO nurses (user_id, name) VALUES ($1, $2)`,
			u.ID, req.Name)
		if err != nil {
			return nil, err
		}
	case domain.RoleAdmin:
		// no profile row
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return &u, nil
}

// mapUniqueViolation surfaces exactly one winner under concurrent creates:
// the loser's 23505 becomes a typed conflict error.
func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch pgErr.ConstraintName {
		case "users_email_digest_key":
			return domain.ErrEmailTaken
		default:
			return domain.ErrUsernameTaken
		}
	}
	return err
}

const userCols = `id, username, role, password_hash, email_cipher, created_at, updated_at`

func (r *userRepository) scanUser(row pgx.Row) (*domain.User, error) {
	var (
		u           domain.User
		emailCipher []byte
	)
	err := row.Scan(&u.ID, &u.Username, &u.Role, &u.PasswordHash, &emailCipher, &u.CreatedAt, &u.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if len(emailCipher) > 0 {
		email, err := r.cipher.DecryptString(emailCipher)
		if err != nil {
			return nil, fmt.Errorf("decrypt email for user %d: %w", u.ID, err)
		}
		u.Email = email
	}
	return &u, nil
}

func (r *userRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE username = $1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return r.scanUser(r.pool.QueryRow(ctx, q, username))
}

func (r *userRepository) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE id = $1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return r.scanUser(r.pool.QueryRow(ctx, q, id))
}

func (r *userRepository) UpdatePassword(ctx context.Context, id int64, newHash string) error {
	const q = `UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, id, newHash)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *userRepository) Delete(ctx context.Context, id int64) error {
	const q = `DELETE FROM users WHERE id = $1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// List omits the encrypted email entirely; the admin user table has no
// business reason to disclose contact addresses.
func (r *userRepository) List(ctx context.Context, limit, offset int) ([]domain.User, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	const q = `
		SELECT id, username, role, created_at, updated_at
		FROM users
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Role, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}

	return users, rows.Err()
}
