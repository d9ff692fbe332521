package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/leasehub/leaseAuth/account"
)

// UserRepo is the Postgres-backed user directory.
type UserRepo struct {
	db *DB
}

func NewUserRepo(db *DB) *UserRepo {
	return &UserRepo{db: db}
}

const userColumns = `id::text, email, password_hash, role, account_status, verification_status, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (account.User, error) {
	var (
		u                          account.User
		role, status, verification string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &role, &status, &verification, &u.CreatedAt); err != nil {
		return account.User{}, err
	}
	var err error
	if u.Role, err = account.ParseRole(role); err != nil {
		return account.User{}, fmt.Errorf("user %s: %w", u.ID, err)
	}
	if u.Status, err = account.ParseStatus(status); err != nil {
		return account.User{}, fmt.Errorf("user %s: %w", u.ID, err)
	}
	if u.Verification, err = account.ParseVerification(verification); err != nil {
		return account.User{}, fmt.Errorf("user %s: %w", u.ID, err)
	}
	return u, nil
}

func (r *UserRepo) FindByEmail(ctx context.Context, email string) (account.User, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	row := r.db.execQueryer(ctx).QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return account.User{}, account.ErrUserNotFound
	}
	if err != nil {
		return account.User{}, fmt.Errorf("find user by email: %w", err)
	}
	return u, nil
}

func (r *UserRepo) FindByID(ctx context.Context, id string) (account.User, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	row := r.db.execQueryer(ctx).QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1::uuid`, id)
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return account.User{}, account.ErrUserNotFound
	}
	if err != nil {
		return account.User{}, fmt.Errorf("find user by id: %w", err)
	}
	return u, nil
}

// Create inserts u. A missing ID is generated and a zero CreatedAt takes the
// database clock.
func (r *UserRepo) Create(ctx context.Context, u account.User) (account.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if !u.Role.Valid() {
		return account.User{}, account.ErrUnknownRole
	}
	if u.Status == "" {
		u.Status = account.StatusNotActivated
	}
	if u.Verification == "" {
		u.Verification = account.NotVerified
	}

	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var createdAt any
	if !u.CreatedAt.IsZero() {
		createdAt = u.CreatedAt
	}

	row := r.db.execQueryer(ctx).QueryRow(ctx, `
		INSERT INTO users (id, email, password_hash, role, account_status, verification_status, created_at)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, COALESCE($7::timestamptz, now()))
		RETURNING `+userColumns,
		u.ID, u.Email, u.PasswordHash, string(u.Role), string(u.Status), string(u.Verification), createdAt,
	)
	created, err := scanUser(row)
	if err != nil {
		if kind := classify(err); kind != nil {
			return account.User{}, fmt.Errorf("create user: %w", kind)
		}
		return account.User{}, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

// UpdatePasswordHash replaces the stored hash, used for transparent rehash
// after a successful login.
func (r *UserRepo) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx,
		`UPDATE users SET password_hash = $2 WHERE id = $1::uuid`, userID, hash)
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return account.ErrUserNotFound
	}
	return nil
}

func (r *UserRepo) SetStatus(ctx context.Context, userID string, status account.Status, verification account.Verification) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx,
		`UPDATE users SET account_status = $2, verification_status = $3 WHERE id = $1::uuid`,
		userID, string(status), string(verification))
	if err != nil {
		return fmt.Errorf("set user status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return account.ErrUserNotFound
	}
	return nil
}

// ListRetentionCandidates returns up to limit ACTIVE users created strictly
// before cutoff, oldest first.
func (r *UserRepo) ListRetentionCandidates(ctx context.Context, cutoff time.Time, limit int) ([]account.User, error) {
	if limit <= 0 {
		limit = 100
	}

	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.execQueryer(ctx).Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE account_status = $1 AND created_at < $2
		ORDER BY created_at
		LIMIT $3`,
		string(account.StatusActive), cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list retention candidates: %w", err)
	}
	defer rows.Close()

	var out []account.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan retention candidate: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list retention candidates: %w", err)
	}
	return out, nil
}

// Delete removes the user. Its refresh row goes with it through the foreign
// key cascade.
func (r *UserRepo) Delete(ctx context.Context, userID string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, `DELETE FROM users WHERE id = $1::uuid`, userID)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return account.ErrUserNotFound
	}
	return nil
}
