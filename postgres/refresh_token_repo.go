package postgres

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/leasehub/leaseAuth/refresh"
)

var _ refresh.Store = (*RefreshTokenRepo)(nil)

// RefreshTokenRepo keeps one refresh_tokens row per user. Only the SHA-256 of
// the value is stored.
type RefreshTokenRepo struct {
	db *DB
}

func NewRefreshTokenRepo(db *DB) *RefreshTokenRepo {
	return &RefreshTokenRepo{db: db}
}

func (r *RefreshTokenRepo) Rotate(ctx context.Context, rec refresh.Record) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	_, err := r.db.execQueryer(ctx).Exec(ctx, `
		INSERT INTO refresh_tokens (user_id, token_hash, expires_at)
		VALUES ($1::uuid, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET token_hash = EXCLUDED.token_hash, expires_at = EXCLUDED.expires_at`,
		rec.UserID, hashValue(rec.Value), rec.ExpiresAt.UTC(),
	)
	if err != nil {
		if kind := classify(err); kind != nil {
			return fmt.Errorf("%w: rotate: %v", refresh.ErrUnavailable, kind)
		}
		return fmt.Errorf("%w: rotate: %v", refresh.ErrUnavailable, err)
	}
	return nil
}

func (r *RefreshTokenRepo) FindByValue(ctx context.Context, value string) (refresh.Record, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rec := refresh.Record{Value: value}
	err := r.db.execQueryer(ctx).QueryRow(ctx,
		`SELECT user_id::text, expires_at FROM refresh_tokens WHERE token_hash = $1`,
		hashValue(value),
	).Scan(&rec.UserID, &rec.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return refresh.Record{}, refresh.ErrNotFound
	}
	if err != nil {
		return refresh.Record{}, fmt.Errorf("%w: find: %v", refresh.ErrUnavailable, err)
	}
	return rec, nil
}

func (r *RefreshTokenRepo) DeleteIfMatch(ctx context.Context, userID, value string) (bool, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx,
		`DELETE FROM refresh_tokens WHERE user_id = $1::uuid AND token_hash = $2`,
		userID, hashValue(value),
	)
	if err != nil {
		return false, fmt.Errorf("%w: delete: %v", refresh.ErrUnavailable, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *RefreshTokenRepo) DeleteByUser(ctx context.Context, userID string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if _, err := r.db.execQueryer(ctx).Exec(ctx,
		`DELETE FROM refresh_tokens WHERE user_id = $1::uuid`, userID,
	); err != nil {
		return fmt.Errorf("%w: delete by user: %v", refresh.ErrUnavailable, err)
	}
	return nil
}

func hashValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
