package repository

import (
	"context"
	"fmt"
	"time"
)

type IdempotencyKey struct {
	IdempotencyKey string
	RequestHash    string
	Method         string
	Path           string
	InProgress     bool
	ResponseStatus int32
	ResponseBody   []byte
	ContentType    string
	ExpiresAt      time.Time
}

type ReserveIdempotencyKeyParams struct {
	IdempotencyKey string
	RequestHash    string
	Method         string
	Path           string
	ExpiresAt      time.Time
}

type FinalizeIdempotencyKeyParams struct {
	IdempotencyKey string
	RequestHash    string
	ResponseStatus int32
	ResponseBody   []byte
	ContentType    string
}

const idempotencyColumns = `idempotency_key, request_hash, method, path, in_progress,
	response_status, response_body, content_type, expires_at`

func scanIdempotencyKey(row interface{ Scan(...any) error }) (IdempotencyKey, error) {
	var k IdempotencyKey
	err := row.Scan(&k.IdempotencyKey, &k.RequestHash, &k.Method, &k.Path, &k.InProgress,
		&k.ResponseStatus, &k.ResponseBody, &k.ContentType, &k.ExpiresAt)
	return k, err
}

// GetIdempotencyKey returns pgx.ErrNoRows for missing or expired keys.
func (q *Queries) GetIdempotencyKey(ctx context.Context, key string) (IdempotencyKey, error) {
	return scanIdempotencyKey(q.db.QueryRow(ctx,
		`SELECT `+idempotencyColumns+` FROM idempotency_keys WHERE idempotency_key = $1 AND expires_at > NOW()`, key))
}

// ReserveIdempotencyKey inserts an in-progress row. An expired row with the same
// key is replaced; a live one leaves the insert empty and returns pgx.ErrNoRows.
func (q *Queries) ReserveIdempotencyKey(ctx context.Context, p ReserveIdempotencyKeyParams) (IdempotencyKey, error) {
	return scanIdempotencyKey(q.db.QueryRow(ctx, `
		INSERT INTO idempotency_keys (idempotency_key, request_hash, method, path, in_progress, expires_at)
		VALUES ($1, $2, $3, $4, TRUE, $5)
		ON CONFLICT (idempotency_key) DO UPDATE SET
			request_hash = EXCLUDED.request_hash,
			method = EXCLUDED.method,
			path = EXCLUDED.path,
			in_progress = TRUE,
			response_status = 0,
			response_body = NULL,
			content_type = '',
			created_at = NOW(),
			expires_at = EXCLUDED.expires_at
		WHERE idempotency_keys.expires_at <= NOW()
		RETURNING `+idempotencyColumns,
		p.IdempotencyKey, p.RequestHash, p.Method, p.Path, p.ExpiresAt))
}

func (q *Queries) FinalizeIdempotencyKey(ctx context.Context, p FinalizeIdempotencyKeyParams) (IdempotencyKey, error) {
	return scanIdempotencyKey(q.db.QueryRow(ctx, `
		UPDATE idempotency_keys SET
			in_progress = FALSE,
			response_status = $3,
			response_body = $4,
			content_type = $5
		WHERE idempotency_key = $1 AND request_hash = $2
		RETURNING `+idempotencyColumns,
		p.IdempotencyKey, p.RequestHash, p.ResponseStatus, p.ResponseBody, p.ContentType))
}

// ReleaseIdempotencyKey drops an in-progress reservation so the client can retry.
func (q *Queries) ReleaseIdempotencyKey(ctx context.Context, key, requestHash string) error {
	_, err := q.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE idempotency_key = $1 AND request_hash = $2 AND in_progress`, key, requestHash)
	if err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

func (q *Queries) DeleteExpiredIdempotencyKeys(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired idempotency keys: %w", err)
	}
	return tag.RowsAffected(), nil
}
