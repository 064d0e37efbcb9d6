package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

type IdempotencyKey struct {
	IdempotencyKey string
	RequestHash    string
	ResponseStatus int32
	ResponseBody   []byte
	ContentType    string
	InProgress     bool
}

type ReserveIdempotencyKeyParams struct {
	IdempotencyKey string
	RequestHash    string
	Method         string
	Path           string
}

type FinalizeIdempotencyKeyParams struct {
	ResponseStatus int32
	ResponseBody   []byte
	ContentType    string
	IdempotencyKey string
	RequestHash    string
}

const idempotencyColumns = `idempotency_key, request_hash, response_status, COALESCE(response_body, ''::bytea), content_type, in_progress`

func scanIdempotencyKey(row pgx.Row) (IdempotencyKey, error) {
	var k IdempotencyKey
	err := row.Scan(&k.IdempotencyKey, &k.RequestHash, &k.ResponseStatus, &k.ResponseBody, &k.ContentType, &k.InProgress)
	return k, err
}

// GetIdempotencyKey returns pgx.ErrNoRows when the key is unknown.
func (q *Queries) GetIdempotencyKey(ctx context.Context, key string) (IdempotencyKey, error) {
	return scanIdempotencyKey(q.db.QueryRow(ctx, `SELECT `+idempotencyColumns+` FROM idempotency_keys WHERE idempotency_key = $1`, key))
}

// ReserveIdempotencyKey returns pgx.ErrNoRows when another request owns the key.
func (q *Queries) ReserveIdempotencyKey(ctx context.Context, arg ReserveIdempotencyKeyParams) (IdempotencyKey, error) {
	const query = `
		INSERT INTO idempotency_keys (idempotency_key, request_hash, method, path)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING ` + idempotencyColumns
	return scanIdempotencyKey(q.db.QueryRow(ctx, query, arg.IdempotencyKey, arg.RequestHash, arg.Method, arg.Path))
}

func (q *Queries) FinalizeIdempotencyKey(ctx context.Context, arg FinalizeIdempotencyKeyParams) (IdempotencyKey, error) {
	const query = `
		UPDATE idempotency_keys
		SET response_status = $1, response_body = $2, content_type = $3, in_progress = FALSE, updated_at = NOW()
		WHERE idempotency_key = $4 AND request_hash = $5
		RETURNING ` + idempotencyColumns
	return scanIdempotencyKey(q.db.QueryRow(ctx, query, arg.ResponseStatus, arg.ResponseBody, arg.ContentType,
		arg.IdempotencyKey, arg.RequestHash))
}

// ReleaseIdempotencyKey drops an unfinished reservation so the request can be retried.
func (q *Queries) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	if _, err := q.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE idempotency_key = $1 AND in_progress`, key); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

// ReserveWebhookEvent records an event id. It reports false when the id was already recorded.
func (q *Queries) ReserveWebhookEvent(ctx context.Context, eventID, eventType string) (bool, error) {
	const query = `
		INSERT INTO webhook_events (event_id, event_type) VALUES ($1, $2)
		ON CONFLICT (event_id) DO NOTHING
		RETURNING event_id`
	var id string
	err := q.db.QueryRow(ctx, query, eventID, eventType).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("reserve webhook event: %w", err)
	}
	return true, nil
}

// ForgetWebhookEvent removes an event id so a redelivery is processed again.
func (q *Queries) ForgetWebhookEvent(ctx context.Context, eventID string) error {
	if _, err := q.db.Exec(ctx, `DELETE FROM webhook_events WHERE event_id = $1`, eventID); err != nil {
		return fmt.Errorf("forget webhook event: %w", err)
	}
	return nil
}
