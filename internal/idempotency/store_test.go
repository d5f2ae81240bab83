package idempotency

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ayo6706/kenyabank/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memQueries struct {
	mu   sync.Mutex
	rows map[string]repository.IdempotencyKey
}

func newMemQueries() *memQueries {
	return &memQueries{rows: map[string]repository.IdempotencyKey{}}
}

func (q *memQueries) GetIdempotencyKey(ctx context.Context, key string) (repository.IdempotencyKey, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	row, ok := q.rows[key]
	if !ok || !row.ExpiresAt.After(time.Now()) {
		return repository.IdempotencyKey{}, pgx.ErrNoRows
	}
	return row, nil
}

func (q *memQueries) ReserveIdempotencyKey(ctx context.Context, p repository.ReserveIdempotencyKeyParams) (repository.IdempotencyKey, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if row, ok := q.rows[p.IdempotencyKey]; ok && row.ExpiresAt.After(time.Now()) {
		return repository.IdempotencyKey{}, pgx.ErrNoRows
	}
	row := repository.IdempotencyKey{
		IdempotencyKey: p.IdempotencyKey,
		RequestHash:    p.RequestHash,
		Method:         p.Method,
		Path:           p.Path,
		InProgress:     true,
		ExpiresAt:      p.ExpiresAt,
	}
	q.rows[p.IdempotencyKey] = row
	return row, nil
}

func (q *memQueries) FinalizeIdempotencyKey(ctx context.Context, p repository.FinalizeIdempotencyKeyParams) (repository.IdempotencyKey, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	row, ok := q.rows[p.IdempotencyKey]
	if !ok || row.RequestHash != p.RequestHash {
		return repository.IdempotencyKey{}, pgx.ErrNoRows
	}
	row.InProgress = false
	row.ResponseStatus = p.ResponseStatus
	row.ResponseBody = p.ResponseBody
	row.ContentType = p.ContentType
	q.rows[p.IdempotencyKey] = row
	return row, nil
}

func (q *memQueries) ReleaseIdempotencyKey(ctx context.Context, key, requestHash string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if row, ok := q.rows[key]; ok && row.RequestHash == requestHash && row.InProgress {
		delete(q.rows, key)
	}
	return nil
}

func TestReserveFinalizeLookup(t *testing.T) {
	store := NewStore(newMemQueries(), nil, time.Hour)
	ctx := context.Background()

	_, err := store.Lookup(ctx, "k1", "h1")
	require.ErrorIs(t, err, ErrNotFound)

	reserved, err := store.Reserve(ctx, "k1", "h1", "POST", "/api/transactions/transfer")
	require.NoError(t, err)
	require.True(t, reserved)

	again, err := store.Reserve(ctx, "k1", "h1", "POST", "/api/transactions/transfer")
	require.NoError(t, err)
	assert.False(t, again)

	_, err = store.Lookup(ctx, "k1", "h1")
	require.ErrorIs(t, err, ErrInProgress)

	_, err = store.Finalize(ctx, "k1", "h1", 201, []byte(`{"status":"completed"}`), "application/json")
	require.NoError(t, err)

	rec, err := store.Lookup(ctx, "k1", "h1")
	require.NoError(t, err)
	assert.Equal(t, 201, rec.Status)
	assert.Equal(t, "postgres", rec.ServedBy)
	assert.JSONEq(t, `{"status":"completed"}`, string(rec.Body))

	_, err = store.Lookup(ctx, "k1", "other-hash")
	require.ErrorIs(t, err, ErrHashMismatch)
}

func TestReleaseAllowsRetry(t *testing.T) {
	store := NewStore(newMemQueries(), nil, time.Hour)
	ctx := context.Background()

	reserved, err := store.Reserve(ctx, "k2", "h2", "POST", "/x")
	require.NoError(t, err)
	require.True(t, reserved)
	require.NoError(t, store.Release(ctx, "k2", "h2"))

	reserved, err = store.Reserve(ctx, "k2", "h2", "POST", "/x")
	require.NoError(t, err)
	assert.True(t, reserved)
}

func TestWaitForCompletion(t *testing.T) {
	store := NewStore(newMemQueries(), nil, time.Hour)
	store.poll = 5 * time.Millisecond
	ctx := context.Background()

	_, err := store.Reserve(ctx, "k3", "h3", "POST", "/x")
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = store.Finalize(context.Background(), "k3", "h3", 200, []byte("{}"), "application/json")
	}()

	rec, err := store.WaitForCompletion(ctx, "k3", "h3")
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Status)

	_, err = store.Reserve(ctx, "k4", "h4", "POST", "/x")
	require.NoError(t, err)
	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = store.WaitForCompletion(short, "k4", "h4")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
