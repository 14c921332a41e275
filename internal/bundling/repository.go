package bundling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mkthub/edi/internal/models"
	"github.com/mkthub/edi/internal/sqlutil"
)

// ErrBundleNotFound is returned when no bundle exists for an id.
var ErrBundleNotFound = errors.New("bundle not found")

// Repository persists bundles and market documents in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new bundle repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const bundleColumns = `
    id, receiver_number, receiver_role, document_type, business_reason,
    state, storage_ref, created_at, closed_at
`

func scanBundle(row pgx.Row) (models.Bundle, error) {
	var b models.Bundle
	err := row.Scan(
		&b.ID, &b.Receiver.Number, &b.Receiver.Role, &b.DocumentType, &b.BusinessReason,
		&b.State, &b.StorageRef, &b.CreatedAt, &b.ClosedAt,
	)
	return b, err
}

// EnsureOpen returns the id of the Open bundle for the grouping tuple,
// creating it if none exists. The insert races against the partial unique
// index on the tuple for state=open rows, so under concurrent callers exactly
// one creation succeeds and every caller observes the winner's id.
func (r *Repository) EnsureOpen(ctx context.Context, key models.BundleKey, newID uuid.UUID, now time.Time) (uuid.UUID, error) {
	_, err := r.pool.Exec(ctx, `
        INSERT INTO bundles (
            id, receiver_number, receiver_role, document_type, business_reason,
            state, created_at
        ) VALUES ($1,$2,$3,$4,$5,$6,$7)
        ON CONFLICT (receiver_number, receiver_role, document_type, business_reason)
            WHERE state = 'OPEN'
        DO NOTHING
    `, newID, key.Receiver.Number, key.Receiver.Role, key.DocumentType, key.BusinessReason,
		models.BundleStateOpen, now)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create bundle: %w", err)
	}

	var id uuid.UUID
	err = r.pool.QueryRow(ctx, `
        SELECT id FROM bundles
        WHERE receiver_number = $1 AND receiver_role = $2
          AND document_type = $3 AND business_reason = $4
          AND state = $5
    `, key.Receiver.Number, key.Receiver.Role, key.DocumentType, key.BusinessReason,
		models.BundleStateOpen).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to read open bundle: %w", err)
	}
	return id, nil
}

// FindCurrent returns the Open or Closing bundle for a tuple, or nil when the
// tuple has no bundle in progress. Ready bundles are never returned: new
// messages must not be merged into an already-rendered document.
func (r *Repository) FindCurrent(ctx context.Context, key models.BundleKey) (*models.Bundle, error) {
	b, err := scanBundle(r.pool.QueryRow(ctx, `
        SELECT `+bundleColumns+`
        FROM bundles
        WHERE receiver_number = $1 AND receiver_role = $2
          AND document_type = $3 AND business_reason = $4
          AND state IN ($5, $6)
        ORDER BY created_at
        LIMIT 1
    `, key.Receiver.Number, key.Receiver.Role, key.DocumentType, key.BusinessReason,
		models.BundleStateOpen, models.BundleStateClosing))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find current bundle: %w", err)
	}
	return &b, nil
}

// Get fetches a bundle by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*models.Bundle, error) {
	b, err := scanBundle(r.pool.QueryRow(ctx, `
        SELECT `+bundleColumns+` FROM bundles WHERE id = $1
    `, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", id, ErrBundleNotFound)
		}
		return nil, fmt.Errorf("failed to get bundle: %w", err)
	}
	return &b, nil
}

// Close transitions a bundle Open -> Closing.
func (r *Repository) Close(ctx context.Context, id uuid.UUID, now time.Time) error {
	_, err := r.pool.Exec(ctx, `
        UPDATE bundles SET state = $2, closed_at = $3
        WHERE id = $1 AND state = $4
    `, id, models.BundleStateClosing, now, models.BundleStateOpen)
	if err != nil {
		return fmt.Errorf("failed to close bundle: %w", err)
	}
	return nil
}

// MarkReady records the uploaded document and transitions Closing -> Ready,
// inserting the bundle's market document in the same transaction. Losing a
// race against another caller that already marked the bundle Ready is a
// successful no-op.
func (r *Repository) MarkReady(ctx context.Context, id uuid.UUID, ref string, now time.Time) error {
	return sqlutil.Run(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
            UPDATE bundles SET state = $2, storage_ref = $3
            WHERE id = $1 AND state = $4
        `, id, models.BundleStateReady, ref, models.BundleStateClosing)
		if err != nil {
			return fmt.Errorf("failed to mark bundle ready: %w", err)
		}
		if tag.RowsAffected() == 0 {
			var state models.BundleState
			err := tx.QueryRow(ctx, `SELECT state FROM bundles WHERE id = $1`, id).Scan(&state)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return fmt.Errorf("%s: %w", id, ErrBundleNotFound)
				}
				return fmt.Errorf("failed to check bundle state: %w", err)
			}
			if state == models.BundleStateReady || state == models.BundleStateDequeued {
				return nil
			}
			return fmt.Errorf("bundle %s in state %s cannot become ready", id, state)
		}
		_, err = tx.Exec(ctx, `
            INSERT INTO market_documents (bundle_id, storage_ref, created_at)
            VALUES ($1, $2, $3)
        `, id, ref, now)
		if err != nil {
			return fmt.Errorf("failed to insert market document: %w", err)
		}
		return nil
	})
}

// PeekReady returns the oldest Ready bundle for an actor without changing its
// state, or nil when the actor's queue is empty.
func (r *Repository) PeekReady(ctx context.Context, receiver models.Actor) (*models.Bundle, error) {
	b, err := scanBundle(r.pool.QueryRow(ctx, `
        SELECT `+bundleColumns+`
        FROM bundles
        WHERE receiver_number = $1 AND receiver_role = $2 AND state = $3
        ORDER BY created_at
        LIMIT 1
    `, receiver.Number, receiver.Role, models.BundleStateReady))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to peek ready bundle: %w", err)
	}
	return &b, nil
}

// Dequeue transitions a Ready bundle to Dequeued and returns its storage
// reference. A bundle that is not Ready for this actor reports ok=false; the
// caller treats that as a successful no-op so consumers can retry peek and
// dequeue idempotently.
func (r *Repository) Dequeue(ctx context.Context, receiver models.Actor, id uuid.UUID) (string, bool, error) {
	var ref string
	err := r.pool.QueryRow(ctx, `
        UPDATE bundles SET state = $4
        WHERE id = $1 AND receiver_number = $2 AND receiver_role = $3 AND state = $5
        RETURNING storage_ref
    `, id, receiver.Number, receiver.Role, models.BundleStateDequeued, models.BundleStateReady).Scan(&ref)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to dequeue bundle: %w", err)
	}
	return ref, true, nil
}
