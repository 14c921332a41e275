package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mkthub/edi/internal/models"
	"github.com/mkthub/edi/internal/sqlutil"
)

// SweepResult counts what one cleanup pass removed.
type SweepResult struct {
	Bundles   int64
	Messages  int64
	Documents int64
	Commands  int64
}

// Repository deletes terminal rows in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new retention repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Sweep deletes market documents, messages and bundles of Dequeued bundles,
// plus processed commands older than commandsBefore, all in one transaction
// so a failure never orphans rows. It only ever touches terminal states, so
// re-running or running concurrently is safe.
func (r *Repository) Sweep(ctx context.Context, commandsBefore time.Time) (SweepResult, error) {
	var result SweepResult
	err := sqlutil.Run(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
            DELETE FROM market_documents
            WHERE bundle_id IN (SELECT id FROM bundles WHERE state = $1)
        `, models.BundleStateDequeued)
		if err != nil {
			return fmt.Errorf("failed to delete market documents: %w", err)
		}
		result.Documents = tag.RowsAffected()

		tag, err = tx.Exec(ctx, `
            DELETE FROM outgoing_messages
            WHERE bundle_id IN (SELECT id FROM bundles WHERE state = $1)
        `, models.BundleStateDequeued)
		if err != nil {
			return fmt.Errorf("failed to delete outgoing messages: %w", err)
		}
		result.Messages = tag.RowsAffected()

		tag, err = tx.Exec(ctx, `
            DELETE FROM bundles WHERE state = $1
        `, models.BundleStateDequeued)
		if err != nil {
			return fmt.Errorf("failed to delete bundles: %w", err)
		}
		result.Bundles = tag.RowsAffected()

		tag, err = tx.Exec(ctx, `
            DELETE FROM internal_commands
            WHERE processed_at IS NOT NULL AND processed_at < $1
        `, commandsBefore)
		if err != nil {
			return fmt.Errorf("failed to delete processed commands: %w", err)
		}
		result.Commands = tag.RowsAffected()

		return nil
	})
	if err != nil {
		return SweepResult{}, err
	}
	return result, nil
}
