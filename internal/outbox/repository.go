package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mkthub/edi/internal/models"
	"github.com/mkthub/edi/internal/sqlutil"
)

// Repository persists internal commands in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new command repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Enqueue inserts a command through the caller's transaction handle so the
// command commits or rolls back together with the triggering domain change.
func (r *Repository) Enqueue(ctx context.Context, db sqlutil.DBTX, cmd NewCommand) error {
	_, err := db.Exec(ctx, `
        INSERT INTO internal_commands (id, kind, payload, scheduled_at, created_at)
        VALUES ($1, $2, $3, $4, now())
    `, uuid.New(), cmd.Kind, cmd.Payload, cmd.ScheduledAt)
	if err != nil {
		return fmt.Errorf("failed to enqueue %s command: %w", cmd.Kind, err)
	}
	return nil
}

// ProcessDue claims up to limit due commands and hands each to fn, recording
// the outcome. The claiming SELECT takes row locks with SKIP LOCKED, so
// concurrent pollers always claim disjoint rows; the locks are released at
// commit, after processed_at is written. Returns the number of commands
// processed.
func (r *Repository) ProcessDue(ctx context.Context, now time.Time, limit int32, fn func(ctx context.Context, cmd models.InternalCommand) error) (int, error) {
	processed := 0
	err := sqlutil.Run(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
            SELECT id, kind, payload, scheduled_at, created_at
            FROM internal_commands
            WHERE processed_at IS NULL AND scheduled_at <= $1
            ORDER BY scheduled_at, created_at
            LIMIT $2
            FOR UPDATE SKIP LOCKED
        `, now, limit)
		if err != nil {
			return fmt.Errorf("failed to claim due commands: %w", err)
		}

		var commands []models.InternalCommand
		for rows.Next() {
			var cmd models.InternalCommand
			if err := rows.Scan(&cmd.ID, &cmd.Kind, &cmd.Payload, &cmd.ScheduledAt, &cmd.CreatedAt); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan command: %w", err)
			}
			commands = append(commands, cmd)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("failed to read claimed commands: %w", err)
		}

		for _, cmd := range commands {
			var errMsg *string
			if execErr := fn(ctx, cmd); execErr != nil {
				if IsTransient(execErr) {
					// Leave the row pending; its lock releases at commit and
					// a later cycle claims it again.
					continue
				}
				msg := execErr.Error()
				errMsg = &msg
			}
			if _, err := tx.Exec(ctx, `
                UPDATE internal_commands
                SET processed_at = $2, error_message = $3
                WHERE id = $1
            `, cmd.ID, now, errMsg); err != nil {
				return fmt.Errorf("failed to mark command processed: %w", err)
			}
			processed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return processed, nil
}

// Get fetches a command by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*models.InternalCommand, error) {
	var cmd models.InternalCommand
	err := r.pool.QueryRow(ctx, `
        SELECT id, kind, payload, scheduled_at, processed_at, error_message, created_at
        FROM internal_commands
        WHERE id = $1
    `, id).Scan(&cmd.ID, &cmd.Kind, &cmd.Payload, &cmd.ScheduledAt, &cmd.ProcessedAt, &cmd.ErrorMessage, &cmd.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get command: %w", err)
	}
	return &cmd, nil
}
