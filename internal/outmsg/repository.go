package outmsg

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mkthub/edi/internal/models"
	"github.com/mkthub/edi/internal/outbox"
	"github.com/mkthub/edi/internal/sqlutil"
)

// ErrMessageNotFound is returned when no outgoing message exists for an id.
var ErrMessageNotFound = errors.New("outgoing message not found")

// Repository persists outgoing messages in Postgres.
type Repository struct {
	pool     *pgxpool.Pool
	commands *outbox.Repository
}

// NewRepository creates a new outgoing message repository.
func NewRepository(pool *pgxpool.Pool, commands *outbox.Repository) *Repository {
	return &Repository{pool: pool, commands: commands}
}

const messageColumns = `
    id, document_type, business_reason,
    sender_number, sender_role, receiver_number, receiver_role,
    record, bundle_id, published, created_at
`

func scanMessage(row pgx.Row) (models.OutgoingMessage, error) {
	var m models.OutgoingMessage
	err := row.Scan(
		&m.ID, &m.DocumentType, &m.BusinessReason,
		&m.Sender.Number, &m.Sender.Role, &m.Receiver.Number, &m.Receiver.Role,
		&m.Record, &m.BundleID, &m.Published, &m.CreatedAt,
	)
	return m, err
}

// InsertWithCommand inserts a message and enqueues the follow-up command in
// one transaction, so the deferred effect is durable iff the message is.
func (r *Repository) InsertWithCommand(ctx context.Context, msg models.OutgoingMessage, cmd outbox.NewCommand) error {
	return sqlutil.Run(ctx, r.pool, func(tx pgx.Tx) error {
		if err := r.insert(ctx, tx, msg); err != nil {
			return err
		}
		return r.commands.Enqueue(ctx, tx, cmd)
	})
}

// Insert adds a message without scheduling any follow-up work.
func (r *Repository) Insert(ctx context.Context, msg models.OutgoingMessage) error {
	return r.insert(ctx, r.pool, msg)
}

func (r *Repository) insert(ctx context.Context, db sqlutil.DBTX, msg models.OutgoingMessage) error {
	_, err := db.Exec(ctx, `
        INSERT INTO outgoing_messages (
            id, document_type, business_reason,
            sender_number, sender_role, receiver_number, receiver_role,
            record, published, created_at
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,false,$9)
    `,
		msg.ID, msg.DocumentType, msg.BusinessReason,
		msg.Sender.Number, msg.Sender.Role, msg.Receiver.Number, msg.Receiver.Role,
		msg.Record, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert outgoing message: %w", err)
	}
	return nil
}

// ListUnbundled returns the messages for a grouping tuple that still lack a
// bundle reference, in creation order.
func (r *Repository) ListUnbundled(ctx context.Context, key models.BundleKey) ([]models.OutgoingMessage, error) {
	rows, err := r.pool.Query(ctx, `
        SELECT `+messageColumns+`
        FROM outgoing_messages
        WHERE bundle_id IS NULL
          AND receiver_number = $1 AND receiver_role = $2
          AND document_type = $3 AND business_reason = $4
        ORDER BY created_at, id
    `, key.Receiver.Number, key.Receiver.Role, key.DocumentType, key.BusinessReason)
	if err != nil {
		return nil, fmt.Errorf("failed to list unbundled messages: %w", err)
	}
	defer rows.Close()

	var messages []models.OutgoingMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outgoing message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read unbundled messages: %w", err)
	}
	return messages, nil
}

// AssignBundle attaches messages to a bundle. Only unbundled rows are
// touched; a message already attached elsewhere is never moved.
func (r *Repository) AssignBundle(ctx context.Context, ids []uuid.UUID, bundleID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
        UPDATE outgoing_messages
        SET bundle_id = $2
        WHERE id = ANY($1) AND bundle_id IS NULL
    `, ids, bundleID)
	if err != nil {
		return fmt.Errorf("failed to assign bundle: %w", err)
	}
	return nil
}

// ListByBundle returns the messages attached to a bundle in creation order.
func (r *Repository) ListByBundle(ctx context.Context, bundleID uuid.UUID) ([]models.OutgoingMessage, error) {
	rows, err := r.pool.Query(ctx, `
        SELECT `+messageColumns+`
        FROM outgoing_messages
        WHERE bundle_id = $1
        ORDER BY created_at, id
    `, bundleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bundle messages: %w", err)
	}
	defer rows.Close()

	var messages []models.OutgoingMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outgoing message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read bundle messages: %w", err)
	}
	return messages, nil
}

// ListReadyToPublish returns messages whose bundle is Ready and that have not
// been announced to the downstream hub yet.
func (r *Repository) ListReadyToPublish(ctx context.Context, limit int32) ([]models.OutgoingMessage, error) {
	rows, err := r.pool.Query(ctx, `
        SELECT m.id, m.document_type, m.business_reason,
               m.sender_number, m.sender_role, m.receiver_number, m.receiver_role,
               m.record, m.bundle_id, m.published, m.created_at
        FROM outgoing_messages m
        JOIN bundles b ON b.id = m.bundle_id
        WHERE m.published = false AND b.state = $1
        ORDER BY m.created_at, m.id
        LIMIT $2
    `, models.BundleStateReady, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list ready-to-publish messages: %w", err)
	}
	defer rows.Close()

	var messages []models.OutgoingMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outgoing message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ready-to-publish messages: %w", err)
	}
	return messages, nil
}

// MarkPublished flips the published flag for a message.
func (r *Repository) MarkPublished(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
        UPDATE outgoing_messages SET published = true WHERE id = $1
    `, id)
	if err != nil {
		return fmt.Errorf("failed to mark message published: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", id, ErrMessageNotFound)
	}
	return nil
}

// Get fetches a message by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*models.OutgoingMessage, error) {
	m, err := scanMessage(r.pool.QueryRow(ctx, `
        SELECT `+messageColumns+`
        FROM outgoing_messages
        WHERE id = $1
    `, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", id, ErrMessageNotFound)
		}
		return nil, fmt.Errorf("failed to get outgoing message: %w", err)
	}
	return &m, nil
}
