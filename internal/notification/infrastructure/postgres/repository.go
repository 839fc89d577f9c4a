package postgres

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/marketplace-orders/internal/notification/domain"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) Save(ctx context.Context, n domain.Notification) (bool, error) {
	tag, err := r.pool.Exec(ctx, `INSERT INTO notifications (event_key, recipient_id, kind, message, payload, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (event_key) DO NOTHING`,
		n.EventKey, n.RecipientID, string(n.Kind), n.Message, []byte(n.Payload), n.CreatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) ListForRecipient(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT event_key, recipient_id, kind, message, payload, created_at
		FROM notifications WHERE recipient_id=$1
		ORDER BY created_at DESC, event_key
		LIMIT $2`, recipientID, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Notification, error) {
		var (
			n       domain.Notification
			kind    string
			payload []byte
		)
		err := row.Scan(&n.EventKey, &n.RecipientID, &kind, &n.Message, &payload, &n.CreatedAt)
		n.Kind = domain.Kind(kind)
		n.Payload = payload
		return n, err
	})
}
