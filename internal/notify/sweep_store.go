package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGSweepStore is the postgres sweepStore implementation.
type PGSweepStore struct {
	pool *pgxpool.Pool
}

// NewPGSweepStore creates a sweep store backed by the given pool.
func NewPGSweepStore(pool *pgxpool.Pool) *PGSweepStore {
	return &PGSweepStore{pool: pool}
}

// StaleUnseen returns messages each member has not seen, created before
// the cutoff, excluding the member's own messages and anything already
// covered by the notification ledger.
func (s *PGSweepStore) StaleUnseen(ctx context.Context, before time.Time) ([]UnseenMessage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT gm.user_id, gm.group_id, m.id, g.name,
		       COALESCE(sndr.full_name, sndr.email),
		       m.content, m.created_at,
		       COALESCE(u.full_name, u.email),
		       COALESCE(NULLIF(u.personal_email, ''), u.email)
		FROM chat_group_members gm
		JOIN chat_groups g ON g.id = gm.group_id
		JOIN chat_messages m ON m.group_id = gm.group_id
		    AND m.sender_id <> gm.user_id
		    AND m.created_at > COALESCE(gm.last_seen_at, 'epoch'::timestamptz)
		    AND m.created_at <= $1
		JOIN users u ON u.id = gm.user_id
		JOIN users sndr ON sndr.id = m.sender_id
		LEFT JOIN unseen_notifications n
		    ON n.user_id = gm.user_id AND n.group_id = gm.group_id AND n.message_id = m.id
		WHERE n.message_id IS NULL
		ORDER BY gm.user_id, gm.group_id, m.created_at`,
		before,
	)
	if err != nil {
		return nil, errors.Join(ErrSweepQueryFailed, err)
	}
	defer rows.Close()

	var out []UnseenMessage
	for rows.Next() {
		var m UnseenMessage
		if err := rows.Scan(
			&m.UserID, &m.GroupID, &m.MessageID, &m.GroupName,
			&m.SenderName, &m.Content, &m.CreatedAt,
			&m.RecipientName, &m.RecipientEmail,
		); err != nil {
			return nil, errors.Join(ErrSweepQueryFailed, err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrSweepQueryFailed, err)
	}
	return out, nil
}

// RecordNotified appends ledger entries in one batch. Conflicts are
// ignored so re-recording a message is harmless.
func (s *PGSweepStore) RecordNotified(ctx context.Context, entries []LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`
			INSERT INTO unseen_notifications (user_id, group_id, message_id)
			VALUES ($1, $2, $3)
			ON CONFLICT (user_id, group_id, message_id) DO NOTHING`,
			e.UserID, e.GroupID, e.MessageID,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range entries {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("notify: record ledger entry: %w", err)
		}
	}
	return nil
}

// PruneLedger deletes ledger rows older than the retention window and
// returns how many were removed.
func (s *PGSweepStore) PruneLedger(ctx context.Context, olderThan time.Duration) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM unseen_notifications WHERE notified_at < $1`,
		time.Now().Add(-olderThan),
	)
	if err != nil {
		return 0, fmt.Errorf("notify: prune ledger: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
