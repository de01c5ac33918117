package auditlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"civicdesk/internal/complaint/models"
	"civicdesk/internal/platform/postgres"
	id "civicdesk/pkg/domain"
)

// PostgresStore persists entries in complaint_logs. Seq comes from the
// BIGSERIAL column.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, entry *models.LogEntry) error {
	query := `
		INSERT INTO complaint_logs (complaint_id, kind, from_status, to_status, actor_id, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING seq
	`
	err := postgres.Conn(ctx, s.db).QueryRowContext(ctx, query,
		entry.ComplaintID,
		string(entry.Kind),
		string(entry.From),
		string(entry.To),
		entry.ActorID,
		entry.Note,
		entry.CreatedAt,
	).Scan(&entry.Seq)
	if err != nil {
		return postgres.Classify(fmt.Errorf("append complaint log: %w", err))
	}
	return nil
}

func (s *PostgresStore) ListByComplaint(ctx context.Context, complaintID id.ComplaintID) ([]*models.LogEntry, error) {
	query := `
		SELECT seq, complaint_id, kind, from_status, to_status, actor_id, note, created_at
		FROM complaint_logs
		WHERE complaint_id = $1
		ORDER BY seq ASC
	`
	rows, err := postgres.Conn(ctx, s.db).QueryContext(ctx, query, complaintID)
	if err != nil {
		return nil, postgres.Classify(fmt.Errorf("list complaint logs: %w", err))
	}
	defer rows.Close()

	entries := make([]*models.LogEntry, 0)
	for rows.Next() {
		var (
			e            models.LogEntry
			kind, fr, to string
		)
		if err := rows.Scan(&e.Seq, &e.ComplaintID, &kind, &fr, &to, &e.ActorID, &e.Note, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan complaint log: %w", err)
		}
		e.Kind = models.LogKind(kind)
		e.From = models.Status(fr)
		e.To = models.Status(to)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.Classify(fmt.Errorf("iterate complaint logs: %w", err))
	}
	return entries, nil
}

// PurgeBefore deletes entries older than cutoff that are not the newest of
// their complaint. Entries committed after the statement's snapshot are
// newer than cutoff by construction and never considered.
func (s *PostgresStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int, error) {
	query := `
		DELETE FROM complaint_logs l
		WHERE l.created_at < $1
		  AND l.seq < (
			SELECT MAX(m.seq) FROM complaint_logs m WHERE m.complaint_id = l.complaint_id
		  )
	`
	res, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, postgres.Classify(fmt.Errorf("purge complaint logs: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge complaint logs rows affected: %w", err)
	}
	return int(n), nil
}
