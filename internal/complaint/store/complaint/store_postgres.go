package complaint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"civicdesk/internal/complaint/models"
	"civicdesk/internal/platform/postgres"
	id "civicdesk/pkg/domain"
	"civicdesk/pkg/platform/sentinel"
)

// PostgresStore persists complaints in PostgreSQL. The partial unique index
// complaints_open_fingerprint_idx enforces one open complaint per fingerprint.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const complaintColumns = `
	id, submitter_id, type_id, description, has_profanity, severity, sentiment,
	needs_review, fingerprint, status, assigned_unit, merged_into, version,
	created_at, updated_at`

func (s *PostgresStore) FindByID(ctx context.Context, complaintID id.ComplaintID) (*models.Complaint, error) {
	query := `SELECT` + complaintColumns + ` FROM complaints WHERE id = $1`
	c, err := scanComplaint(postgres.Conn(ctx, s.db).QueryRowContext(ctx, query, complaintID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, postgres.Classify(fmt.Errorf("find complaint by id: %w", err))
	}
	return c, nil
}

func (s *PostgresStore) FindOpenByFingerprint(ctx context.Context, fingerprint string) (*models.Complaint, error) {
	query := `SELECT` + complaintColumns + `
		FROM complaints
		WHERE fingerprint = $1
		  AND status IN ('submitted', 'validated', 'assigned', 'in_progress')`
	c, err := scanComplaint(postgres.Conn(ctx, s.db).QueryRowContext(ctx, query, fingerprint))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, postgres.Classify(fmt.Errorf("find open complaint by fingerprint: %w", err))
	}
	return c, nil
}

func (s *PostgresStore) Create(ctx context.Context, c *models.Complaint) error {
	query := `
		INSERT INTO complaints (` + complaintColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := postgres.Conn(ctx, s.db).ExecContext(ctx, query,
		c.ID,
		c.SubmitterID,
		c.TypeID,
		c.Description,
		c.HasProfanity,
		c.Severity,
		c.Sentiment,
		c.NeedsReview,
		c.Fingerprint,
		string(c.Status),
		c.AssignedUnit,
		mergedInto(c),
		c.Version,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		return postgres.Classify(fmt.Errorf("insert complaint: %w", err))
	}
	return nil
}

// Update writes the mutable columns guarded by the version check.
func (s *PostgresStore) Update(ctx context.Context, c *models.Complaint, expectedVersion int) error {
	query := `
		UPDATE complaints SET
			status = $2,
			assigned_unit = $3,
			merged_into = $4,
			version = $5,
			updated_at = $6
		WHERE id = $1 AND version = $7
	`
	conn := postgres.Conn(ctx, s.db)
	res, err := conn.ExecContext(ctx, query,
		c.ID,
		string(c.Status),
		c.AssignedUnit,
		mergedInto(c),
		c.Version,
		c.UpdatedAt,
		expectedVersion,
	)
	if err != nil {
		return postgres.Classify(fmt.Errorf("update complaint: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update complaint rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}

	var exists bool
	if err := conn.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM complaints WHERE id = $1)`, c.ID).Scan(&exists); err != nil {
		return postgres.Classify(fmt.Errorf("check complaint exists: %w", err))
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrConflict
}

func mergedInto(c *models.Complaint) uuid.NullUUID {
	if c.MergedInto == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*c.MergedInto), Valid: true}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanComplaint(row rowScanner) (*models.Complaint, error) {
	var (
		c        models.Complaint
		status   string
		unit     sql.NullString
		mergedTo uuid.NullUUID
	)
	err := row.Scan(
		&c.ID,
		&c.SubmitterID,
		&c.TypeID,
		&c.Description,
		&c.HasProfanity,
		&c.Severity,
		&c.Sentiment,
		&c.NeedsReview,
		&c.Fingerprint,
		&status,
		&unit,
		&mergedTo,
		&c.Version,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Status = models.Status(status)
	c.AssignedUnit = unit.String
	if mergedTo.Valid {
		m := id.ComplaintID(mergedTo.UUID)
		c.MergedInto = &m
	}
	return &c, nil
}
