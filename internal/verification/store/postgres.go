package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"trustscore/internal/verification/models"
	id "trustscore/pkg/domain"
	"trustscore/pkg/platform/sentinel"
)

//go:embed schema.sql
var schema string

const insertRetries = 3

const selectColumns = `subject_id, email, phone, identity, education, employment, skills, created_at, updated_at`

// PostgresStore keeps one row per subject, each category as a JSONB
// sub-record. Updates lock the row with SELECT ... FOR UPDATE.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the records table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure verification schema: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) FindBySubject(ctx context.Context, subjectID id.SubjectID) (*models.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM verification_records WHERE subject_id = $1`,
		uuid.UUID(subjectID))
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find verification record: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) FindMany(ctx context.Context, subjectIDs []id.SubjectID) (map[id.SubjectID]*models.Record, error) {
	out := make(map[id.SubjectID]*models.Record, len(subjectIDs))
	if len(subjectIDs) == 0 {
		return out, nil
	}

	ids := make([]string, len(subjectIDs))
	for i, sid := range subjectIDs {
		ids[i] = sid.String()
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM verification_records WHERE subject_id = ANY($1::uuid[])`,
		pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("find verification records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan verification record: %w", err)
		}
		out[record.SubjectID] = record
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verification records: %w", err)
	}
	return out, nil
}

// Update runs mutate inside a transaction holding the subject's row lock.
// When two writers race to create the same subject, the loser retries
// against the winner's row.
func (s *PostgresStore) Update(ctx context.Context, subjectID id.SubjectID, mutate models.Mutation) (*models.Record, error) {
	for range insertRetries {
		record, retry, err := s.updateOnce(ctx, subjectID, mutate)
		if err != nil {
			return nil, err
		}
		if !retry {
			return record, nil
		}
	}
	return nil, fmt.Errorf("create verification record: %w", sentinel.ErrConflict)
}

func (s *PostgresStore) updateOnce(ctx context.Context, subjectID id.SubjectID, mutate models.Mutation) (*models.Record, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	row := tx.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM verification_records WHERE subject_id = $1 FOR UPDATE`,
		uuid.UUID(subjectID))
	current, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		current = nil
	} else if err != nil {
		return nil, false, fmt.Errorf("lock verification record: %w", err)
	}

	next, err := mutate(current)
	if err != nil {
		return nil, false, err
	}
	if next == nil {
		return current, false, nil
	}

	cols, err := encodeCategories(next)
	if err != nil {
		return nil, false, err
	}

	if current == nil {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO verification_records
				(subject_id, email, phone, identity, education, employment, skills, created_at, updated_at)
			VALUES ($1, $2::jsonb, $3::jsonb, $4::jsonb, $5::jsonb, $6::jsonb, $7::jsonb, $8, $9)
			ON CONFLICT (subject_id) DO NOTHING`,
			uuid.UUID(subjectID), cols[0], cols[1], cols[2], cols[3], cols[4], cols[5], next.CreatedAt, next.UpdatedAt)
		if err != nil {
			return nil, false, fmt.Errorf("insert verification record: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return nil, true, nil
		}
	} else {
		_, err := tx.ExecContext(ctx, `
			UPDATE verification_records SET
				email = $2::jsonb, phone = $3::jsonb, identity = $4::jsonb,
				education = $5::jsonb, employment = $6::jsonb, skills = $7::jsonb,
				updated_at = $8
			WHERE subject_id = $1`,
			uuid.UUID(subjectID), cols[0], cols[1], cols[2], cols[3], cols[4], cols[5], next.UpdatedAt)
		if err != nil {
			return nil, false, fmt.Errorf("update verification record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit verification record: %w", err)
	}
	return next, false, nil
}

// encodeCategories returns the six sub-records as JSON, in column order.
func encodeCategories(r *models.Record) ([6]string, error) {
	var out [6]string
	parts := []any{r.Email, r.Phone, r.Identity, r.Education, r.Employment, r.Skills}
	for i, p := range parts {
		b, err := json.Marshal(p)
		if err != nil {
			return out, fmt.Errorf("encode verification record: %w", err)
		}
		out[i] = string(b)
	}
	return out, nil
}

func scanRecord(row rowScanner) (*models.Record, error) {
	var (
		subjectID uuid.UUID
		cols      [6][]byte
		record    models.Record
	)
	if err := row.Scan(&subjectID, &cols[0], &cols[1], &cols[2], &cols[3], &cols[4], &cols[5],
		&record.CreatedAt, &record.UpdatedAt); err != nil {
		return nil, err
	}
	record.SubjectID = id.SubjectID(subjectID)

	targets := []any{&record.Email, &record.Phone, &record.Identity, &record.Education, &record.Employment, &record.Skills}
	for i, target := range targets {
		if err := json.Unmarshal(cols[i], target); err != nil {
			return nil, fmt.Errorf("decode %s: %w", categoryColumns[i], err)
		}
	}
	return &record, nil
}

var categoryColumns = [6]string{"email", "phone", "identity", "education", "employment", "skills"}
