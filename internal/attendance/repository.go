package attendance

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"faceattend/internal/store"
)

// SQLRepository keeps records in the attendance table.
type SQLRepository struct {
	db sqlx.ExtContext
}

// NewSQLRepository creates a repository over a connection or transaction.
func NewSQLRepository(db sqlx.ExtContext) *SQLRepository {
	return &SQLRepository{db: db}
}

func (r *SQLRepository) Find(ctx context.Context, identityID, day string) (Record, error) {
	var rec Record
	err := sqlx.GetContext(ctx, r.db, &rec, r.db.Rebind(`
		SELECT id, identity_id, day, marked_time, created_at
		FROM attendance WHERE identity_id = ? AND day = ?
	`), identityID, day)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

// Insert relies on UNIQUE(identity_id, day); a violation maps to ErrDuplicate.
func (r *SQLRepository) Insert(ctx context.Context, rec Record) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO attendance (id, identity_id, day, marked_time, created_at)
		VALUES (?, ?, ?, ?, ?)
	`), rec.ID, rec.IdentityID, rec.Day, rec.MarkedTime, rec.CreatedAt)
	if store.IsUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *SQLRepository) ListBetween(ctx context.Context, identityID, fromDay, toDay string) ([]Record, error) {
	out := []Record{}
	err := sqlx.SelectContext(ctx, r.db, &out, r.db.Rebind(`
		SELECT id, identity_id, day, marked_time, created_at
		FROM attendance
		WHERE identity_id = ? AND day >= ? AND day <= ?
		ORDER BY day
	`), identityID, fromDay, toDay)
	return out, err
}
