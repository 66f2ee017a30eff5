package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"faceattend/internal/store"
)

const identityColumns = `id, user_id, name, role, password_hash, face_image, created_at`

// Repository persists identities through sqlx so it runs on Postgres and SQLite.
type Repository struct {
	db sqlx.ExtContext
}

// NewRepository creates a repository over a connection or transaction.
func NewRepository(db sqlx.ExtContext) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *sqlx.Tx) *Repository {
	return &Repository{db: tx}
}

// Create inserts a new identity, filling ID and CreatedAt when unset.
func (r *Repository) Create(ctx context.Context, id *Identity) error {
	if _, err := ParseRole(string(id.Role)); err != nil {
		return err
	}
	if id.ID == "" {
		id.ID = uuid.NewString()
	}
	if id.CreatedAt.IsZero() {
		id.CreatedAt = time.Now().UTC().Truncate(time.Second)
	}
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO identities (id, user_id, name, role, password_hash, face_image, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`), id.ID, id.UserID, id.Name, string(id.Role), id.PasswordHash, id.FaceImage, id.CreatedAt)
	if store.IsUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrDuplicateUserID, id.UserID)
	}
	if err != nil {
		return fmt.Errorf("insert identity: %w", err)
	}
	return nil
}

// SetFaceImage records the reference image handle of a student.
func (r *Repository) SetFaceImage(ctx context.Context, id, handle string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE identities SET face_image = ? WHERE id = ? AND role = ?
	`), handle, id, string(RoleStudent))
	if err != nil {
		return fmt.Errorf("set face image: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) get(ctx context.Context, where string, arg any) (Identity, error) {
	var out Identity
	err := sqlx.GetContext(ctx, r.db, &out, r.db.Rebind(`SELECT `+identityColumns+` FROM identities WHERE `+where+` = ?`), arg)
	if errors.Is(err, sql.ErrNoRows) {
		return Identity{}, ErrNotFound
	}
	if err != nil {
		return Identity{}, fmt.Errorf("get identity: %w", err)
	}
	return out, nil
}

// GetByID looks up an identity by its stable id.
func (r *Repository) GetByID(ctx context.Context, id string) (Identity, error) {
	return r.get(ctx, "id", id)
}

// GetByUserID looks up an identity by login handle.
func (r *Repository) GetByUserID(ctx context.Context, userID string) (Identity, error) {
	return r.get(ctx, "user_id", userID)
}

// ListStudents returns all students ordered by name.
func (r *Repository) ListStudents(ctx context.Context) ([]Identity, error) {
	out := []Identity{}
	err := sqlx.SelectContext(ctx, r.db, &out, r.db.Rebind(`
		SELECT `+identityColumns+` FROM identities WHERE role = ? ORDER BY name, user_id
	`), string(RoleStudent))
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	return out, nil
}

// HasAdmin reports whether at least one admin exists.
func (r *Repository) HasAdmin(ctx context.Context) (bool, error) {
	var n int
	err := sqlx.GetContext(ctx, r.db, &n, r.db.Rebind(`SELECT COUNT(*) FROM identities WHERE role = ?`), string(RoleAdmin))
	if err != nil {
		return false, fmt.Errorf("count admins: %w", err)
	}
	return n > 0, nil
}

// EnsureAdmin creates the default admin when no admin exists yet.
// It reports whether an identity was created.
func (r *Repository) EnsureAdmin(ctx context.Context, userID, password string) (bool, error) {
	ok, err := r.HasAdmin(ctx)
	if err != nil || ok {
		return false, err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return false, err
	}
	err = r.Create(ctx, &Identity{UserID: userID, Name: "Administrator", Role: RoleAdmin, PasswordHash: hash})
	if errors.Is(err, ErrDuplicateUserID) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Authenticate returns the identity when the password matches.
func (r *Repository) Authenticate(ctx context.Context, userID, password string) (Identity, error) {
	id, err := r.GetByUserID(ctx, userID)
	if err != nil {
		return Identity{}, err
	}
	if !CheckPassword(id.PasswordHash, password) {
		return Identity{}, ErrNotFound
	}
	return id, nil
}
