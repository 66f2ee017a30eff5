package store_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faceattend/internal/store"
	"faceattend/internal/store/storetest"
)

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := storetest.SQLite(t)
	require.NoError(t, db.Migrate(ctx))

	var versions []string
	require.NoError(t, db.Client.SelectContext(ctx, &versions, `SELECT version FROM schema_migrations`))
	assert.Equal(t, []string{"0001_init.sql"}, versions)
}

func TestUniqueViolationFromSQLite(t *testing.T) {
	ctx := context.Background()
	db := storetest.SQLite(t)

	insert := `INSERT INTO identities (id, user_id, name, role, password_hash) VALUES (?, ?, ?, ?, ?)`
	_, err := db.Client.ExecContext(ctx, insert, "a", "s1", "A", "student", "x")
	require.NoError(t, err)
	_, err = db.Client.ExecContext(ctx, insert, "b", "s1", "B", "student", "x")
	require.Error(t, err)
	assert.True(t, store.IsUniqueViolation(err))
	assert.True(t, store.IsUniqueViolation(fmt.Errorf("wrapped: %w", err)))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.False(t, store.IsUniqueViolation(nil))
	assert.False(t, store.IsUniqueViolation(errors.New("boom")))
	assert.True(t, store.IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, store.IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
}

func TestWithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	db := storetest.SQLite(t)

	boom := errors.New("boom")
	err := db.WithTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO identities (id, user_id, name, role, password_hash) VALUES ('a', 's1', 'A', 'student', 'x')`)
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, db.Client.GetContext(ctx, &n, `SELECT COUNT(*) FROM identities`))
	assert.Zero(t, n)
}

func TestNewDBRejectsUnknownDriver(t *testing.T) {
	_, err := store.NewDB(context.Background(), "oracle", "x")
	assert.Error(t, err)
}

func TestNewRedisAddressForms(t *testing.T) {
	r, err := store.NewRedis("localhost:6380")
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, "localhost:6380", r.Client.Options().Addr)
	assert.Equal(t, time.Second, r.Client.Options().ReadTimeout)

	r, err = store.NewRedis("redis://:secret@cache:6379/2")
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, "cache:6379", r.Client.Options().Addr)
	assert.Equal(t, 2, r.Client.Options().DB)
	assert.Equal(t, "secret", r.Client.Options().Password)

	_, err = store.NewRedis("redis://cache:6379/notadb")
	assert.Error(t, err)

	var nilRedis *store.Redis
	assert.False(t, nilRedis.Healthy(context.Background()))
	assert.NoError(t, nilRedis.Close())
}
