package enrollment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faceattend/internal/face/facetest"
	"faceattend/internal/identity"
	"faceattend/internal/storage"
	"faceattend/internal/store/storetest"
)

func newRegistrar(t *testing.T) (*Registrar, *identity.Repository, string) {
	t.Helper()
	db := storetest.SQLite(t)
	dir := t.TempDir()
	images, err := storage.NewLocal(dir)
	require.NoError(t, err)
	repo := identity.NewRepository(db.Client)
	e := New(&facetest.Extractor{}, images, 0, nil, WithClock(func() time.Time { return time.Unix(1700000000, 0) }))
	return NewRegistrar(db, repo, e), repo, dir
}

func TestRegisterCreatesIdentityAndImage(t *testing.T) {
	ctx := context.Background()
	r, repo, dir := newRegistrar(t)

	st, err := r.Register(ctx, NewStudent{UserID: " S1 ", Name: "Alice", Password: "pw", Filename: "a.png", Image: facetest.PNG(face1)})
	require.NoError(t, err)
	assert.Equal(t, "S1", st.UserID)

	got, err := repo.GetByUserID(ctx, "S1")
	require.NoError(t, err)
	require.True(t, got.Enrolled())
	assert.Equal(t, "S1_1700000000.png", *got.FaceImage)
	assert.True(t, identity.CheckPassword(got.PasswordHash, "pw"))
	assert.Equal(t, []string{"S1_1700000000.png"}, storedFiles(t, dir))
}

func TestRegisterFailuresLeaveNothing(t *testing.T) {
	ctx := context.Background()
	r, repo, dir := newRegistrar(t)

	_, err := r.Register(ctx, NewStudent{UserID: "S2", Name: "Blank", Password: "pw", Filename: "b.png", Image: facetest.PNG(facetest.Blank)})
	assert.ErrorIs(t, err, ErrNoFaceDetected)
	_, err = repo.GetByUserID(ctx, "S2")
	assert.ErrorIs(t, err, identity.ErrNotFound)

	_, err = r.Register(ctx, NewStudent{UserID: "", Name: "X", Password: "pw"})
	assert.ErrorIs(t, err, ErrMissingField)

	_, err = r.Register(ctx, NewStudent{UserID: "S1", Name: "Alice", Password: "pw", Filename: "a.png", Image: facetest.PNG(face1)})
	require.NoError(t, err)
	_, err = r.Register(ctx, NewStudent{UserID: "S1", Name: "Again", Password: "pw", Filename: "a.png", Image: facetest.PNG(face1)})
	assert.ErrorIs(t, err, identity.ErrDuplicateUserID)

	assert.Len(t, storedFiles(t, dir), 1)
}

func TestConcurrentRegistrationsOfOneUserID(t *testing.T) {
	ctx := context.Background()
	r, repo, dir := newRegistrar(t)

	const n = 4
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = r.Register(ctx, NewStudent{UserID: "S1", Name: "Alice", Password: "pw", Filename: "a.png", Image: facetest.PNG(face1)})
		}()
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, identity.ErrDuplicateUserID)
	}
	assert.Equal(t, 1, ok)

	got, err := repo.GetByUserID(ctx, "S1")
	require.NoError(t, err)
	require.True(t, got.Enrolled())
	assert.Equal(t, []string{*got.FaceImage}, storedFiles(t, dir))
}

func TestReplaceFace(t *testing.T) {
	ctx := context.Background()
	db := storetest.SQLite(t)
	dir := t.TempDir()
	images, err := storage.NewLocal(dir)
	require.NoError(t, err)
	repo := identity.NewRepository(db.Client)
	now := time.Unix(1700000000, 0)
	e := New(&facetest.Extractor{}, images, 0, nil, WithClock(func() time.Time { return now }))
	r := NewRegistrar(db, repo, e)

	st, err := r.Register(ctx, NewStudent{UserID: "S1", Name: "Alice", Password: "pw", Filename: "a.png", Image: facetest.PNG(face1)})
	require.NoError(t, err)

	now = now.Add(time.Minute)
	_, err = r.ReplaceFace(ctx, st, "blank.png", facetest.PNG(facetest.Blank))
	assert.ErrorIs(t, err, ErrNoFaceDetected)
	assert.Equal(t, []string{"S1_1700000000.png"}, storedFiles(t, dir), "a rejected image keeps the old one")

	updated, err := r.ReplaceFace(ctx, st, "b.jpg", facetest.JPEG(face1))
	require.NoError(t, err)
	assert.Equal(t, "S1_1700000060.jpg", *updated.FaceImage)
	assert.Equal(t, []string{"S1_1700000060.jpg"}, storedFiles(t, dir))

	got, err := repo.GetByID(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, "S1_1700000060.jpg", *got.FaceImage)

	admin, err := repo.GetByUserID(ctx, "S1")
	require.NoError(t, err)
	admin.Role = identity.RoleAdmin
	_, err = r.ReplaceFace(ctx, admin, "c.png", facetest.PNG(face1))
	assert.ErrorIs(t, err, ErrNotEnrollable)
}
