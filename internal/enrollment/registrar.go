package enrollment

import (
	"context"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"faceattend/internal/identity"
	"faceattend/internal/storage"
	"faceattend/internal/store"
)

// ErrMissingField is returned when a required registration field is blank.
var ErrMissingField = errors.New("user id, name and password are required")

// NewStudent is the input for registering a student.
type NewStudent struct {
	UserID   string
	Name     string
	Password string
	Filename string
	Image    []byte
}

// Registrar creates a student identity together with its reference image.
type Registrar struct {
	db         *store.DB
	identities *identity.Repository
	enroller   *Enroller
}

func NewRegistrar(db *store.DB, identities *identity.Repository, enroller *Enroller) *Registrar {
	return &Registrar{db: db, identities: identities, enroller: enroller}
}

// Register validates and stores the reference image, then writes the
// identity in one transaction. If the write fails the image is removed, so
// either both exist afterwards or neither does.
func (r *Registrar) Register(ctx context.Context, in NewStudent) (identity.Identity, error) {
	in.UserID = strings.TrimSpace(in.UserID)
	in.Name = strings.TrimSpace(in.Name)
	if in.UserID == "" || in.Name == "" || in.Password == "" {
		return identity.Identity{}, ErrMissingField
	}

	if _, err := r.identities.GetByUserID(ctx, in.UserID); err == nil {
		return identity.Identity{}, identity.ErrDuplicateUserID
	} else if !errors.Is(err, identity.ErrNotFound) {
		return identity.Identity{}, err
	}

	hash, err := identity.HashPassword(in.Password)
	if err != nil {
		return identity.Identity{}, err
	}
	student := identity.Identity{UserID: in.UserID, Name: in.Name, Role: identity.RoleStudent, PasswordHash: hash}

	handle, err := r.enroller.Enroll(ctx, student, in.Filename, in.Image)
	if errors.Is(err, storage.ErrExists) {
		// a concurrent registration of the same user id committed first
		return identity.Identity{}, identity.ErrDuplicateUserID
	}
	if err != nil {
		return identity.Identity{}, err
	}
	student.FaceImage = &handle

	err = r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		return r.identities.WithTx(tx).Create(ctx, &student)
	})
	if err != nil {
		if rmErr := r.enroller.Remove(ctx, handle); rmErr != nil {
			logrus.WithError(rmErr).WithField("image", handle).Error("remove orphaned reference image")
		}
		return identity.Identity{}, err
	}
	return student, nil
}

// ReplaceFace enrolls a new reference image for an existing student and
// points the identity at it. The previous image is removed once the new one
// is recorded; on failure the new image is removed and the old one kept.
func (r *Registrar) ReplaceFace(ctx context.Context, student identity.Identity, filename string, image []byte) (identity.Identity, error) {
	handle, err := r.enroller.Enroll(ctx, student, filename, image)
	if err != nil {
		return identity.Identity{}, err
	}
	log := logrus.WithFields(logrus.Fields{"identity_id": student.ID, "image": handle})

	err = r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		return r.identities.WithTx(tx).SetFaceImage(ctx, student.ID, handle)
	})
	if err != nil {
		if rmErr := r.enroller.Remove(ctx, handle); rmErr != nil {
			log.WithError(rmErr).Error("remove orphaned reference image")
		}
		return identity.Identity{}, err
	}

	if student.Enrolled() && *student.FaceImage != handle {
		if rmErr := r.enroller.Remove(ctx, *student.FaceImage); rmErr != nil {
			log.WithError(rmErr).WithField("previous", *student.FaceImage).Warn("remove previous reference image")
		}
	}
	student.FaceImage = &handle
	log.Info("reference image replaced")
	return student, nil
}
