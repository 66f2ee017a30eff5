package identity

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound        = errors.New("identity not found")
	ErrDuplicateUserID = errors.New("user id already exists")
	ErrInvalidRole     = errors.New("invalid role")
)

// Role is the closed set of identity kinds.
type Role string

const (
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

// ParseRole converts a stored or claimed role string.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleStudent:
		return RoleStudent, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
}

// Identity is a person known to the system. Only students carry a reference image.
type Identity struct {
	ID           string    `db:"id" json:"id"`
	UserID       string    `db:"user_id" json:"user_id"`
	Name         string    `db:"name" json:"name"`
	Role         Role      `db:"role" json:"role"`
	PasswordHash string    `db:"password_hash" json:"-"`
	FaceImage    *string   `db:"face_image" json:"face_image,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Enrolled reports whether a reference image handle is recorded.
func (i Identity) Enrolled() bool {
	return i.FaceImage != nil && *i.FaceImage != ""
}
