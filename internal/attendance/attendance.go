// Package attendance records at most one presence mark per identity per day.
package attendance

import (
	"context"
	"errors"
	"time"
)

const (
	dayLayout  = "2006-01-02"
	timeLayout = "15:04:05"
)

var (
	// ErrNotFound means no record exists for the identity and day.
	ErrNotFound = errors.New("attendance record not found")
	// ErrDuplicate is returned by a Repository when the (identity, day)
	// uniqueness constraint rejects an insert.
	ErrDuplicate = errors.New("attendance already recorded for day")

	ErrInvalidMonth = errors.New("month must be between 1 and 12")
)

// MarkResult tells whether a mark created a record.
type MarkResult int

const (
	AlreadyMarked MarkResult = iota
	NewlyMarked
)

func (r MarkResult) String() string {
	if r == NewlyMarked {
		return "newly_marked"
	}
	return "already_marked"
}

// Record is one day of presence. Day and MarkedTime are local-time text so
// lexical order is chronological.
type Record struct {
	ID         string    `db:"id" json:"id"`
	IdentityID string    `db:"identity_id" json:"identity_id"`
	Day        string    `db:"day" json:"date"`
	MarkedTime string    `db:"marked_time" json:"time"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Repository stores records. Insert must report ErrDuplicate on a
// uniqueness violation rather than overwriting.
type Repository interface {
	Find(ctx context.Context, identityID, day string) (Record, error)
	Insert(ctx context.Context, rec Record) error
	ListBetween(ctx context.Context, identityID, fromDay, toDay string) ([]Record, error)
}

// Entry is one line of a monthly report.
type Entry struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

// Report lists the days an identity was present in one month.
type Report struct {
	Year        int     `json:"year"`
	Month       int     `json:"month"`
	PresentDays []int   `json:"present_days"`
	Records     []Entry `json:"records"`
}
