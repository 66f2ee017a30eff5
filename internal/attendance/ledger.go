package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"faceattend/internal/metrics"
	"faceattend/internal/queue"
)

// EventMarked is published for every NewlyMarked result.
const EventMarked = "attendance.marked"

// DefaultPublishTimeout bounds how long a mark waits on the event publisher.
const DefaultPublishTimeout = 2 * time.Second

// MarkedEvent is the body of an EventMarked message.
type MarkedEvent struct {
	IdentityID string `json:"identity_id"`
	Day        string `json:"day"`
	MarkedTime string `json:"marked_time"`
}

// Ledger implements the idempotent once-per-day mark.
type Ledger struct {
	repo    Repository
	clock   func() time.Time
	loc     *time.Location
	events  queue.Publisher
	timeout time.Duration
	metrics *metrics.Metrics
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides time.Now for the marked time.
func WithClock(clock func() time.Time) Option {
	return func(l *Ledger) { l.clock = clock }
}

// WithLocation sets the zone that decides calendar days. Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(l *Ledger) {
		if loc != nil {
			l.loc = loc
		}
	}
}

// WithEvents publishes EventMarked messages on p, best effort.
func WithEvents(p queue.Publisher) Option {
	return func(l *Ledger) { l.events = p }
}

// WithPublishTimeout overrides DefaultPublishTimeout.
func WithPublishTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithMetrics counts mark results.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

// NewLedger creates a ledger over repo.
func NewLedger(repo Repository, opts ...Option) *Ledger {
	l := &Ledger{repo: repo, clock: time.Now, loc: time.Local, timeout: DefaultPublishTimeout}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Location is the zone that decides calendar days.
func (l *Ledger) Location() *time.Location { return l.loc }

// Day formats the calendar day of t in the ledger's zone.
func (l *Ledger) Day(t time.Time) string {
	return t.In(l.loc).Format(dayLayout)
}

// MarkPresent records identityID as present on the day of on. A second call
// for the same day returns the first record unchanged. Concurrent callers
// are serialized by the repository's uniqueness constraint: the loser sees
// ErrDuplicate, re-reads, and reports AlreadyMarked.
func (l *Ledger) MarkPresent(ctx context.Context, identityID string, on time.Time) (MarkResult, Record, error) {
	if identityID == "" {
		return AlreadyMarked, Record{}, errors.New("identity id required")
	}
	day := l.Day(on)

	existing, err := l.repo.Find(ctx, identityID, day)
	switch {
	case err == nil:
		l.metrics.Mark(AlreadyMarked.String())
		return AlreadyMarked, existing, nil
	case !errors.Is(err, ErrNotFound):
		return AlreadyMarked, Record{}, fmt.Errorf("find attendance: %w", err)
	}

	now := l.clock()
	rec := Record{
		ID:         uuid.NewString(),
		IdentityID: identityID,
		Day:        day,
		MarkedTime: now.In(l.loc).Format(timeLayout),
		CreatedAt:  now.UTC().Truncate(time.Second),
	}
	err = l.repo.Insert(ctx, rec)
	if errors.Is(err, ErrDuplicate) {
		existing, ferr := l.repo.Find(ctx, identityID, day)
		if ferr != nil {
			return AlreadyMarked, Record{}, fmt.Errorf("re-read attendance after conflict: %w", ferr)
		}
		l.metrics.Mark(AlreadyMarked.String())
		return AlreadyMarked, existing, nil
	}
	if err != nil {
		return AlreadyMarked, Record{}, fmt.Errorf("insert attendance: %w", err)
	}

	l.metrics.Mark(NewlyMarked.String())
	l.publish(ctx, rec)
	return NewlyMarked, rec, nil
}

func (l *Ledger) publish(ctx context.Context, rec Record) {
	if l.events == nil {
		return
	}
	log := logrus.WithFields(logrus.Fields{"identity_id": rec.IdentityID, "day": rec.Day})
	msg, err := queue.NewMessage(EventMarked, MarkedEvent{IdentityID: rec.IdentityID, Day: rec.Day, MarkedTime: rec.MarkedTime})
	if err != nil {
		log.WithError(err).Warn("encode attendance event")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	if err := l.events.Publish(ctx, msg); err != nil {
		l.metrics.Event(EventMarked, "dropped")
		log.WithError(err).Warn("attendance event dropped")
		return
	}
	l.metrics.Event(EventMarked, "published")
}

// MonthlyReport lists the days identityID was present in year/month.
func (l *Ledger) MonthlyReport(ctx context.Context, identityID string, year, month int) (Report, error) {
	if month < 1 || month > 12 {
		return Report{}, fmt.Errorf("%w: %d", ErrInvalidMonth, month)
	}
	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)

	recs, err := l.repo.ListBetween(ctx, identityID, first.Format(dayLayout), last.Format(dayLayout))
	if err != nil {
		return Report{}, fmt.Errorf("list attendance: %w", err)
	}

	report := Report{Year: year, Month: month, PresentDays: []int{}, Records: []Entry{}}
	for _, r := range recs {
		d, err := time.Parse(dayLayout, r.Day)
		if err != nil {
			return Report{}, fmt.Errorf("parse stored day %q: %w", r.Day, err)
		}
		report.PresentDays = append(report.PresentDays, d.Day())
		report.Records = append(report.Records, Entry{Date: r.Day, Time: r.MarkedTime})
	}
	return report, nil
}
