// Package worker consumes attendance events published by the api.
package worker

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"faceattend/internal/attendance"
	"faceattend/internal/identity"
	"faceattend/internal/metrics"
	"faceattend/internal/queue"
)

// Worker resolves each attendance event to its identity and logs it.
type Worker struct {
	queue      queue.Queue
	identities *identity.Repository
	metrics    *metrics.Metrics
	log        *logrus.Entry
}

func New(q queue.Queue, identities *identity.Repository, m *metrics.Metrics) *Worker {
	return &Worker{queue: q, identities: identities, metrics: m, log: logrus.WithField("component", "worker")}
}

// Run processes messages until ctx is cancelled or the queue closes.
func (w *Worker) Run(ctx context.Context) error {
	messages, err := w.queue.Consume(ctx)
	if err != nil {
		return err
	}
	w.log.Info("worker started, waiting for messages")
	for msg := range messages {
		status := "ok"
		if err := w.Handle(ctx, msg); err != nil {
			status = "failed"
			w.log.WithError(err).WithField("type", msg.Type).Warn("event failed")
		}
		w.metrics.Event(msg.Type, status)
	}
	w.log.Info("worker stopped")
	return nil
}

// Handle processes one message. Unknown types are ignored.
func (w *Worker) Handle(ctx context.Context, msg queue.Message) error {
	if msg.Type != attendance.EventMarked {
		w.log.WithField("type", msg.Type).Debug("ignoring message")
		return nil
	}
	var evt attendance.MarkedEvent
	if err := msg.Decode(&evt); err != nil {
		return err
	}
	id, err := w.identities.GetByID(ctx, evt.IdentityID)
	if errors.Is(err, identity.ErrNotFound) {
		w.log.WithField("identity_id", evt.IdentityID).Warn("attendance event for unknown identity")
		return nil
	}
	if err != nil {
		return err
	}
	w.log.WithFields(logrus.Fields{
		"identity_id": id.ID,
		"user_id":     id.UserID,
		"name":        id.Name,
		"day":         evt.Day,
		"marked_time": evt.MarkedTime,
	}).Info("attendance recorded")
	return nil
}
