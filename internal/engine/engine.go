// Package engine drives tasks through their lifecycle: it starts tasks,
// dispatches their method executions, decides when a task finishes or
// needs validation and cascades to children.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/abd3rr/workflow-api/internal/actions"
	"github.com/abd3rr/workflow-api/internal/db"
	"github.com/abd3rr/workflow-api/internal/metrics"
	"github.com/abd3rr/workflow-api/internal/notify"
	"github.com/abd3rr/workflow-api/pkg/models"
	"github.com/sirupsen/logrus"
)

// Engine serializes every mutating operation behind one lock and runs each
// in a single store transaction.
type Engine struct {
	db         *db.DB
	dispatcher *actions.Dispatcher
	notifier   *notify.FanOut
	log        logrus.FieldLogger
	metrics    *metrics.Metrics
	now        func() time.Time

	mu sync.Mutex
}

type Option func(*Engine)

// WithClock replaces time.Now for start and finish stamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func New(store *db.DB, dispatcher *actions.Dispatcher, notifier *notify.FanOut, log logrus.FieldLogger, opts ...Option) *Engine {
	e := &Engine{
		db:         store,
		dispatcher: dispatcher,
		notifier:   notifier,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Catalog returns the method catalog tasks are created against.
func (e *Engine) Catalog() *actions.Catalog {
	return e.dispatcher.Catalog()
}

type transition struct {
	from, to models.TaskStatus
}

// unit collects what a mutating operation produced so it can be published
// once the transaction has committed.
type unit struct {
	q             *db.Queries
	notifications []*models.Notification
	transitions   []transition
}

func (e *Engine) mutate(ctx context.Context, fn func(u *unit) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var u *unit
	err := e.db.WithTx(ctx, func(q *db.Queries) error {
		u = &unit{q: q}
		return fn(u)
	})
	if err != nil {
		return err
	}

	for _, t := range u.transitions {
		e.metrics.Transition(string(t.from), string(t.to))
	}
	e.notifier.Publish(ctx, u.notifications)
	return nil
}

func validateStatusTransition(from, to models.TaskStatus) bool {
	switch from {
	case models.TaskStatusPending:
		return to == models.TaskStatusStarting
	case models.TaskStatusStarting:
		return to == models.TaskStatusWaitingForValidation || to == models.TaskStatusFinished
	case models.TaskStatusWaitingForValidation:
		return to == models.TaskStatusFinished || to == models.TaskStatusStarting
	}
	return false
}

// setStatus applies a legal transition, stamping StartedAt on entry to
// STARTING and FinishedAt on entry to FINISHED.
func (e *Engine) setStatus(ctx context.Context, u *unit, t *models.Task, to models.TaskStatus, op string) error {
	from := t.Status
	if !validateStatusTransition(from, to) {
		return &models.InvalidStateError{TaskID: t.ID, Status: from, Op: op}
	}

	now := e.now()
	switch to {
	case models.TaskStatusStarting:
		t.StartedAt = &now
	case models.TaskStatusFinished:
		t.FinishedAt = &now
	}
	t.Status = to

	if err := u.q.SaveTaskState(ctx, t); err != nil {
		return err
	}
	u.transitions = append(u.transitions, transition{from: from, to: to})

	e.log.WithFields(logrus.Fields{
		"task_id": t.ID,
		"from":    from,
		"to":      to,
	}).Info("task status changed")
	return nil
}

func (e *Engine) notify(ctx context.Context, u *unit, t *models.Task, message string) error {
	created, err := e.notifier.Notify(ctx, u.q, t, message)
	if err != nil {
		return err
	}
	u.notifications = append(u.notifications, created...)
	return nil
}

// start moves a PENDING task to STARTING and notifies its job members.
func (e *Engine) start(ctx context.Context, u *unit, t *models.Task) error {
	if err := e.setStatus(ctx, u, t, models.TaskStatusStarting, "start"); err != nil {
		return err
	}
	return e.notify(ctx, u, t, startedMessage(t))
}

// startPendingChildren starts every PENDING child of t in stored order.
func (e *Engine) startPendingChildren(ctx context.Context, u *unit, t *models.Task) ([]*models.Task, error) {
	children, err := u.q.GetChildren(ctx, t.ID)
	if err != nil {
		return nil, err
	}

	started := []*models.Task{}
	for _, child := range children {
		if child.Status != models.TaskStatusPending {
			continue
		}
		if err := e.start(ctx, u, child); err != nil {
			return nil, err
		}
		started = append(started, child)
	}
	return started, nil
}

// startNextChild starts the first PENDING child of t, if any.
func (e *Engine) startNextChild(ctx context.Context, u *unit, t *models.Task) (*models.Task, error) {
	children, err := u.q.GetChildren(ctx, t.ID)
	if err != nil {
		return nil, err
	}

	for _, child := range children {
		if child.Status == models.TaskStatusPending {
			if err := e.start(ctx, u, child); err != nil {
				return nil, err
			}
			return child, nil
		}
	}
	return nil, nil
}

func getTask(ctx context.Context, q *db.Queries, id string) (*models.Task, error) {
	t, err := q.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, models.NotFound("task", id)
	}
	return t, nil
}

func startedMessage(t *models.Task) string {
	return fmt.Sprintf("The task '%s' has started.", t.Name)
}

func validationMessage(t *models.Task) string {
	return fmt.Sprintf("Task %s is waiting for validation.", t.Name)
}

func invalidatedMessage(t *models.Task) string {
	return fmt.Sprintf("The task '%s' has been invalidated. Please review.", t.Name)
}
