// Package notify turns task events into per-user notifications.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/abd3rr/workflow-api/internal/bus"
	"github.com/abd3rr/workflow-api/internal/metrics"
	"github.com/abd3rr/workflow-api/pkg/models"
	"github.com/sirupsen/logrus"
)

// Store is the part of the task store the fan-out needs.
type Store interface {
	ListTaskRecipients(ctx context.Context, taskID string) ([]string, error)
	CreateNotification(ctx context.Context, n *models.Notification) error
	GetChildren(ctx context.Context, taskID string) ([]*models.Task, error)
}

// FanOut writes one notification per recipient and mirrors each on the bus
// under <prefix>.notifications.<user id>.
type FanOut struct {
	pub     bus.Publisher
	prefix  string
	log     logrus.FieldLogger
	metrics *metrics.Metrics
}

func New(pub bus.Publisher, prefix string, log logrus.FieldLogger, m *metrics.Metrics) *FanOut {
	return &FanOut{pub: pub, prefix: prefix, log: log, metrics: m}
}

// Notify notifies every member of every job assigned to task. A user in
// two assigned jobs is notified twice.
func (f *FanOut) Notify(ctx context.Context, store Store, task *models.Task, message string) ([]*models.Notification, error) {
	created, err := f.notifyTask(ctx, store, task.ID, message)
	if err != nil {
		return nil, err
	}
	f.metrics.Notifications("task", len(created))
	return created, nil
}

// NotifyForValidation notifies the job members of each child of task. Each
// notification targets the child it was resolved from.
func (f *FanOut) NotifyForValidation(ctx context.Context, store Store, task *models.Task, message string) ([]*models.Notification, error) {
	children, err := store.GetChildren(ctx, task.ID)
	if err != nil {
		return nil, err
	}

	created := []*models.Notification{}
	for _, child := range children {
		batch, err := f.notifyTask(ctx, store, child.ID, message)
		if err != nil {
			return nil, err
		}
		created = append(created, batch...)
	}
	f.metrics.Notifications("validation", len(created))
	return created, nil
}

func (f *FanOut) notifyTask(ctx context.Context, store Store, taskID, message string) ([]*models.Notification, error) {
	recipients, err := store.ListTaskRecipients(ctx, taskID)
	if err != nil {
		return nil, err
	}

	created := make([]*models.Notification, 0, len(recipients))
	for _, userID := range recipients {
		n := &models.Notification{TaskID: taskID, UserID: userID, Message: message}
		if err := store.CreateNotification(ctx, n); err != nil {
			return nil, fmt.Errorf("failed to notify user %s: %w", userID, err)
		}
		created = append(created, n)
	}
	return created, nil
}

// Publish mirrors notifications on the bus. Delivery is best effort;
// failures are logged and dropped.
func (f *FanOut) Publish(ctx context.Context, notifications []*models.Notification) {
	for _, n := range notifications {
		data, err := json.Marshal(n)
		if err != nil {
			f.log.WithError(err).WithField("notification_id", n.ID).Warn("failed to encode notification")
			continue
		}
		subject := f.prefix + ".notifications." + n.UserID
		if err := f.pub.Publish(ctx, subject, data); err != nil {
			f.log.WithError(err).WithFields(logrus.Fields{
				"task_id": n.TaskID,
				"user_id": n.UserID,
			}).Warn("failed to publish notification")
		}
	}
}
