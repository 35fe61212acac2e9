package db

import (
	"context"
	"fmt"

	"github.com/abd3rr/workflow-api/pkg/models"
	"github.com/google/uuid"
)

// CreateNotification inserts an unread notification.
func (q *Queries) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}

	query := `
		INSERT INTO notifications (id, task_id, user_id, message, read)
		VALUES (?, ?, ?, ?, ?)
		RETURNING created_at
	`
	err := q.exec.QueryRowContext(ctx, query,
		n.ID, n.TaskID, n.UserID, n.Message, boolToInt(n.Read),
	).Scan(&n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	q.triggerChange(ctx)
	return nil
}

// ListNotificationsForUser returns a user's notifications, oldest first.
func (q *Queries) ListNotificationsForUser(ctx context.Context, userID string, unreadOnly bool) ([]*models.Notification, error) {
	query := `
		SELECT id, task_id, user_id, message, read, created_at
		FROM notifications
		WHERE user_id = ?
	`
	if unreadOnly {
		query += " AND read = 0"
	}
	query += " ORDER BY created_at, rowid"
	return q.queryNotifications(ctx, query, userID)
}

// ListNotificationsForTask returns the notifications targeting a task.
func (q *Queries) ListNotificationsForTask(ctx context.Context, taskID string) ([]*models.Notification, error) {
	query := `
		SELECT id, task_id, user_id, message, read, created_at
		FROM notifications
		WHERE task_id = ?
		ORDER BY created_at, rowid
	`
	return q.queryNotifications(ctx, query, taskID)
}

func (q *Queries) queryNotifications(ctx context.Context, query string, args ...any) ([]*models.Notification, error) {
	rows, err := q.exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	notifications := []*models.Notification{}
	for rows.Next() {
		n := &models.Notification{}
		var read int
		if err := rows.Scan(&n.ID, &n.TaskID, &n.UserID, &n.Message, &read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.Read = read == 1
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return notifications, nil
}

func (q *Queries) MarkNotificationRead(ctx context.Context, id string) error {
	res, err := q.exec.ExecContext(ctx, `UPDATE notifications SET read = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if err := affectedOne(res, "notification", id); err != nil {
		return err
	}

	q.triggerChange(ctx)
	return nil
}
