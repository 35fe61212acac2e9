package db

import (
	"context"
	"fmt"

	"github.com/abd3rr/workflow-api/pkg/models"
	"github.com/google/uuid"
)

// CreateFeedback appends a feedback entry to a task.
func (q *Queries) CreateFeedback(ctx context.Context, f *models.Feedback) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}

	query := `
		INSERT INTO feedback (id, task_id, user_id, content)
		VALUES (?, ?, ?, ?)
		RETURNING created_at
	`
	if err := q.exec.QueryRowContext(ctx, query, f.ID, f.TaskID, f.UserID, f.Content).Scan(&f.CreatedAt); err != nil {
		return fmt.Errorf("failed to create feedback: %w", err)
	}

	q.triggerChange(ctx)
	return nil
}

// ListFeedback returns the feedback of a task, oldest first.
func (q *Queries) ListFeedback(ctx context.Context, taskID string) ([]*models.Feedback, error) {
	rows, err := q.exec.QueryContext(ctx, `
		SELECT id, task_id, user_id, content, created_at
		FROM feedback
		WHERE task_id = ?
		ORDER BY created_at, rowid
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	defer rows.Close()

	entries := []*models.Feedback{}
	for rows.Next() {
		f := &models.Feedback{}
		if err := rows.Scan(&f.ID, &f.TaskID, &f.UserID, &f.Content, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan feedback: %w", err)
		}
		entries = append(entries, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return entries, nil
}
