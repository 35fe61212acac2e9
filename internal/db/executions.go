package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/abd3rr/workflow-api/pkg/models"
	"github.com/google/uuid"
)

const executionColumns = `id, task_id, method_id, method_name, status, error, updated_at`

func scanExecution(row rowScanner) (*models.MethodExecution, error) {
	e := &models.MethodExecution{}
	err := row.Scan(&e.ID, &e.TaskID, &e.MethodID, &e.MethodName, &e.Status, &e.Error, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (q *Queries) createExecution(ctx context.Context, taskID string, m *models.Method, position int) (*models.MethodExecution, error) {
	e := &models.MethodExecution{
		ID:         uuid.New().String(),
		TaskID:     taskID,
		MethodID:   &m.ID,
		MethodName: m.Name,
		Status:     models.ExecutionStatusPending,
	}

	query := `
		INSERT INTO method_executions (id, task_id, method_id, method_name, position, status)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING updated_at
	`
	err := q.exec.QueryRowContext(ctx, query,
		e.ID, e.TaskID, m.ID, m.Name, position, e.Status,
	).Scan(&e.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create method execution for %s: %w", m.Name, err)
	}
	return e, nil
}

// GetExecution retrieves a method execution by its ID.
func (q *Queries) GetExecution(ctx context.Context, id string) (*models.MethodExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM method_executions WHERE id = ?`
	e, err := scanExecution(q.exec.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get method execution: %w", err)
	}
	return e, nil
}

// ListExecutions returns the executions of a task in creation order.
func (q *Queries) ListExecutions(ctx context.Context, taskID string) ([]*models.MethodExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM method_executions WHERE task_id = ? ORDER BY position`
	rows, err := q.exec.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list method executions: %w", err)
	}
	defer rows.Close()

	executions := []*models.MethodExecution{}
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan method execution: %w", err)
		}
		executions = append(executions, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return executions, nil
}

// UpdateExecutionStatus records the status of an execution. errMsg is the
// dispatch error, or nil to clear it.
func (q *Queries) UpdateExecutionStatus(ctx context.Context, id string, status models.ExecutionStatus, errMsg *string) error {
	query := `
		UPDATE method_executions
		SET status = ?, error = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	res, err := q.exec.ExecContext(ctx, query, status, errMsg, id)
	if err != nil {
		return fmt.Errorf("failed to update method execution: %w", err)
	}
	if err := affectedOne(res, "method execution", id); err != nil {
		return err
	}

	q.triggerChange(ctx)
	return nil
}
