package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/abd3rr/workflow-api/pkg/models"
	"github.com/google/uuid"
)

const taskColumns = `
	t.id, t.name, t.description, t.step_id, t.status, t.required_verification,
	t.created_at, t.updated_at, t.started_at, t.finished_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	t := &models.Task{}
	var requiredVerification int
	err := row.Scan(
		&t.ID, &t.Name, &t.Description, &t.StepID, &t.Status, &requiredVerification,
		&t.CreatedAt, &t.UpdatedAt, &t.StartedAt, &t.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	t.RequiredVerification = requiredVerification == 1
	return t, nil
}

// CreateTask inserts t together with its parent edges, job assignments,
// file links and one PENDING execution per method. Referenced ids must
// already exist. Run it inside WithTx so a failure leaves nothing behind.
// If t.ID is empty, a new UUID is generated.
func (q *Queries) CreateTask(ctx context.Context, t *models.Task, methods []*models.Method) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Status == "" {
		t.Status = models.TaskStatusPending
	}

	query := `
		INSERT INTO tasks (id, name, description, step_id, status, required_verification)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING created_at, updated_at
	`
	err := q.exec.QueryRowContext(ctx, query,
		t.ID, t.Name, t.Description, t.StepID, t.Status, boolToInt(t.RequiredVerification),
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	for i, parentID := range t.ParentIDs {
		if err := q.createEdge(ctx, parentID, t.ID, i); err != nil {
			return err
		}
	}

	for i, jobID := range t.AssignedJobIDs {
		_, err := q.exec.ExecContext(ctx,
			`INSERT INTO task_jobs (task_id, job_id, position) VALUES (?, ?, ?)`, t.ID, jobID, i)
		if err != nil {
			return fmt.Errorf("failed to assign job %s: %w", jobID, err)
		}
	}

	for _, fileID := range t.FileIDs {
		_, err := q.exec.ExecContext(ctx,
			`INSERT INTO task_files (task_id, file_id) VALUES (?, ?)`, t.ID, fileID)
		if err != nil {
			return fmt.Errorf("failed to attach file %s: %w", fileID, err)
		}
	}

	t.Executions = make([]*models.MethodExecution, 0, len(methods))
	for i, m := range methods {
		e, err := q.createExecution(ctx, t.ID, m, i)
		if err != nil {
			return err
		}
		t.Executions = append(t.Executions, e)
	}

	q.triggerChange(ctx)
	return nil
}

// GetTask retrieves a fully hydrated task by its ID.
func (q *Queries) GetTask(ctx context.Context, id string) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks t WHERE t.id = ?`
	t, err := scanTask(q.exec.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	if err := q.hydrate(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// hydrate loads the edge views, assignments, executions and feedback of t.
func (q *Queries) hydrate(ctx context.Context, t *models.Task) error {
	var err error
	if t.ParentIDs, err = q.parentIDs(ctx, t.ID); err != nil {
		return err
	}
	if t.ChildIDs, err = q.childIDs(ctx, t.ID); err != nil {
		return err
	}
	if t.AssignedJobIDs, err = q.queryIDs(ctx,
		`SELECT job_id FROM task_jobs WHERE task_id = ? ORDER BY position`, t.ID); err != nil {
		return fmt.Errorf("failed to load assigned jobs: %w", err)
	}
	if t.FileIDs, err = q.queryIDs(ctx,
		`SELECT file_id FROM task_files WHERE task_id = ? ORDER BY rowid`, t.ID); err != nil {
		return fmt.Errorf("failed to load files: %w", err)
	}
	if t.Executions, err = q.ListExecutions(ctx, t.ID); err != nil {
		return err
	}
	if t.Feedback, err = q.ListFeedback(ctx, t.ID); err != nil {
		return err
	}
	return nil
}

// ListTasks returns every task, oldest first.
func (q *Queries) ListTasks(ctx context.Context) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks t ORDER BY t.created_at ASC, t.rowid ASC`
	return q.queryTasks(ctx, query)
}

// ListTasksByStep returns the tasks owned by a step.
func (q *Queries) ListTasksByStep(ctx context.Context, stepID string) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks t WHERE t.step_id = ? ORDER BY t.created_at ASC, t.rowid ASC`
	return q.queryTasks(ctx, query, stepID)
}

// ListTasksByProject returns the tasks reachable through step -> phase -> project.
func (q *Queries) ListTasksByProject(ctx context.Context, projectID string) ([]*models.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks t
		JOIN steps s ON t.step_id = s.id
		JOIN phases p ON s.phase_id = p.id
		WHERE p.project_id = ?
		ORDER BY t.created_at ASC, t.rowid ASC
	`
	return q.queryTasks(ctx, query, projectID)
}

// TaskFilter selects tasks. JobIDs and Statuses match any of their values;
// a nil Project, Phase or Step leaves that level unconstrained. All fields
// combine with AND. An empty JobIDs or Statuses list matches nothing.
type TaskFilter struct {
	JobIDs    []string
	Statuses  []models.TaskStatus
	ProjectID *string
	PhaseID   *string
	StepID    *string
}

// FindTasks returns the tasks matching f.
func (q *Queries) FindTasks(ctx context.Context, f TaskFilter) ([]*models.Task, error) {
	if len(f.JobIDs) == 0 || len(f.Statuses) == 0 {
		return []*models.Task{}, nil
	}

	query := `
		SELECT ` + taskColumns + `
		FROM tasks t
		LEFT JOIN steps s ON t.step_id = s.id
		LEFT JOIN phases p ON s.phase_id = p.id
		WHERE EXISTS (
			SELECT 1 FROM task_jobs tj
			WHERE tj.task_id = t.id AND tj.job_id IN (` + placeholders(len(f.JobIDs)) + `)
		)
		AND t.status IN (` + placeholders(len(f.Statuses)) + `)
	`
	args := []any{}
	for _, id := range f.JobIDs {
		args = append(args, id)
	}
	for _, s := range f.Statuses {
		args = append(args, s)
	}

	query, args = appendScope(query, args, f.ProjectID, f.PhaseID, f.StepID)
	query += " ORDER BY t.created_at ASC, t.rowid ASC"

	return q.queryTasks(ctx, query, args...)
}

// ListTasksWaitingForValidation returns WAITING_FOR_VALIDATION tasks with at
// least one child assigned to jobID, optionally scoped to a project, phase
// or step.
func (q *Queries) ListTasksWaitingForValidation(ctx context.Context, jobID string, projectID, phaseID, stepID *string) ([]*models.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks t
		LEFT JOIN steps s ON t.step_id = s.id
		LEFT JOIN phases p ON s.phase_id = p.id
		WHERE t.status = ?
		AND EXISTS (
			SELECT 1
			FROM task_edges e
			JOIN task_jobs tj ON tj.task_id = e.child_id
			WHERE e.parent_id = t.id AND tj.job_id = ?
		)
	`
	args := []any{models.TaskStatusWaitingForValidation, jobID}

	query, args = appendScope(query, args, projectID, phaseID, stepID)
	query += " ORDER BY t.created_at ASC, t.rowid ASC"

	return q.queryTasks(ctx, query, args...)
}

func appendScope(query string, args []any, projectID, phaseID, stepID *string) (string, []any) {
	if projectID != nil {
		query += " AND p.project_id = ?"
		args = append(args, *projectID)
	}
	if phaseID != nil {
		query += " AND s.phase_id = ?"
		args = append(args, *phaseID)
	}
	if stepID != nil {
		query += " AND t.step_id = ?"
		args = append(args, *stepID)
	}
	return query, args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// queryTasks is a helper to execute a query that returns a list of hydrated tasks.
func (q *Queries) queryTasks(ctx context.Context, query string, args ...any) ([]*models.Task, error) {
	rows, err := q.exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}

	tasks := []*models.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("rows error: %w", err)
	}
	// Hydration issues its own queries; close first so the single
	// connection is free.
	rows.Close()

	for _, t := range tasks {
		if err := q.hydrate(ctx, t); err != nil {
			return nil, err
		}
	}
	return tasks, nil
}

// queryIDs runs a single column query and collects the values.
func (q *Queries) queryIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := q.exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateTask updates the descriptive fields of a task.
func (q *Queries) UpdateTask(ctx context.Context, t *models.Task) error {
	query := `
		UPDATE tasks
		SET name = ?, description = ?, step_id = ?, required_verification = ?
		WHERE id = ?
	`
	res, err := q.exec.ExecContext(ctx, query,
		t.Name, t.Description, t.StepID, boolToInt(t.RequiredVerification), t.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	if err := affectedOne(res, "task", t.ID); err != nil {
		return err
	}

	q.triggerChange(ctx)
	return nil
}

// SaveTaskState persists the lifecycle fields of t: status and the start and
// finish stamps. Transition rules are enforced by the caller.
func (q *Queries) SaveTaskState(ctx context.Context, t *models.Task) error {
	query := `
		UPDATE tasks
		SET status = ?, started_at = ?, finished_at = ?
		WHERE id = ?
	`
	res, err := q.exec.ExecContext(ctx, query, t.Status, t.StartedAt, t.FinishedAt, t.ID)
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}
	if err := affectedOne(res, "task", t.ID); err != nil {
		return err
	}

	t.UpdatedAt = time.Now().UTC()
	q.triggerChange(ctx)
	return nil
}

// DeleteTask deletes a task by its ID. Its edges, assignments, executions,
// feedback and notifications go with it; children stay and lose this parent.
func (q *Queries) DeleteTask(ctx context.Context, id string) error {
	res, err := q.exec.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if err := affectedOne(res, "task", id); err != nil {
		return err
	}

	q.triggerChange(ctx)
	return nil
}
