package engine

import (
	"context"
	"fmt"

	"github.com/abd3rr/workflow-api/internal/db"
	"github.com/abd3rr/workflow-api/pkg/models"
)

func (e *Engine) GetTask(ctx context.Context, id string) (*models.Task, error) {
	return getTask(ctx, e.db.Queries, id)
}

func (e *Engine) ListTasks(ctx context.Context) ([]*models.Task, error) {
	return e.db.ListTasks(ctx)
}

func (e *Engine) GetTasksByStep(ctx context.Context, stepID string) ([]*models.Task, error) {
	return e.db.ListTasksByStep(ctx, stepID)
}

func (e *Engine) GetTasksByProject(ctx context.Context, projectID string) ([]*models.Task, error) {
	return e.db.ListTasksByProject(ctx, projectID)
}

// GetTasksByJobsStatusProjectPhaseStep returns tasks assigned to any of
// jobIDs, in any of statuses, within the optional project, phase and step.
// Empty jobIDs or statuses match nothing.
func (e *Engine) GetTasksByJobsStatusProjectPhaseStep(ctx context.Context, jobIDs []string, statuses []models.TaskStatus, projectID, phaseID, stepID *string) ([]*models.Task, error) {
	for _, s := range statuses {
		if !s.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", models.ErrValidation, s)
		}
	}
	return e.db.FindTasks(ctx, db.TaskFilter{
		JobIDs:    jobIDs,
		Statuses:  statuses,
		ProjectID: projectID,
		PhaseID:   phaseID,
		StepID:    stepID,
	})
}

// GetTasksWaitingForValidation returns the tasks waiting for validation
// that have a child assigned to jobID.
func (e *Engine) GetTasksWaitingForValidation(ctx context.Context, jobID string, projectID, phaseID, stepID *string) ([]*models.Task, error) {
	return e.db.ListTasksWaitingForValidation(ctx, jobID, projectID, phaseID, stepID)
}

func (e *Engine) GetMethodExecutions(ctx context.Context, taskID string) ([]*models.MethodExecution, error) {
	task, err := e.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return task.Executions, nil
}

func (e *Engine) GetGraph(ctx context.Context) (*models.Graph, error) {
	return e.db.GetGraph(ctx)
}

func (e *Engine) ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]*models.Notification, error) {
	return e.db.ListNotificationsForUser(ctx, userID, unreadOnly)
}

func (e *Engine) MarkNotificationRead(ctx context.Context, id string) error {
	return e.mutate(ctx, func(u *unit) error {
		return u.q.MarkNotificationRead(ctx, id)
	})
}

// AddFeedback appends feedback from a user to a task and returns the task.
func (e *Engine) AddFeedback(ctx context.Context, taskID, userID, content string) (*models.Task, error) {
	if content == "" {
		return nil, fmt.Errorf("%w: feedback content is required", models.ErrValidation)
	}

	var task *models.Task
	err := e.mutate(ctx, func(u *unit) error {
		if _, err := getTask(ctx, u.q, taskID); err != nil {
			return err
		}
		user, err := u.q.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if user == nil {
			return models.NotFound("user", userID)
		}

		if err := u.q.CreateFeedback(ctx, &models.Feedback{TaskID: taskID, UserID: userID, Content: content}); err != nil {
			return err
		}
		task, err = getTask(ctx, u.q, taskID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// DeleteTask removes a task. Its children lose it as a parent.
func (e *Engine) DeleteTask(ctx context.Context, taskID string) error {
	err := e.mutate(ctx, func(u *unit) error {
		return u.q.DeleteTask(ctx, taskID)
	})
	if err != nil {
		return err
	}
	e.log.WithField("task_id", taskID).Info("task deleted")
	return nil
}
