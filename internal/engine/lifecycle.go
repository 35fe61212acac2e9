package engine

import (
	"context"
	"fmt"

	"github.com/abd3rr/workflow-api/internal/actions"
	"github.com/abd3rr/workflow-api/pkg/models"
	"github.com/sirupsen/logrus"
)

// CreateTaskRequest describes a new task. Every referenced id must exist.
type CreateTaskRequest struct {
	Name                 string   `json:"name"`
	Description          string   `json:"description"`
	StepID               *string  `json:"step_id,omitempty"`
	ParentIDs            []string `json:"parent_ids"`
	MethodIDs            []string `json:"method_ids"`
	AssignedJobIDs       []string `json:"assigned_job_ids"`
	FileIDs              []string `json:"file_ids"`
	RequiredVerification bool     `json:"required_verification"`
}

// CreateTask creates a PENDING task with one PENDING execution per method.
// The task is appended to each parent's children.
func (e *Engine) CreateTask(ctx context.Context, req CreateTaskRequest) (*models.Task, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("%w: task name is required", models.ErrValidation)
	}
	for _, refs := range []struct {
		kind string
		ids  []string
	}{
		{"parent", req.ParentIDs},
		{"job", req.AssignedJobIDs},
		{"file", req.FileIDs},
	} {
		if dup := firstDuplicate(refs.ids); dup != "" {
			return nil, fmt.Errorf("%w: duplicate %s id %s", models.ErrValidation, refs.kind, dup)
		}
	}

	methods, err := e.Catalog().Resolve(req.MethodIDs)
	if err != nil {
		return nil, err
	}

	task := &models.Task{
		Name:                 req.Name,
		Description:          req.Description,
		StepID:               req.StepID,
		Status:               models.TaskStatusPending,
		RequiredVerification: req.RequiredVerification,
		ParentIDs:            req.ParentIDs,
		AssignedJobIDs:       req.AssignedJobIDs,
		FileIDs:              req.FileIDs,
	}

	err = e.mutate(ctx, func(u *unit) error {
		if req.StepID != nil {
			step, err := u.q.GetStep(ctx, *req.StepID)
			if err != nil {
				return err
			}
			if step == nil {
				return models.NotFound("step", *req.StepID)
			}
		}
		for _, id := range req.ParentIDs {
			if _, err := getTask(ctx, u.q, id); err != nil {
				return err
			}
		}
		for _, id := range req.AssignedJobIDs {
			job, err := u.q.GetJob(ctx, id)
			if err != nil {
				return err
			}
			if job == nil {
				return models.NotFound("job", id)
			}
		}
		for _, id := range req.FileIDs {
			file, err := u.q.GetFile(ctx, id)
			if err != nil {
				return err
			}
			if file == nil {
				return models.NotFound("file", id)
			}
		}

		if err := u.q.CreateTask(ctx, task, methods); err != nil {
			return err
		}
		task, err = getTask(ctx, u.q, task.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.log.WithField("task_id", task.ID).Info("task created")
	return task, nil
}

func firstDuplicate(ids []string) string {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return id
		}
		seen[id] = true
	}
	return ""
}

// StartInitialTasks starts every PENDING task of the project that has no
// parents. Tasks in any other status are skipped.
func (e *Engine) StartInitialTasks(ctx context.Context, projectID string) ([]*models.Task, error) {
	var started []*models.Task
	err := e.mutate(ctx, func(u *unit) error {
		project, err := u.q.GetProject(ctx, projectID)
		if err != nil {
			return err
		}
		if project == nil {
			return models.NotFound("project", projectID)
		}

		tasks, err := u.q.ListTasksByProject(ctx, projectID)
		if err != nil {
			return err
		}

		started = []*models.Task{}
		for _, t := range tasks {
			if !t.IsInitial() || t.Status != models.TaskStatusPending {
				continue
			}
			if err := e.start(ctx, u, t); err != nil {
				return err
			}
			started = append(started, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return started, nil
}

// StartNextTask starts only the first PENDING child of the finished task,
// in stored order. It returns nil when no child was started.
func (e *Engine) StartNextTask(ctx context.Context, finishedTaskID string) (*models.Task, error) {
	var started *models.Task
	err := e.mutate(ctx, func(u *unit) error {
		finished, err := getTask(ctx, u.q, finishedTaskID)
		if err != nil {
			return err
		}
		started, err = e.startNextChild(ctx, u, finished)
		return err
	})
	if err != nil {
		return nil, err
	}
	return started, nil
}

// ExecuteMethodsForTask dispatches every execution of the task that is not
// already done and has parameters in paramsByExecutionID, then evaluates
// the task:
//
//   - without children it finishes, whatever its verification flag;
//   - with children and verification required it waits for validation and
//     the children's job members are notified;
//   - otherwise it finishes and every PENDING child starts.
//
// Per-execution results are returned in execution order. A failed action
// does not stop the pass or the evaluation.
//
// A PENDING task is rejected with an *models.InvalidStateError and nothing
// is dispatched. A task that is WAITING_FOR_VALIDATION or FINISHED gets the
// dispatch pass only; its status is left as it is.
func (e *Engine) ExecuteMethodsForTask(ctx context.Context, taskID string, paramsByExecutionID map[string][]models.UserParameter) ([]actions.Outcome, error) {
	var outcomes []actions.Outcome
	err := e.mutate(ctx, func(u *unit) error {
		task, err := getTask(ctx, u.q, taskID)
		if err != nil {
			return err
		}
		if task.Status == models.TaskStatusPending {
			return &models.InvalidStateError{TaskID: task.ID, Status: task.Status, Op: "execute methods of"}
		}

		outcomes = make([]actions.Outcome, 0, len(task.Executions))
		for _, exec := range task.Executions {
			log := e.log.WithFields(logrus.Fields{"task_id": task.ID, "execution_id": exec.ID})

			params, supplied := paramsByExecutionID[exec.ID]
			if exec.Done() || !supplied {
				if !supplied {
					log.Debug("no parameters supplied, skipping execution")
				}
				outcomes = append(outcomes, actions.Outcome{
					ExecutionID: exec.ID,
					Method:      exec.MethodName,
					Result:      actions.ResultSkipped,
					Status:      exec.Status,
				})
				continue
			}

			out, err := e.dispatcher.Dispatch(ctx, u.q, exec, params)
			if err != nil {
				return err
			}
			outcomes = append(outcomes, out)
		}

		if task.Status != models.TaskStatusStarting {
			e.log.WithFields(logrus.Fields{"task_id": task.ID, "status": task.Status}).
				Debug("task already past STARTING, status left unchanged")
			return nil
		}
		return e.evaluate(ctx, u, task)
	})
	if err != nil {
		return nil, err
	}
	return outcomes, nil
}

func (e *Engine) evaluate(ctx context.Context, u *unit, task *models.Task) error {
	if !task.HasChildren() {
		return e.setStatus(ctx, u, task, models.TaskStatusFinished, "finish")
	}

	if task.RequiredVerification {
		if err := e.setStatus(ctx, u, task, models.TaskStatusWaitingForValidation, "request validation of"); err != nil {
			return err
		}
		created, err := e.notifier.NotifyForValidation(ctx, u.q, task, validationMessage(task))
		if err != nil {
			return err
		}
		u.notifications = append(u.notifications, created...)
		return nil
	}

	if err := e.setStatus(ctx, u, task, models.TaskStatusFinished, "finish"); err != nil {
		return err
	}
	_, err := e.startPendingChildren(ctx, u, task)
	return err
}

// ValidateAndStartChildTasks finishes a task waiting for validation and
// starts every PENDING child.
func (e *Engine) ValidateAndStartChildTasks(ctx context.Context, taskID string) ([]*models.Task, error) {
	var started []*models.Task
	err := e.mutate(ctx, func(u *unit) error {
		task, err := getTask(ctx, u.q, taskID)
		if err != nil {
			return err
		}
		if task.Status != models.TaskStatusWaitingForValidation {
			return &models.InvalidStateError{TaskID: task.ID, Status: task.Status, Want: models.TaskStatusWaitingForValidation, Op: "validate"}
		}

		if err := e.setStatus(ctx, u, task, models.TaskStatusFinished, "validate"); err != nil {
			return err
		}
		started, err = e.startPendingChildren(ctx, u, task)
		return err
	})
	if err != nil {
		return nil, err
	}
	return started, nil
}

// InvalidateTask sends a task waiting for validation back to STARTING and
// asks its own job members for rework.
func (e *Engine) InvalidateTask(ctx context.Context, taskID string) (*models.Task, error) {
	var task *models.Task
	err := e.mutate(ctx, func(u *unit) error {
		var err error
		task, err = getTask(ctx, u.q, taskID)
		if err != nil {
			return err
		}
		if task.Status != models.TaskStatusWaitingForValidation {
			return &models.InvalidStateError{TaskID: task.ID, Status: task.Status, Want: models.TaskStatusWaitingForValidation, Op: "invalidate"}
		}

		if err := e.setStatus(ctx, u, task, models.TaskStatusStarting, "invalidate"); err != nil {
			return err
		}
		return e.notify(ctx, u, task, invalidatedMessage(task))
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// UpdateTaskStatus applies a manual transition. Reaching FINISHED starts
// the first PENDING child, as StartNextTask does. Setting the current
// status again is a no-op.
func (e *Engine) UpdateTaskStatus(ctx context.Context, taskID string, status models.TaskStatus) (*models.Task, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", models.ErrValidation, status)
	}

	var task *models.Task
	err := e.mutate(ctx, func(u *unit) error {
		var err error
		task, err = getTask(ctx, u.q, taskID)
		if err != nil {
			return err
		}
		if task.Status == status {
			return nil
		}

		if err := e.setStatus(ctx, u, task, status, "move"); err != nil {
			return err
		}
		switch status {
		case models.TaskStatusStarting:
			return e.notify(ctx, u, task, startedMessage(task))
		case models.TaskStatusWaitingForValidation:
			created, err := e.notifier.NotifyForValidation(ctx, u.q, task, validationMessage(task))
			u.notifications = append(u.notifications, created...)
			return err
		case models.TaskStatusFinished:
			_, err := e.startNextChild(ctx, u, task)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}
