package engine

import (
	"context"
	"fmt"
	"slices"

	"github.com/abd3rr/workflow-api/internal/db"
	"github.com/abd3rr/workflow-api/pkg/models"
	"github.com/sirupsen/logrus"
)

// UpdateTaskRequest changes the descriptive fields of a task. Nil fields are
// left as they are.
type UpdateTaskRequest struct {
	ID                   string  `json:"id"`
	Name                 *string `json:"name,omitempty"`
	Description          *string `json:"description,omitempty"`
	StepID               *string `json:"step_id,omitempty"`
	RequiredVerification *bool   `json:"required_verification,omitempty"`
}

// UpdateTask applies req and returns the updated task. The verification flag
// is read when methods are executed, so it can only change while the task is
// PENDING or STARTING.
func (e *Engine) UpdateTask(ctx context.Context, req UpdateTaskRequest) (*models.Task, error) {
	if req.Name != nil && *req.Name == "" {
		return nil, fmt.Errorf("%w: task name is required", models.ErrValidation)
	}

	var task *models.Task
	err := e.mutate(ctx, func(u *unit) error {
		t, err := getTask(ctx, u.q, req.ID)
		if err != nil {
			return err
		}

		if req.Name != nil {
			t.Name = *req.Name
		}
		if req.Description != nil {
			t.Description = *req.Description
		}
		if req.StepID != nil {
			step, err := u.q.GetStep(ctx, *req.StepID)
			if err != nil {
				return err
			}
			if step == nil {
				return models.NotFound("step", *req.StepID)
			}
			t.StepID = req.StepID
		}
		if req.RequiredVerification != nil && *req.RequiredVerification != t.RequiredVerification {
			if t.Status != models.TaskStatusPending && t.Status != models.TaskStatusStarting {
				return &models.InvalidStateError{TaskID: t.ID, Status: t.Status, Op: "change verification of"}
			}
			t.RequiredVerification = *req.RequiredVerification
		}

		if err := u.q.UpdateTask(ctx, t); err != nil {
			return err
		}
		task, err = getTask(ctx, u.q, t.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// AddDependency makes childID depend on parentID and returns the child. The
// child must be PENDING and the edge must not close a cycle.
func (e *Engine) AddDependency(ctx context.Context, parentID, childID string) (*models.Task, error) {
	if parentID == childID {
		return nil, fmt.Errorf("%w: task %s cannot depend on itself", models.ErrValidation, childID)
	}

	var child *models.Task
	err := e.mutate(ctx, func(u *unit) error {
		if _, err := getTask(ctx, u.q, parentID); err != nil {
			return err
		}
		c, err := getTask(ctx, u.q, childID)
		if err != nil {
			return err
		}
		if c.Status != models.TaskStatusPending {
			return &models.InvalidStateError{TaskID: c.ID, Status: c.Status, Want: models.TaskStatusPending, Op: "add a parent to"}
		}
		if slices.Contains(c.ParentIDs, parentID) {
			return fmt.Errorf("%w: task %s already depends on %s", models.ErrValidation, childID, parentID)
		}

		cycle, err := reaches(ctx, u.q, childID, parentID)
		if err != nil {
			return err
		}
		if cycle {
			return fmt.Errorf("%w: %s -> %s would create a cycle", models.ErrValidation, parentID, childID)
		}

		if err := u.q.CreateEdge(ctx, parentID, childID); err != nil {
			return err
		}
		child, err = getTask(ctx, u.q, childID)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.log.WithFields(logrus.Fields{"parent_id": parentID, "child_id": childID}).Info("dependency added")
	return child, nil
}

// RemoveDependency deletes the edge parentID -> childID.
func (e *Engine) RemoveDependency(ctx context.Context, parentID, childID string) error {
	err := e.mutate(ctx, func(u *unit) error {
		return u.q.DeleteEdge(ctx, parentID, childID)
	})
	if err != nil {
		return err
	}
	e.log.WithFields(logrus.Fields{"parent_id": parentID, "child_id": childID}).Info("dependency removed")
	return nil
}

// GetParents returns the tasks taskID depends on, in stored order.
func (e *Engine) GetParents(ctx context.Context, taskID string) ([]*models.Task, error) {
	if _, err := e.GetTask(ctx, taskID); err != nil {
		return nil, err
	}
	return e.db.GetParents(ctx, taskID)
}

// reaches reports whether to is from or one of its descendants.
func reaches(ctx context.Context, q *db.Queries, from, to string) (bool, error) {
	seen := map[string]bool{from: true}
	queue := []string{from}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if id == to {
			return true, nil
		}

		children, err := q.GetChildren(ctx, id)
		if err != nil {
			return false, err
		}
		for _, c := range children {
			if !seen[c.ID] {
				seen[c.ID] = true
				queue = append(queue, c.ID)
			}
		}
	}
	return false, nil
}
