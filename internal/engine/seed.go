package engine

import (
	"context"
	"fmt"
	"slices"

	"github.com/abd3rr/workflow-api/internal/db"
	"github.com/abd3rr/workflow-api/pkg/models"
)

// The operations below populate the entities tasks refer to.

func (e *Engine) CreateProject(ctx context.Context, name, description string) (*models.Project, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: project name is required", models.ErrValidation)
	}
	p := &models.Project{Name: name, Description: description}
	err := e.mutate(ctx, func(u *unit) error {
		return u.q.CreateProject(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (e *Engine) CreatePhase(ctx context.Context, projectID *string, name, description string) (*models.Phase, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: phase name is required", models.ErrValidation)
	}
	p := &models.Phase{ProjectID: projectID, Name: name, Description: description}
	err := e.mutate(ctx, func(u *unit) error {
		if projectID != nil {
			project, err := u.q.GetProject(ctx, *projectID)
			if err != nil {
				return err
			}
			if project == nil {
				return models.NotFound("project", *projectID)
			}
		}
		return u.q.CreatePhase(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (e *Engine) CreateStep(ctx context.Context, phaseID *string, name, description string) (*models.Step, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: step name is required", models.ErrValidation)
	}
	s := &models.Step{PhaseID: phaseID, Name: name, Description: description}
	err := e.mutate(ctx, func(u *unit) error {
		if phaseID != nil {
			phase, err := u.q.GetPhase(ctx, *phaseID)
			if err != nil {
				return err
			}
			if phase == nil {
				return models.NotFound("phase", *phaseID)
			}
		}
		return u.q.CreateStep(ctx, s)
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (e *Engine) CreateUser(ctx context.Context, name, email string) (*models.User, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: user name is required", models.ErrValidation)
	}
	user := &models.User{Name: name, Email: email}
	err := e.mutate(ctx, func(u *unit) error {
		return u.q.CreateUser(ctx, user)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// CreateJob creates a job whose members are userIDs, in order.
func (e *Engine) CreateJob(ctx context.Context, title string, userIDs []string) (*models.Job, error) {
	if title == "" {
		return nil, fmt.Errorf("%w: job title is required", models.ErrValidation)
	}
	if dup := firstDuplicate(userIDs); dup != "" {
		return nil, fmt.Errorf("%w: duplicate user id %s", models.ErrValidation, dup)
	}

	job := &models.Job{Title: title, UserIDs: userIDs}
	err := e.mutate(ctx, func(u *unit) error {
		for _, id := range userIDs {
			user, err := u.q.GetUser(ctx, id)
			if err != nil {
				return err
			}
			if user == nil {
				return models.NotFound("user", id)
			}
		}
		return u.q.CreateJob(ctx, job)
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// AddJobMember appends userID to the members of jobID and returns the job.
func (e *Engine) AddJobMember(ctx context.Context, jobID, userID string) (*models.Job, error) {
	var job *models.Job
	err := e.mutate(ctx, func(u *unit) error {
		j, err := getJob(ctx, u.q, jobID)
		if err != nil {
			return err
		}
		if slices.Contains(j.UserIDs, userID) {
			return fmt.Errorf("%w: user %s is already in job %s", models.ErrValidation, userID, jobID)
		}
		user, err := u.q.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if user == nil {
			return models.NotFound("user", userID)
		}

		if err := u.q.AddJobMember(ctx, jobID, userID); err != nil {
			return err
		}
		job, err = getJob(ctx, u.q, jobID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// DeleteJob removes a job. Tasks assigned to it keep their other jobs.
func (e *Engine) DeleteJob(ctx context.Context, jobID string) error {
	err := e.mutate(ctx, func(u *unit) error {
		return u.q.DeleteJob(ctx, jobID)
	})
	if err != nil {
		return err
	}
	e.log.WithField("job_id", jobID).Info("job deleted")
	return nil
}

func getJob(ctx context.Context, q *db.Queries, id string) (*models.Job, error) {
	j, err := q.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if j == nil {
		return nil, models.NotFound("job", id)
	}
	return j, nil
}

// RegisterFile records metadata for a file tasks may reference.
func (e *Engine) RegisterFile(ctx context.Context, f *models.File) error {
	if f.Name == "" || f.Path == "" {
		return fmt.Errorf("%w: file name and path are required", models.ErrValidation)
	}
	return e.mutate(ctx, func(u *unit) error {
		return u.q.CreateFile(ctx, f)
	})
}
