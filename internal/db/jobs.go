package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/abd3rr/workflow-api/pkg/models"
	"github.com/google/uuid"
)

func (q *Queries) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}

	_, err := q.exec.ExecContext(ctx,
		`INSERT INTO users (id, name, email) VALUES (?, ?, ?)`, u.ID, u.Name, u.Email)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	q.triggerChange(ctx)
	return nil
}

func (q *Queries) GetUser(ctx context.Context, id string) (*models.User, error) {
	u := &models.User{}
	err := q.exec.QueryRowContext(ctx,
		`SELECT id, name, email FROM users WHERE id = ?`, id).Scan(&u.ID, &u.Name, &u.Email)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

func (q *Queries) ListUsers(ctx context.Context) ([]*models.User, error) {
	rows, err := q.exec.QueryContext(ctx, `SELECT id, name, email FROM users ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []*models.User{}
	for rows.Next() {
		u := &models.User{}
		if err := rows.Scan(&u.ID, &u.Name, &u.Email); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CreateJob inserts a job and its initial members, in order.
func (q *Queries) CreateJob(ctx context.Context, j *models.Job) error {
	if j.ID == "" {
		j.ID = uuid.New().String()
	}

	_, err := q.exec.ExecContext(ctx, `INSERT INTO jobs (id, title) VALUES (?, ?)`, j.ID, j.Title)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	for _, userID := range j.UserIDs {
		if err := q.addJobMember(ctx, j.ID, userID); err != nil {
			return err
		}
	}

	q.triggerChange(ctx)
	return nil
}

// AddJobMember appends a user to a job.
func (q *Queries) AddJobMember(ctx context.Context, jobID, userID string) error {
	if err := q.addJobMember(ctx, jobID, userID); err != nil {
		return err
	}
	q.triggerChange(ctx)
	return nil
}

func (q *Queries) addJobMember(ctx context.Context, jobID, userID string) error {
	query := `
		INSERT INTO job_users (job_id, user_id, position)
		VALUES (?, ?, (SELECT COUNT(*) FROM job_users WHERE job_id = ?))
	`
	if _, err := q.exec.ExecContext(ctx, query, jobID, userID, jobID); err != nil {
		return fmt.Errorf("failed to add user %s to job %s: %w", userID, jobID, err)
	}
	return nil
}

func (q *Queries) GetJob(ctx context.Context, id string) (*models.Job, error) {
	j := &models.Job{}
	err := q.exec.QueryRowContext(ctx, `SELECT id, title FROM jobs WHERE id = ?`, id).Scan(&j.ID, &j.Title)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	if j.UserIDs, err = q.queryIDs(ctx,
		`SELECT user_id FROM job_users WHERE job_id = ? ORDER BY position`, id); err != nil {
		return nil, fmt.Errorf("failed to load job members: %w", err)
	}
	return j, nil
}

func (q *Queries) ListJobs(ctx context.Context) ([]*models.Job, error) {
	ids, err := q.queryIDs(ctx, `SELECT id FROM jobs ORDER BY title`)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	jobs := make([]*models.Job, 0, len(ids))
	for _, id := range ids {
		j, err := q.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

func (q *Queries) DeleteJob(ctx context.Context, id string) error {
	res, err := q.exec.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	if err := affectedOne(res, "job", id); err != nil {
		return err
	}

	q.triggerChange(ctx)
	return nil
}

// ListTaskRecipients returns one user id per (assigned job, member) pair of
// a task, in assignment then membership order. A user in two assigned jobs
// appears twice.
func (q *Queries) ListTaskRecipients(ctx context.Context, taskID string) ([]string, error) {
	query := `
		SELECT ju.user_id
		FROM task_jobs tj
		JOIN job_users ju ON ju.job_id = tj.job_id
		WHERE tj.task_id = ?
		ORDER BY tj.position, ju.position
	`
	ids, err := q.queryIDs(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve recipients: %w", err)
	}
	return ids, nil
}
