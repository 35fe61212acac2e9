package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/abd3rr/workflow-api/pkg/models"
	"github.com/google/uuid"
)

func (q *Queries) CreateProject(ctx context.Context, p *models.Project) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}

	query := `
		INSERT INTO projects (id, name, description)
		VALUES (?, ?, ?)
		RETURNING created_at
	`
	if err := q.exec.QueryRowContext(ctx, query, p.ID, p.Name, p.Description).Scan(&p.CreatedAt); err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}

	q.triggerChange(ctx)
	return nil
}

func (q *Queries) GetProject(ctx context.Context, id string) (*models.Project, error) {
	p := &models.Project{}
	err := q.exec.QueryRowContext(ctx,
		`SELECT id, name, description, created_at FROM projects WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return p, nil
}

func (q *Queries) ListProjects(ctx context.Context) ([]*models.Project, error) {
	rows, err := q.exec.QueryContext(ctx,
		`SELECT id, name, description, created_at FROM projects ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	projects := []*models.Project{}
	for rows.Next() {
		p := &models.Project{}
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (q *Queries) CreatePhase(ctx context.Context, p *models.Phase) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}

	_, err := q.exec.ExecContext(ctx,
		`INSERT INTO phases (id, project_id, name, description) VALUES (?, ?, ?, ?)`,
		p.ID, p.ProjectID, p.Name, p.Description)
	if err != nil {
		return fmt.Errorf("failed to create phase: %w", err)
	}

	q.triggerChange(ctx)
	return nil
}

func (q *Queries) GetPhase(ctx context.Context, id string) (*models.Phase, error) {
	p := &models.Phase{}
	err := q.exec.QueryRowContext(ctx,
		`SELECT id, project_id, name, description FROM phases WHERE id = ?`, id,
	).Scan(&p.ID, &p.ProjectID, &p.Name, &p.Description)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get phase: %w", err)
	}
	return p, nil
}

func (q *Queries) CreateStep(ctx context.Context, s *models.Step) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}

	_, err := q.exec.ExecContext(ctx,
		`INSERT INTO steps (id, phase_id, name, description) VALUES (?, ?, ?, ?)`,
		s.ID, s.PhaseID, s.Name, s.Description)
	if err != nil {
		return fmt.Errorf("failed to create step: %w", err)
	}

	q.triggerChange(ctx)
	return nil
}

func (q *Queries) GetStep(ctx context.Context, id string) (*models.Step, error) {
	s := &models.Step{}
	err := q.exec.QueryRowContext(ctx,
		`SELECT id, phase_id, name, description FROM steps WHERE id = ?`, id,
	).Scan(&s.ID, &s.PhaseID, &s.Name, &s.Description)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get step: %w", err)
	}
	return s, nil
}
