package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/abd3rr/workflow-api/pkg/models"
	"github.com/google/uuid"
)

// CreateMethod inserts a catalog entry and its ordered parameters.
// If m.ID is empty, a new UUID is generated.
func (q *Queries) CreateMethod(ctx context.Context, m *models.Method) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}

	_, err := q.exec.ExecContext(ctx, `INSERT INTO methods (id, name) VALUES (?, ?)`, m.ID, m.Name)
	if err != nil {
		return fmt.Errorf("failed to create method: %w", err)
	}

	for i, p := range m.Parameters {
		_, err := q.exec.ExecContext(ctx,
			`INSERT INTO method_parameters (method_id, position, name, type) VALUES (?, ?, ?, ?)`,
			m.ID, i, p.Name, p.Type)
		if err != nil {
			return fmt.Errorf("failed to create parameter %s of %s: %w", p.Name, m.Name, err)
		}
	}

	q.triggerChange(ctx)
	return nil
}

// GetMethodByName retrieves a method by its unique name.
func (q *Queries) GetMethodByName(ctx context.Context, name string) (*models.Method, error) {
	m := &models.Method{}
	err := q.exec.QueryRowContext(ctx, `SELECT id, name FROM methods WHERE name = ?`, name).Scan(&m.ID, &m.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get method: %w", err)
	}

	if m.Parameters, err = q.methodParameters(ctx, m.ID); err != nil {
		return nil, err
	}
	return m, nil
}

// ListMethods returns the persisted catalog ordered by name.
func (q *Queries) ListMethods(ctx context.Context) ([]*models.Method, error) {
	rows, err := q.exec.QueryContext(ctx, `SELECT id, name FROM methods ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list methods: %w", err)
	}

	methods := []*models.Method{}
	for rows.Next() {
		m := &models.Method{}
		if err := rows.Scan(&m.ID, &m.Name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan method: %w", err)
		}
		methods = append(methods, m)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("rows error: %w", err)
	}
	rows.Close()

	for _, m := range methods {
		if m.Parameters, err = q.methodParameters(ctx, m.ID); err != nil {
			return nil, err
		}
	}
	return methods, nil
}

func (q *Queries) methodParameters(ctx context.Context, methodID string) ([]models.Parameter, error) {
	rows, err := q.exec.QueryContext(ctx,
		`SELECT name, type FROM method_parameters WHERE method_id = ? ORDER BY position`, methodID)
	if err != nil {
		return nil, fmt.Errorf("failed to load parameters: %w", err)
	}
	defer rows.Close()

	params := []models.Parameter{}
	for rows.Next() {
		var p models.Parameter
		if err := rows.Scan(&p.Name, &p.Type); err != nil {
			return nil, fmt.Errorf("failed to scan parameter: %w", err)
		}
		params = append(params, p)
	}
	return params, rows.Err()
}

// DeleteMethod removes a catalog entry. Executions that referenced it keep
// their method name but lose the reference.
func (q *Queries) DeleteMethod(ctx context.Context, id string) error {
	res, err := q.exec.ExecContext(ctx, `DELETE FROM methods WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete method: %w", err)
	}
	if err := affectedOne(res, "method", id); err != nil {
		return err
	}

	q.triggerChange(ctx)
	return nil
}
