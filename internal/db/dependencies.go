package db

import (
	"context"
	"fmt"

	"github.com/abd3rr/workflow-api/pkg/models"
)

// CreateEdge makes childID depend on parentID. The child is appended to the
// end of the parent's children and the parent to the end of the child's
// parents.
func (q *Queries) CreateEdge(ctx context.Context, parentID, childID string) error {
	var parentOrder int
	err := q.exec.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM task_edges WHERE child_id = ?`, childID).Scan(&parentOrder)
	if err != nil {
		return fmt.Errorf("failed to count parents: %w", err)
	}

	if err := q.createEdge(ctx, parentID, childID, parentOrder); err != nil {
		return err
	}
	q.triggerChange(ctx)
	return nil
}

func (q *Queries) createEdge(ctx context.Context, parentID, childID string, parentOrder int) error {
	query := `
		INSERT INTO task_edges (parent_id, child_id, parent_order, child_order)
		VALUES (?, ?, ?, (SELECT COUNT(*) FROM task_edges WHERE parent_id = ?))
	`
	_, err := q.exec.ExecContext(ctx, query, parentID, childID, parentOrder, parentID)
	if err != nil {
		return fmt.Errorf("failed to create edge %s -> %s: %w", parentID, childID, err)
	}
	return nil
}

func (q *Queries) DeleteEdge(ctx context.Context, parentID, childID string) error {
	query := `DELETE FROM task_edges WHERE parent_id = ? AND child_id = ?`
	res, err := q.exec.ExecContext(ctx, query, parentID, childID)
	if err != nil {
		return fmt.Errorf("failed to delete edge: %w", err)
	}
	if err := affectedOne(res, "edge", parentID+" -> "+childID); err != nil {
		return err
	}

	q.triggerChange(ctx)
	return nil
}

func (q *Queries) parentIDs(ctx context.Context, taskID string) ([]string, error) {
	ids, err := q.queryIDs(ctx,
		`SELECT parent_id FROM task_edges WHERE child_id = ? ORDER BY parent_order, rowid`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to load parents: %w", err)
	}
	return ids, nil
}

func (q *Queries) childIDs(ctx context.Context, taskID string) ([]string, error) {
	ids, err := q.queryIDs(ctx,
		`SELECT child_id FROM task_edges WHERE parent_id = ? ORDER BY child_order, rowid`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to load children: %w", err)
	}
	return ids, nil
}

// GetParents returns the tasks taskID depends on, in stored order.
func (q *Queries) GetParents(ctx context.Context, taskID string) ([]*models.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks t
		JOIN task_edges e ON t.id = e.parent_id
		WHERE e.child_id = ?
		ORDER BY e.parent_order, e.rowid
	`
	return q.queryTasks(ctx, query, taskID)
}

// GetChildren returns the tasks depending on taskID, in stored order.
func (q *Queries) GetChildren(ctx context.Context, taskID string) ([]*models.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks t
		JOIN task_edges e ON t.id = e.child_id
		WHERE e.parent_id = ?
		ORDER BY e.child_order, e.rowid
	`
	return q.queryTasks(ctx, query, taskID)
}

// GetGraph returns every task and every edge.
func (q *Queries) GetGraph(ctx context.Context) (*models.Graph, error) {
	nodes, err := q.ListTasks(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := q.exec.QueryContext(ctx,
		`SELECT parent_id, child_id FROM task_edges ORDER BY parent_id, child_order`)
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	defer rows.Close()

	edges := []models.Edge{}
	for rows.Next() {
		var e models.Edge
		if err := rows.Scan(&e.ParentID, &e.ChildID); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &models.Graph{Nodes: nodes, Edges: edges}, nil
}
