package db

import (
	"context"
	"errors"
	"testing"

	"github.com/abd3rr/workflow-api/pkg/models"
)

func TestEdgesKeepInsertionOrder(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	root := createTask(t, db, &models.Task{Name: "Root"})
	other := createTask(t, db, &models.Task{Name: "Other"})
	first := createTask(t, db, &models.Task{Name: "First", ParentIDs: []string{root.ID}})
	second := createTask(t, db, &models.Task{Name: "Second", ParentIDs: []string{root.ID, other.ID}})

	fetched, err := db.GetTask(ctx, root.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if len(fetched.ChildIDs) != 2 || fetched.ChildIDs[0] != first.ID || fetched.ChildIDs[1] != second.ID {
		t.Errorf("Expected children [First Second], got %v", fetched.ChildIDs)
	}

	children, err := db.GetChildren(ctx, root.ID)
	if err != nil {
		t.Fatalf("GetChildren failed: %v", err)
	}
	if len(children) != 2 || children[0].Name != "First" || children[1].Name != "Second" {
		t.Errorf("Unexpected children: %v", children)
	}

	parents, err := db.GetParents(ctx, second.ID)
	if err != nil {
		t.Fatalf("GetParents failed: %v", err)
	}
	if len(parents) != 2 || parents[0].ID != root.ID || parents[1].ID != other.ID {
		t.Errorf("Expected parents [Root Other], got %v", parents)
	}
}

func TestEdgeViewsAgree(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	a := createTask(t, db, &models.Task{Name: "A"})
	b := createTask(t, db, &models.Task{Name: "B"})

	if err := db.CreateEdge(ctx, a.ID, b.ID); err != nil {
		t.Fatalf("CreateEdge failed: %v", err)
	}
	if err := db.CreateEdge(ctx, a.ID, b.ID); err == nil {
		t.Errorf("Expected duplicate edge to fail")
	}

	fa, _ := db.GetTask(ctx, a.ID)
	fb, _ := db.GetTask(ctx, b.ID)
	if len(fa.ChildIDs) != 1 || fa.ChildIDs[0] != b.ID {
		t.Errorf("Expected A -> B in children view, got %v", fa.ChildIDs)
	}
	if len(fb.ParentIDs) != 1 || fb.ParentIDs[0] != a.ID {
		t.Errorf("Expected A in parents view of B, got %v", fb.ParentIDs)
	}

	if err := db.DeleteEdge(ctx, a.ID, b.ID); err != nil {
		t.Fatalf("DeleteEdge failed: %v", err)
	}
	fb, _ = db.GetTask(ctx, b.ID)
	if !fb.IsInitial() {
		t.Errorf("Expected B to be initial after removing its only edge")
	}

	if err := db.DeleteEdge(ctx, a.ID, b.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestDeleteParentDetachesChildren(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	parent := createTask(t, db, &models.Task{Name: "Parent"})
	child := createTask(t, db, &models.Task{Name: "Child", ParentIDs: []string{parent.ID}})

	if err := db.DeleteTask(ctx, parent.ID); err != nil {
		t.Fatalf("DeleteTask failed: %v", err)
	}

	fetched, err := db.GetTask(ctx, child.ID)
	if err != nil || fetched == nil {
		t.Fatalf("Child should survive: %v", err)
	}
	if len(fetched.ParentIDs) != 0 {
		t.Errorf("Expected no dangling parent, got %v", fetched.ParentIDs)
	}
}

func TestGetGraph(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	a := createTask(t, db, &models.Task{Name: "A"})
	b := createTask(t, db, &models.Task{Name: "B", ParentIDs: []string{a.ID}})
	createTask(t, db, &models.Task{Name: "C", ParentIDs: []string{a.ID, b.ID}})

	graph, err := db.GetGraph(ctx)
	if err != nil {
		t.Fatalf("GetGraph failed: %v", err)
	}
	if len(graph.Nodes) != 3 {
		t.Errorf("Expected 3 nodes, got %d", len(graph.Nodes))
	}
	if len(graph.Edges) != 3 {
		t.Errorf("Expected 3 edges, got %d", len(graph.Edges))
	}
	for _, e := range graph.Edges {
		if e.ParentID == "" || e.ChildID == "" {
			t.Errorf("Edge has empty endpoint: %+v", e)
		}
	}
}
