package models

// Edge is a parent -> child dependency between two tasks. The child may only
// start once the parent has finished.
type Edge struct {
	ParentID string `json:"parent_id"`
	ChildID  string `json:"child_id"`
}

// Graph is the full task graph as nodes and edges.
type Graph struct {
	Nodes []*Task `json:"nodes"`
	Edges []Edge  `json:"edges"`
}
