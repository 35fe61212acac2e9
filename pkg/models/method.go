package models

import "time"

type ExecutionStatus string

const (
	ExecutionStatusPending    ExecutionStatus = "PENDING"
	ExecutionStatusInProgress ExecutionStatus = "IN_PROGRESS"
	ExecutionStatusSuccess    ExecutionStatus = "SUCCESS"
	ExecutionStatusFailure    ExecutionStatus = "FAILURE"
)

// Parameter is one formal argument of a Method.
type Parameter struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Method is a catalogued, invocable action.
type Method struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Parameters []Parameter `json:"parameters"`
}

// HasParameter reports whether name is one of the declared parameters.
func (m *Method) HasParameter(name string) bool {
	for _, p := range m.Parameters {
		if p.Name == name {
			return true
		}
	}
	return false
}

// MethodExecution binds a task to one method and tracks the dispatch outcome.
// MethodID is nil once the method has been dropped from the catalog.
type MethodExecution struct {
	ID         string          `json:"id"`
	TaskID     string          `json:"task_id"`
	MethodID   *string         `json:"method_id"`
	MethodName string          `json:"method_name"`
	Status     ExecutionStatus `json:"status"`
	Error      *string         `json:"error"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Done reports whether the execution must not be dispatched again.
func (e *MethodExecution) Done() bool {
	return e.Status == ExecutionStatusSuccess || e.Status == ExecutionStatusInProgress
}

// UserParameter is a caller supplied argument for a method execution.
type UserParameter struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}
