package models

import "time"

type TaskStatus string

const (
	TaskStatusPending              TaskStatus = "PENDING"
	TaskStatusStarting             TaskStatus = "STARTING"
	TaskStatusWaitingForValidation TaskStatus = "WAITING_FOR_VALIDATION"
	TaskStatusFinished             TaskStatus = "FINISHED"
)

// Valid reports whether s is one of the known task statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusStarting, TaskStatusWaitingForValidation, TaskStatusFinished:
		return true
	}
	return false
}

type Task struct {
	ID                   string     `json:"id"`
	Name                 string     `json:"name"`
	Description          string     `json:"description"`
	StepID               *string    `json:"step_id"`
	Status               TaskStatus `json:"status"`
	RequiredVerification bool       `json:"required_verification"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
	StartedAt            *time.Time `json:"started_at"`
	FinishedAt           *time.Time `json:"finished_at"`

	ParentIDs      []string           `json:"parent_ids"`
	ChildIDs       []string           `json:"child_ids"`
	AssignedJobIDs []string           `json:"assigned_job_ids"`
	FileIDs        []string           `json:"file_ids"`
	Executions     []*MethodExecution `json:"method_executions"`
	Feedback       []*Feedback        `json:"feedback"`
}

// IsInitial reports whether the task has no parents and may be started by
// the initial-start operation.
func (t *Task) IsInitial() bool {
	return len(t.ParentIDs) == 0
}

// HasChildren reports whether any task depends on t.
func (t *Task) HasChildren() bool {
	return len(t.ChildIDs) > 0
}
