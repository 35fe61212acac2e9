package models

import "time"

type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

type Phase struct {
	ID          string  `json:"id"`
	ProjectID   *string `json:"project_id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
}

type Step struct {
	ID          string  `json:"id"`
	PhaseID     *string `json:"phase_id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
}
