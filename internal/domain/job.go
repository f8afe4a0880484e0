package domain

import "time"

// Job is one user-initiated generation session progressing through stages.
type Job struct {
	ID           string
	UserID       string
	Stage        Stage
	Title        string
	Style        string
	Input        string
	Locale       string
	VideoURL     string
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Progress is the polling view of a job: current stage plus scene counters
// for the stage being processed.
type Progress struct {
	JobID     string `json:"job_id"`
	Stage     Stage  `json:"stage"`
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	Message   string `json:"message,omitempty"`
}

// Checkpoint is derived from persisted scene state only; computing one never
// touches a generation provider.
type Checkpoint struct {
	JobID        string   `json:"job_id"`
	Stage        Stage    `json:"stage"`
	Total        int      `json:"total"`
	Completed    int      `json:"completed"`
	Failed       int      `json:"failed"`
	CompletedIDs []string `json:"completed_scene_ids"`
	FailedIDs    []string `json:"failed_scene_ids"`
	CanResume    bool     `json:"can_resume"`
}
