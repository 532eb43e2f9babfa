package models

import "time"

// TaskStatus is the externally visible lifecycle of a render task
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRendering TaskStatus = "rendering"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// IsTerminal returns true once no further status writes are allowed
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// CanTransitionTo enforces monotonic status transitions: terminal states
// accept nothing, and a task never moves back to pending.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch next {
	case TaskStatusPending:
		return false
	case TaskStatusRendering:
		return s == TaskStatusPending
	case TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// RenderSettings are the per-project generation parameters forwarded to the
// target UI.
type RenderSettings struct {
	AspectRatio  string `json:"aspect_ratio"`
	VariantCount int    `json:"variant_count"`
	Model        string `json:"model"`
}

// DefaultRenderSettings returns the settings used when a submission omits them
func DefaultRenderSettings() RenderSettings {
	return RenderSettings{
		AspectRatio:  "16:9",
		VariantCount: 2,
		Model:        "veo3.1-fast",
	}
}

// RenderTask represents one request to generate a single scene's video
// artifact. Mutated only by the orchestrator; terminal once completed or
// failed.
type RenderTask struct {
	ID           string         `json:"id" badgerhold:"key"`
	SceneID      string         `json:"scene_id"`
	ProjectID    string         `json:"project_id"`
	Prompt       string         `json:"prompt"`
	Settings     RenderSettings `json:"settings"`
	Status       TaskStatus     `json:"status"`
	ArtifactPath string         `json:"artifact_path,omitempty"`
	Error        string         `json:"error,omitempty"`
	NavAttempts  int            `json:"nav_attempts"`
	GenAttempts  int            `json:"gen_attempts"`
	LeasedUntil  time.Time      `json:"leased_until,omitempty"` // Queue visibility lease
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}

// View is the last-known top-level navigation state of the target UI
type View string

const (
	ViewUnknown View = "unknown"
	ViewGallery View = "gallery"
	ViewEditor  View = "editor"
)
