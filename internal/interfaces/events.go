package interfaces

import "github.com/veoflow/veoflow/internal/models"

// TaskEvent is one task status change broadcast to subscribers
type TaskEvent struct {
	TaskID       string            `json:"task_id"`
	SceneID      string            `json:"scene_id"`
	ProjectID    string            `json:"project_id"`
	Status       models.TaskStatus `json:"status"`
	ArtifactPath string            `json:"artifact_path,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// EventService fans task status changes out to subscribers (websocket
// clients). Publish never blocks the orchestrator.
type EventService interface {
	Publish(event TaskEvent)
	Subscribe() (<-chan TaskEvent, func())
}
