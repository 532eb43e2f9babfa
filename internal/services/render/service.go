package render

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/veoflow/veoflow/internal/common"
	"github.com/veoflow/veoflow/internal/interfaces"
	"github.com/veoflow/veoflow/internal/models"
)

// Service is the submission surface for render tasks. Tasks are persisted
// pending and picked up by queue workers, which hand them to the
// orchestrator.
type Service struct {
	tasks  interfaces.TaskStorage
	events interfaces.EventService
	logger arbor.ILogger
}

// NewService creates the render service
func NewService(tasks interfaces.TaskStorage, events interfaces.EventService, logger arbor.ILogger) *Service {
	return &Service{
		tasks:  tasks,
		events: events,
		logger: logger,
	}
}

// Submit validates and enqueues a render task. Zero-valued settings fields
// fall back to defaults.
func (s *Service) Submit(ctx context.Context, sceneID, projectID, prompt string, settings models.RenderSettings) (*models.RenderTask, error) {
	sceneID = strings.TrimSpace(sceneID)
	projectID = strings.TrimSpace(projectID)
	prompt = strings.TrimSpace(prompt)
	if sceneID == "" || projectID == "" {
		return nil, fmt.Errorf("scene ID and project ID are required")
	}
	if prompt == "" {
		return nil, fmt.Errorf("prompt is required")
	}

	defaults := models.DefaultRenderSettings()
	if settings.AspectRatio == "" {
		settings.AspectRatio = defaults.AspectRatio
	}
	if settings.VariantCount <= 0 {
		settings.VariantCount = defaults.VariantCount
	}
	if settings.Model == "" {
		settings.Model = defaults.Model
	}

	task := &models.RenderTask{
		ID:        common.NewTaskID(),
		SceneID:   sceneID,
		ProjectID: projectID,
		Prompt:    prompt,
		Settings:  settings,
		Status:    models.TaskStatusPending,
	}
	if err := s.tasks.StoreTask(ctx, task); err != nil {
		return nil, err
	}

	s.events.Publish(interfaces.TaskEvent{
		TaskID:    task.ID,
		SceneID:   task.SceneID,
		ProjectID: task.ProjectID,
		Status:    task.Status,
	})

	s.logger.Info().
		Str("task_id", task.ID).
		Str("scene_id", sceneID).
		Str("project_id", projectID).
		Msg("Render task submitted")
	return task, nil
}

// Get returns a task by id
func (s *Service) Get(ctx context.Context, id string) (*models.RenderTask, error) {
	return s.tasks.GetTask(ctx, id)
}

// List returns all tasks, newest first
func (s *Service) List(ctx context.Context) ([]*models.RenderTask, error) {
	return s.tasks.ListTasks(ctx)
}
