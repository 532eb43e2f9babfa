package badger

import (
	"context"
	"fmt"
	"sort"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"
	"github.com/veoflow/veoflow/internal/interfaces"
	"github.com/veoflow/veoflow/internal/models"
)

// TaskStorage implements the TaskStorage interface for Badger. It doubles as
// the pending-task queue: ClaimPending leases tasks to workers with a
// visibility timeout so a crashed worker releases its claim.
type TaskStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewTaskStorage creates a new TaskStorage instance
func NewTaskStorage(db *BadgerDB, logger arbor.ILogger) interfaces.TaskStorage {
	return &TaskStorage{
		db:     db,
		logger: logger,
	}
}

func (s *TaskStorage) StoreTask(ctx context.Context, task *models.RenderTask) error {
	if task.ID == "" {
		return fmt.Errorf("task ID is required")
	}

	now := time.Now()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now
	if task.Status == "" {
		task.Status = models.TaskStatusPending
	}

	if err := s.db.Store().Upsert(task.ID, task); err != nil {
		return fmt.Errorf("failed to store task: %w", err)
	}
	return nil
}

func (s *TaskStorage) GetTask(ctx context.Context, id string) (*models.RenderTask, error) {
	var task models.RenderTask
	if err := s.db.Store().Get(id, &task); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, interfaces.ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return &task, nil
}

func (s *TaskStorage) ListTasks(ctx context.Context) ([]*models.RenderTask, error) {
	var tasks []models.RenderTask
	if err := s.db.Store().Find(&tasks, nil); err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})

	result := make([]*models.RenderTask, len(tasks))
	for i := range tasks {
		result[i] = &tasks[i]
	}
	return result, nil
}

// UpdateStatus re-reads the stored record before writing, never trusting an
// in-memory reference carried across suspension points. Writes to a terminal
// task are rejected.
func (s *TaskStorage) UpdateStatus(ctx context.Context, id string, status models.TaskStatus, artifactPath, errMsg string) error {
	task, err := s.GetTask(ctx, id)
	if err != nil {
		return err
	}

	if !task.Status.CanTransitionTo(status) {
		return fmt.Errorf("invalid status transition for task %s: %s -> %s", id, task.Status, status)
	}

	now := time.Now()
	task.Status = status
	task.UpdatedAt = now
	if artifactPath != "" {
		task.ArtifactPath = artifactPath
	}
	if errMsg != "" {
		task.Error = errMsg
	}
	if status.IsTerminal() {
		task.CompletedAt = &now
	}

	if err := s.db.Store().Upsert(task.ID, task); err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}

	s.logger.Debug().
		Str("task_id", id).
		Str("status", string(status)).
		Msg("Task status updated")
	return nil
}

// ClaimPending leases the oldest pending task whose previous lease (if any)
// has expired. The find-and-lease runs under a single badgerhold transaction
// so two polling workers never claim the same task.
func (s *TaskStorage) ClaimPending(ctx context.Context, visibility time.Duration) (*models.RenderTask, error) {
	var claimed *models.RenderTask

	err := s.db.Store().Badger().Update(func(tx *badgerdb.Txn) error {
		var candidates []models.RenderTask
		now := time.Now()

		query := badgerhold.Where("Status").Eq(models.TaskStatusPending).
			And("LeasedUntil").Lt(now)
		if err := s.db.Store().TxFind(tx, &candidates, query); err != nil {
			return fmt.Errorf("failed to query pending tasks: %w", err)
		}
		if len(candidates) == 0 {
			return nil
		}

		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
		})

		task := candidates[0]
		task.LeasedUntil = now.Add(visibility)
		task.UpdatedAt = now
		if err := s.db.Store().TxUpsert(tx, task.ID, &task); err != nil {
			return fmt.Errorf("failed to lease task %s: %w", task.ID, err)
		}

		claimed = &task
		return nil
	})
	if err != nil {
		return nil, err
	}

	return claimed, nil
}
