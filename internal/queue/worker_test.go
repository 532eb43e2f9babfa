package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/veoflow/veoflow/internal/common"
	"github.com/veoflow/veoflow/internal/models"
)

type claimOnceStorage struct {
	mu      sync.Mutex
	pending []*models.RenderTask
}

func (s *claimOnceStorage) StoreTask(ctx context.Context, task *models.RenderTask) error { return nil }
func (s *claimOnceStorage) GetTask(ctx context.Context, id string) (*models.RenderTask, error) {
	return nil, nil
}
func (s *claimOnceStorage) ListTasks(ctx context.Context) ([]*models.RenderTask, error) {
	return nil, nil
}
func (s *claimOnceStorage) UpdateStatus(ctx context.Context, id string, status models.TaskStatus, artifactPath, errMsg string) error {
	return nil
}

func (s *claimOnceStorage) ClaimPending(ctx context.Context, visibility time.Duration) (*models.RenderTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil, nil
	}
	task := s.pending[0]
	s.pending = s.pending[1:]
	return task, nil
}

func TestWorkerPoolProcessesEachTaskOnce(t *testing.T) {
	storage := &claimOnceStorage{
		pending: []*models.RenderTask{
			{ID: "task_a", Status: models.TaskStatusPending},
			{ID: "task_b", Status: models.TaskStatusPending},
		},
	}

	var mu sync.Mutex
	handled := make(map[string]int)
	done := make(chan struct{}, 2)

	handler := func(ctx context.Context, task *models.RenderTask) error {
		mu.Lock()
		handled[task.ID]++
		mu.Unlock()
		done <- struct{}{}
		return nil
	}

	cfg := common.QueueConfig{
		PollInterval:      10 * time.Millisecond,
		Concurrency:       2,
		VisibilityTimeout: time.Minute,
	}
	pool := NewWorkerPool(cfg, storage, handler, arbor.NewLogger())
	if err := pool.Start(); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("tasks were not processed in time")
		}
	}
	if err := pool.Stop(); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if handled["task_a"] != 1 || handled["task_b"] != 1 {
		t.Errorf("each task must be handled exactly once, got %v", handled)
	}
}

func TestWorkerPoolStopsCleanly(t *testing.T) {
	storage := &claimOnceStorage{}
	pool := NewWorkerPool(common.QueueConfig{
		PollInterval:      10 * time.Millisecond,
		Concurrency:       3,
		VisibilityTimeout: time.Minute,
	}, storage, func(ctx context.Context, task *models.RenderTask) error { return nil }, arbor.NewLogger())

	if err := pool.Start(); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		pool.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}
