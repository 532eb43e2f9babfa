package badger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/veoflow/veoflow/internal/common"
	"github.com/veoflow/veoflow/internal/interfaces"
	"github.com/veoflow/veoflow/internal/models"
)

func newTestDB(t *testing.T) *BadgerDB {
	t.Helper()
	db, err := NewBadgerDB(arbor.NewLogger(), &common.BadgerConfig{
		Path: t.TempDir() + "/badger",
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func storeTask(t *testing.T, s interfaces.TaskStorage, id string, createdAt time.Time) *models.RenderTask {
	t.Helper()
	task := &models.RenderTask{
		ID:        id,
		SceneID:   "scene",
		ProjectID: "proj",
		Prompt:    "prompt",
		Status:    models.TaskStatusPending,
		CreatedAt: createdAt,
	}
	if err := s.StoreTask(context.Background(), task); err != nil {
		t.Fatal(err)
	}
	return task
}

func TestTaskStorageRoundTrip(t *testing.T) {
	s := NewTaskStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()

	storeTask(t, s, "task_1", time.Now())

	got, err := s.GetTask(ctx, "task_1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.TaskStatusPending {
		t.Errorf("status = %s, want pending", got.Status)
	}

	if _, err := s.GetTask(ctx, "missing"); !errors.Is(err, interfaces.ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestUpdateStatusEnforcesMonotonicity(t *testing.T) {
	s := NewTaskStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()

	storeTask(t, s, "task_1", time.Now())

	if err := s.UpdateStatus(ctx, "task_1", models.TaskStatusRendering, "", ""); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateStatus(ctx, "task_1", models.TaskStatusCompleted, "output/proj/scene_scene.mp4", ""); err != nil {
		t.Fatal(err)
	}

	// Terminal tasks reject further writes
	if err := s.UpdateStatus(ctx, "task_1", models.TaskStatusFailed, "", "late failure"); err == nil {
		t.Error("write to a terminal task must be rejected")
	}

	got, err := s.GetTask(ctx, "task_1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.TaskStatusCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("terminal write must stamp CompletedAt")
	}
	if got.Error != "" {
		t.Errorf("rejected write must not leak its error message, got %q", got.Error)
	}
}

func TestClaimPendingLeasesOldestFirst(t *testing.T) {
	s := NewTaskStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()

	now := time.Now()
	storeTask(t, s, "task_new", now)
	storeTask(t, s, "task_old", now.Add(-time.Minute))

	first, err := s.ClaimPending(ctx, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if first == nil || first.ID != "task_old" {
		t.Fatalf("expected oldest task first, got %+v", first)
	}

	second, err := s.ClaimPending(ctx, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if second == nil || second.ID != "task_new" {
		t.Fatalf("expected remaining task, got %+v", second)
	}

	// Both leased now; nothing left to claim
	third, err := s.ClaimPending(ctx, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if third != nil {
		t.Errorf("expected no claimable task, got %+v", third)
	}
}

func TestClaimPendingRedeliversAfterLeaseExpiry(t *testing.T) {
	s := NewTaskStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()

	storeTask(t, s, "task_1", time.Now())

	first, err := s.ClaimPending(ctx, 50*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if first == nil {
		t.Fatal("expected a claim")
	}

	if reclaim, _ := s.ClaimPending(ctx, time.Minute); reclaim != nil {
		t.Fatal("task must be invisible while leased")
	}

	time.Sleep(60 * time.Millisecond)

	reclaim, err := s.ClaimPending(ctx, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if reclaim == nil || reclaim.ID != "task_1" {
		t.Errorf("expired lease must redeliver the task, got %+v", reclaim)
	}
}
