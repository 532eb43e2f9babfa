package interfaces

import (
	"context"
	"time"

	"github.com/veoflow/veoflow/internal/models"
)

// ProfileStorage persists profile metadata and the active-profile pointer
type ProfileStorage interface {
	StoreProfile(ctx context.Context, profile *models.Profile) error
	GetProfile(ctx context.Context, id string) (*models.Profile, error)
	ListProfiles(ctx context.Context) ([]*models.Profile, error)
	// SetActive activates the given profile and deactivates every other one
	SetActive(ctx context.Context, id string) error
	// GetActive returns ErrNoActiveProfile when no profile is active
	GetActive(ctx context.Context) (*models.Profile, error)
	DeleteProfile(ctx context.Context, id string) error
}

// TaskStorage persists render tasks and backs the pending-task queue
type TaskStorage interface {
	StoreTask(ctx context.Context, task *models.RenderTask) error
	GetTask(ctx context.Context, id string) (*models.RenderTask, error)
	ListTasks(ctx context.Context) ([]*models.RenderTask, error)
	// UpdateStatus re-reads the task record, enforces monotonic transitions
	// and writes the new status with optional artifact path or error summary
	UpdateStatus(ctx context.Context, id string, status models.TaskStatus, artifactPath, errMsg string) error
	// ClaimPending atomically leases the oldest claimable pending task for a
	// worker. The lease expires after visibility so crashed workers release
	// their claim. Returns nil when nothing is claimable.
	ClaimPending(ctx context.Context, visibility time.Duration) (*models.RenderTask, error)
}
