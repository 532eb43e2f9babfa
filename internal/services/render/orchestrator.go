package render

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/veoflow/veoflow/internal/common"
	"github.com/veoflow/veoflow/internal/interfaces"
	"github.com/veoflow/veoflow/internal/models"
	"github.com/veoflow/veoflow/internal/services/flow"
	"github.com/veoflow/veoflow/internal/services/session"
)

// maxGenAttempts bounds in-session generation retries after transient errors
const maxGenAttempts = 2

// browserSession is the slice of a live session the orchestrator drives
type browserSession interface {
	Page() context.Context
	RecreatePage() error
	Close()
}

// profileProvider resolves the active profile
type profileProvider interface {
	GetActive(ctx context.Context) (*models.Profile, error)
}

// flowUI is the target-UI surface the orchestrator needs: navigation plus
// the generation driver
type flowUI interface {
	EnsureEditor(ctx context.Context, page context.Context, forceNew bool) (models.View, error)
	ConfigureSettings(ctx context.Context, settings models.RenderSettings)
	Inject(ctx context.Context, prompt string) error
	Trigger(ctx context.Context) (bool, error)
	AwaitCompletion(ctx context.Context, page context.Context, triggeredAt time.Time) (*flow.GenerationResult, error)
}

// artifactFetcher persists a completed generation's video
type artifactFetcher interface {
	Download(ctx context.Context, task *models.RenderTask, videoURL string) (string, error)
}

// combinedUI adapts the navigator/driver pair to the flowUI surface
type combinedUI struct {
	nav    *flow.Navigator
	driver *flow.Driver
}

func (u *combinedUI) EnsureEditor(ctx context.Context, page context.Context, forceNew bool) (models.View, error) {
	return u.nav.EnsureEditor(ctx, page, forceNew)
}

func (u *combinedUI) ConfigureSettings(ctx context.Context, settings models.RenderSettings) {
	u.nav.ConfigureSettings(ctx, settings)
}

func (u *combinedUI) Inject(ctx context.Context, prompt string) error {
	return u.driver.Inject(ctx, prompt)
}

func (u *combinedUI) Trigger(ctx context.Context) (bool, error) {
	return u.driver.Trigger(ctx)
}

func (u *combinedUI) AwaitCompletion(ctx context.Context, page context.Context, triggeredAt time.Time) (*flow.GenerationResult, error) {
	return u.driver.AwaitCompletion(ctx, page, triggeredAt)
}

// openSession adapts the concrete acquirer so tests can substitute fakes
type openSession func(ctx context.Context, profile *models.Profile, taskID string) (browserSession, error)

// Orchestrator runs one render task end to end: session acquisition,
// navigation to the editor, generation, artifact download, and exactly one
// terminal status write. Every failure path lands in FAILED with a reason;
// the task record is re-read before the final write.
type Orchestrator struct {
	flowCfg   common.FlowConfig
	renderCfg common.RenderConfig

	profiles   profileProvider
	open       openSession
	ui         flowUI
	classifier *flow.Classifier
	fetcher    artifactFetcher
	tasks      interfaces.TaskStorage
	events     interfaces.EventService
	logger     arbor.ILogger
}

// NewOrchestrator wires the production orchestrator
func NewOrchestrator(
	cfg *common.Config,
	profiles profileProvider,
	acquirer *session.Acquirer,
	navigator *flow.Navigator,
	driver *flow.Driver,
	classifier *flow.Classifier,
	downloader *Downloader,
	tasks interfaces.TaskStorage,
	events interfaces.EventService,
	logger arbor.ILogger,
) *Orchestrator {
	return &Orchestrator{
		flowCfg:   cfg.Flow,
		renderCfg: cfg.Render,
		profiles:  profiles,
		open: func(ctx context.Context, profile *models.Profile, taskID string) (browserSession, error) {
			return acquirer.Open(ctx, profile, taskID)
		},
		ui:         &combinedUI{nav: navigator, driver: driver},
		classifier: classifier,
		fetcher:    downloader,
		tasks:      tasks,
		events:     events,
		logger:     logger,
	}
}

// Execute runs a claimed task to a terminal status. The soft budget bounds
// the work itself; the hard budget bounds everything including the final
// status write.
func (o *Orchestrator) Execute(ctx context.Context, task *models.RenderTask) error {
	hardCtx, hardCancel := context.WithTimeout(ctx, o.renderCfg.HardBudget)
	defer hardCancel()
	softCtx, softCancel := context.WithTimeout(hardCtx, o.renderCfg.SoftBudget)
	defer softCancel()

	// Session acquisition happens before the task leaves pending. A profile
	// that cannot produce a usable session fails the task without it ever
	// entering the rendering state.
	profile, err := o.profiles.GetActive(softCtx)
	if err != nil {
		return o.failEarly(hardCtx, task, fmt.Errorf("no usable profile: %w", err))
	}
	sess, err := o.open(softCtx, profile, task.ID)
	if err != nil {
		// Corrupt or stale profiles fail fast; retrying cannot help
		return o.failEarly(hardCtx, task, err)
	}
	defer sess.Close()

	if err := o.transition(hardCtx, task, models.TaskStatusRendering, "", ""); err != nil {
		// Already terminal or racing with another writer; leave it alone
		o.logger.Warn().Err(err).Str("task_id", task.ID).Msg("Task not in a runnable state")
		return err
	}

	artifactPath, runErr := o.run(softCtx, task, sess)
	o.persistAttempts(hardCtx, task)

	if runErr != nil {
		reason := failureReason(softCtx, runErr)
		o.logger.Warn().
			Err(runErr).
			Str("task_id", task.ID).
			Int("nav_attempts", task.NavAttempts).
			Int("gen_attempts", task.GenAttempts).
			Msg("Render task failed")
		if err := o.transition(hardCtx, task, models.TaskStatusFailed, "", reason); err != nil {
			return err
		}
		return runErr
	}

	if err := o.transition(hardCtx, task, models.TaskStatusCompleted, artifactPath, ""); err != nil {
		return err
	}

	o.logger.Info().
		Str("task_id", task.ID).
		Str("artifact", artifactPath).
		Msg("Render task completed")
	return nil
}

// failEarly marks a task FAILED before it ever started rendering
func (o *Orchestrator) failEarly(ctx context.Context, task *models.RenderTask, cause error) error {
	o.logger.Warn().
		Err(cause).
		Str("task_id", task.ID).
		Msg("Render task failed before session start")
	if err := o.transition(ctx, task, models.TaskStatusFailed, "", failureReason(ctx, cause)); err != nil {
		return err
	}
	return cause
}

// run performs the browser work in an open session and returns the artifact
// path
func (o *Orchestrator) run(ctx context.Context, task *models.RenderTask, sess browserSession) (string, error) {
	if err := o.reachEditor(ctx, task, sess); err != nil {
		return "", err
	}

	o.ui.ConfigureSettings(ctx, task.Settings)

	result, err := o.generate(ctx, task, sess)
	if err != nil {
		return "", err
	}

	path, err := o.fetcher.Download(ctx, task, result.VideoURLs[0])
	if err != nil {
		return "", err
	}
	return path, nil
}

// reachEditor drives navigation with bounded retries. Page-closed failures
// get a recreated page and a stabilization pause before the next attempt;
// persistent failures abort immediately.
func (o *Orchestrator) reachEditor(ctx context.Context, task *models.RenderTask, sess browserSession) error {
	var lastErr error
	for attempt := 1; attempt <= o.flowCfg.NavRetries; attempt++ {
		task.NavAttempts++

		_, err := o.ui.EnsureEditor(ctx, sess.Page(), true)
		if err == nil {
			return nil
		}
		lastErr = err

		if o.classifier.ClassifyFailure(err) == flow.VerdictPersistent {
			return err
		}
		o.logger.Warn().
			Err(err).
			Str("task_id", task.ID).
			Int("attempt", attempt).
			Int("max", o.flowCfg.NavRetries).
			Msg("Navigation attempt failed")

		if attempt == o.flowCfg.NavRetries {
			break
		}
		if flow.IsPageClosed(err) {
			if rerr := sess.RecreatePage(); rerr != nil {
				return fmt.Errorf("page recreation failed: %w", rerr)
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(o.renderCfg.NavStabilizePause):
		}
	}
	return fmt.Errorf("%w after %d attempts: %v", flow.ErrNavigationFailed, o.flowCfg.NavRetries, lastErr)
}

// generate runs inject/trigger/await, retrying once in-session after a
// transient failure with a fresh page
func (o *Orchestrator) generate(ctx context.Context, task *models.RenderTask, sess browserSession) (*flow.GenerationResult, error) {
	var lastErr error
	for attempt := 1; attempt <= maxGenAttempts; attempt++ {
		task.GenAttempts++

		result, err := o.generateOnce(ctx, task, sess)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if o.classifier.ClassifyFailure(err) == flow.VerdictPersistent {
			return nil, err
		}
		if errors.Is(err, flow.ErrGenerationTimeout) {
			// The budget is spent; a second attempt cannot fit
			return nil, err
		}
		if attempt == maxGenAttempts {
			break
		}

		o.logger.Warn().
			Err(err).
			Str("task_id", task.ID).
			Int("attempt", attempt).
			Msg("Generation attempt failed, retrying with fresh page")

		if rerr := sess.RecreatePage(); rerr != nil {
			return nil, fmt.Errorf("page recreation failed: %w", rerr)
		}
		if rerr := o.reachEditor(ctx, task, sess); rerr != nil {
			return nil, rerr
		}
	}
	return nil, fmt.Errorf("generation failed after %d attempts: %w", maxGenAttempts, lastErr)
}

func (o *Orchestrator) generateOnce(ctx context.Context, task *models.RenderTask, sess browserSession) (*flow.GenerationResult, error) {
	// One silent re-inject covers the UI swallowing the first write during
	// late hydration
	if err := o.ui.Inject(sess.Page(), task.Prompt); err != nil {
		if err = o.ui.Inject(sess.Page(), task.Prompt); err != nil {
			return nil, err
		}
	}

	confirmed, err := o.ui.Trigger(sess.Page())
	if err != nil {
		return nil, err
	}
	if !confirmed {
		o.logger.Debug().Str("task_id", task.ID).Msg("Trigger unconfirmed, awaiting completion anyway")
	}

	result, err := o.ui.AwaitCompletion(ctx, sess.Page(), time.Now())
	if err != nil {
		return nil, err
	}
	if len(result.VideoURLs) == 0 {
		return nil, fmt.Errorf("completion reported with no video sources")
	}
	return result, nil
}

// transition writes a status change and broadcasts it. The storage layer
// re-reads the record and rejects non-monotonic writes.
func (o *Orchestrator) transition(ctx context.Context, task *models.RenderTask, status models.TaskStatus, artifactPath, errMsg string) error {
	if err := o.tasks.UpdateStatus(ctx, task.ID, status, artifactPath, errMsg); err != nil {
		return err
	}
	task.Status = status

	o.events.Publish(interfaces.TaskEvent{
		TaskID:       task.ID,
		SceneID:      task.SceneID,
		ProjectID:    task.ProjectID,
		Status:       status,
		ArtifactPath: artifactPath,
		Error:        errMsg,
	})
	return nil
}

// persistAttempts writes attempt counters back through a fresh read so a
// concurrent terminal write is never clobbered
func (o *Orchestrator) persistAttempts(ctx context.Context, task *models.RenderTask) {
	stored, err := o.tasks.GetTask(ctx, task.ID)
	if err != nil || stored.Status.IsTerminal() {
		return
	}
	stored.NavAttempts = task.NavAttempts
	stored.GenAttempts = task.GenAttempts
	if err := o.tasks.StoreTask(ctx, stored); err != nil {
		o.logger.Debug().Err(err).Str("task_id", task.ID).Msg("Failed to persist attempt counters")
	}
}

// failureReason renders a terminal error message, folding budget expiry
// into an operator-readable reason
func failureReason(ctx context.Context, err error) string {
	if ctx.Err() != nil && errors.Is(err, context.DeadlineExceeded) {
		return "render budget exceeded"
	}
	if errors.Is(err, context.Canceled) {
		return "render cancelled"
	}
	return err.Error()
}
