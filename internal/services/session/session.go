package session

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/veoflow/veoflow/internal/models"
)

// Session is a live, task-scoped browser context/page pair derived from a
// profile. Owned exclusively by one render task; never persisted.
type Session struct {
	ProfileID       string
	TaskID          string
	WorkspaceDir    string
	LastView        models.View
	AuthCookieCount int

	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	pageCtx         context.Context
	pageCancel      context.CancelFunc

	startupTimeout time.Duration
	released       func()
	logger         arbor.ILogger
}

// Page returns the chromedp context for the current tab
func (s *Session) Page() context.Context {
	return s.pageCtx
}

// RecreatePage closes the current tab and opens a fresh one in the same
// browser, keeping injected cookies. Used by the orchestrator between
// navigation retries after page-closed failures.
func (s *Session) RecreatePage() error {
	if s.pageCancel != nil {
		s.pageCancel()
	}

	pageCtx, pageCancel := chromedp.NewContext(s.browserCtx)
	testCtx, testCancel := context.WithTimeout(pageCtx, s.startupTimeout)
	defer testCancel()
	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		pageCancel()
		return fmt.Errorf("recreated page failed startup test: %w", err)
	}

	s.pageCtx = pageCtx
	s.pageCancel = pageCancel
	s.LastView = models.ViewUnknown

	s.logger.Debug().
		Str("task_id", s.TaskID).
		Msg("Session page recreated")
	return nil
}

// Close releases all browser resources, the profile lease, and the
// task-scoped workspace. Safe to call more than once.
func (s *Session) Close() {
	if s.pageCancel != nil {
		s.pageCancel()
		s.pageCancel = nil
	}
	if s.browserCancel != nil {
		s.browserCancel()
		s.browserCancel = nil
	}
	if s.allocatorCancel != nil {
		s.allocatorCancel()
		s.allocatorCancel = nil
	}
	if s.released != nil {
		s.released()
		s.released = nil
	}
	if s.WorkspaceDir != "" {
		if err := os.RemoveAll(s.WorkspaceDir); err != nil {
			s.logger.Warn().Err(err).Str("workspace", s.WorkspaceDir).Msg("Failed to remove session workspace")
		}
	}

	s.logger.Debug().
		Str("task_id", s.TaskID).
		Str("profile_id", s.ProfileID).
		Msg("Session closed")
}
