package flow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/veoflow/veoflow/internal/common"
	"github.com/veoflow/veoflow/internal/models"
)

// loginURLFragments identify an auth redirect away from the target UI
var loginURLFragments = []string{"accounts.google.com", "/signin", "/login", "servicelogin"}

// Navigator drives the target UI between its two views. The gallery lists
// projects; the editor holds the prompt input. Generation only works from
// the editor, so EnsureEditor is the precondition for every render attempt.
type Navigator struct {
	cfg      common.FlowConfig
	headless bool
	logger   arbor.ILogger

	eval     evalFunc
	navigate navigateFunc
	reload   reloadFunc
}

// NewNavigator creates a navigation controller for the target UI
func NewNavigator(cfg common.FlowConfig, headless bool, logger arbor.ILogger) *Navigator {
	return &Navigator{
		cfg:      cfg,
		headless: headless,
		logger:   logger,
		eval:     chromedpEval,
		navigate: chromedpNavigate,
		reload:   chromedpReload,
	}
}

// EnsureEditor performs one attempt to land the page in the editor view.
// forceNew starts a fresh project from the gallery instead of reusing
// whatever project the account last had open. Callers retry with a
// recreated page on failure.
func (n *Navigator) EnsureEditor(ctx context.Context, page context.Context, forceNew bool) (models.View, error) {
	navCtx, cancel := context.WithTimeout(page, n.cfg.NavigationTimeout)
	defer cancel()

	if err := n.navigate(navCtx, n.cfg.URL); err != nil {
		return models.ViewUnknown, fmt.Errorf("%w: %v", ErrNavigationFailed, err)
	}
	if err := n.waitDocumentReady(navCtx); err != nil {
		return models.ViewUnknown, fmt.Errorf("%w: %v", ErrNavigationFailed, err)
	}

	if err := n.handleLoginRedirect(navCtx); err != nil {
		return models.ViewUnknown, err
	}

	n.dismissPopups(navCtx)
	if err := n.checkAccountPopup(navCtx); err != nil {
		return models.ViewUnknown, err
	}
	n.settleCredits(navCtx)

	view, err := n.DetectView(navCtx)
	if err != nil {
		return models.ViewUnknown, err
	}

	switch view {
	case models.ViewEditor:
		if !forceNew {
			return models.ViewEditor, nil
		}
		// A fresh project is requested but the account dropped us straight
		// into an old one. Go back through the gallery.
		if err := n.returnToGallery(navCtx); err != nil {
			return view, err
		}
		fallthrough
	case models.ViewGallery:
		if err := n.openProject(navCtx, forceNew); err != nil {
			return models.ViewGallery, err
		}
	default:
		return models.ViewUnknown, fmt.Errorf("%w: page is in neither gallery nor editor view", ErrNavigationFailed)
	}

	n.dismissPopups(navCtx)

	view, err = n.DetectView(navCtx)
	if err != nil {
		return models.ViewUnknown, err
	}
	if view != models.ViewEditor {
		return view, fmt.Errorf("%w: expected editor view after opening project, got %s", ErrNavigationFailed, view)
	}
	return models.ViewEditor, nil
}

// DetectView classifies the current page by counting view-specific markers.
// The editor's prompt input wins ties because gallery-styled chrome persists
// around the editor.
func (n *Navigator) DetectView(ctx context.Context) (models.View, error) {
	script := fmt.Sprintf(`(() => {
		const count = (sels) => sels.reduce((acc, s) => {
			try { return acc + document.querySelectorAll(s).length; } catch (e) { return acc; }
		}, 0);
		const editor = count(%s);
		const gallery = count(%s);
		if (editor > 0) return 'editor';
		if (gallery > 0) return 'gallery';
		return 'unknown';
	})()`, jsSelectorArray(n.cfg.Selectors.EditorIndicator), jsSelectorArray(n.cfg.Selectors.GalleryIndicator))

	var result string
	if err := n.eval(ctx, script, &result); err != nil {
		return models.ViewUnknown, fmt.Errorf("view detection failed: %w", err)
	}

	switch result {
	case "editor":
		return models.ViewEditor, nil
	case "gallery":
		return models.ViewGallery, nil
	default:
		return models.ViewUnknown, nil
	}
}

// ConfigureSettings applies render settings through the UI's settings
// controls. Best effort: the settings panel drifts more than any other part
// of the UI, and defaults are acceptable when a control cannot be found.
func (n *Navigator) ConfigureSettings(ctx context.Context, settings models.RenderSettings) {
	script := fmt.Sprintf(`(() => {
		const applied = [];
		const clickMatching = (label) => {
			const els = document.querySelectorAll('button, [role="option"], [role="menuitemradio"]');
			for (const el of els) {
				if ((el.textContent || '').toLowerCase().includes(label.toLowerCase())) {
					el.click();
					return true;
				}
			}
			return false;
		};
		if (clickMatching(%q)) applied.push('aspect_ratio');
		if (clickMatching(%q)) applied.push('model');
		return applied;
	})()`, settings.AspectRatio, settings.Model)

	var applied []string
	if err := n.eval(ctx, script, &applied); err != nil {
		n.logger.Debug().Err(err).Msg("Settings configuration skipped")
		return
	}
	if len(applied) > 0 {
		n.logger.Debug().
			Str("applied", strings.Join(applied, ",")).
			Msg("Render settings applied")
	}
}

func (n *Navigator) waitDocumentReady(ctx context.Context) error {
	script := `document.readyState === 'complete' || document.readyState === 'interactive'`
	for {
		var ready bool
		if err := n.eval(ctx, script, &ready); err != nil {
			return err
		}
		if ready {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}
}

// handleLoginRedirect deals with the target UI bouncing to an auth page.
// Headless runs fail fast so the operator learns the profile is stale;
// interactive runs wait for an out-of-band login to finish.
func (n *Navigator) handleLoginRedirect(ctx context.Context) error {
	onLogin, err := n.onLoginPage(ctx)
	if err != nil {
		return err
	}
	if !onLogin {
		return nil
	}

	if n.headless {
		n.logger.Warn().Msg("Redirected to login page in headless mode")
		return fmt.Errorf("%w: redirected to login page with no operator available", ErrLoginRequired)
	}

	n.logger.Info().
		Dur("timeout", n.cfg.LoginWaitTimeout).
		Msg("Redirected to login page, waiting for manual login")

	deadline := time.Now().Add(n.cfg.LoginWaitTimeout)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
		onLogin, err = n.onLoginPage(ctx)
		if err != nil {
			return err
		}
		if !onLogin {
			n.logger.Info().Msg("Manual login completed")
			return nil
		}
	}
	return fmt.Errorf("%w: manual login did not complete within %s", ErrLoginRequired, n.cfg.LoginWaitTimeout)
}

func (n *Navigator) onLoginPage(ctx context.Context) (bool, error) {
	var currentURL string
	if err := n.eval(ctx, `window.location.href`, &currentURL); err != nil {
		return false, fmt.Errorf("failed to read page location: %w", err)
	}
	return isLoginURL(currentURL), nil
}

// isLoginURL reports whether a URL belongs to an auth flow rather than the
// target UI
func isLoginURL(raw string) bool {
	lower := strings.ToLower(raw)
	for _, f := range loginURLFragments {
		if strings.Contains(lower, f) {
			return true
		}
	}
	return false
}

// dismissPopups closes transient overlays (cookie consent, release notes,
// tour prompts) that intercept clicks. Account-level popups that survive
// dismissal are picked up by checkAccountPopup.
func (n *Navigator) dismissPopups(ctx context.Context) {
	script := fmt.Sprintf(`(() => {
		let dismissed = 0;
		for (const sel of %s) {
			try {
				for (const btn of document.querySelectorAll(sel)) {
					btn.click();
					dismissed++;
				}
			} catch (e) {}
		}
		return dismissed;
	})()`, jsSelectorArray(n.cfg.Selectors.DialogClose))

	var dismissed int
	if err := n.eval(ctx, script, &dismissed); err != nil {
		n.logger.Debug().Err(err).Msg("Popup dismissal skipped")
		return
	}
	if dismissed > 0 {
		n.logger.Debug().Int("count", dismissed).Msg("Dismissed popups")
	}
}

// checkAccountPopup reads dialog text that survived dismissal. A popup whose
// text matches a known account-level failure blocks every render on this
// profile, so it surfaces as its own error instead of another navigation
// retry.
func (n *Navigator) checkAccountPopup(ctx context.Context) error {
	script := fmt.Sprintf(`(() => {
		const parts = [];
		for (const sel of %s) {
			try {
				for (const el of document.querySelectorAll(sel)) {
					const t = (el.innerText || '').trim();
					if (t) parts.push(t);
				}
			} catch (e) {}
		}
		return parts.join(' ');
	})()`, jsSelectorArray(n.cfg.Selectors.ErrorDialog))

	var text string
	if err := n.eval(ctx, script, &text); err != nil {
		n.logger.Debug().Err(err).Msg("Account popup check skipped")
		return nil
	}

	if msg, blocked := matchAccountPopup(text, n.cfg.MinErrorLength); blocked {
		return &AccountPopupError{Message: msg}
	}
	return nil
}

// matchAccountPopup reports whether dialog text signals an account-level
// failure. Sub-threshold text never matches.
func matchAccountPopup(text string, minLength int) (string, bool) {
	collapsed := strings.Join(strings.Fields(text), " ")
	normalized := strings.ToLower(collapsed)
	if len(normalized) < minLength {
		return "", false
	}
	for _, p := range persistentPatterns {
		if strings.Contains(normalized, p) {
			return collapsed, true
		}
	}
	return "", false
}

// settleCredits waits for the async credit balance to load. Failure here is
// logged and swallowed: a missing balance readout does not stop generation
// from working.
func (n *Navigator) settleCredits(ctx context.Context) {
	for attempt := 0; attempt <= n.cfg.CreditReloadRetries; attempt++ {
		if attempt > 0 {
			n.logger.Debug().Int("attempt", attempt).Msg("Reloading page for credit balance")
			if err := n.reload(ctx); err != nil {
				n.logger.Warn().Err(err).Msg("Reload for credit balance failed")
				return
			}
			if err := n.waitDocumentReady(ctx); err != nil {
				return
			}
		}

		if n.waitCreditSettled(ctx) {
			return
		}
	}

	err := &CreditLoadError{Attempts: n.cfg.CreditReloadRetries}
	n.logger.Warn().Err(err).Msg("Continuing without credit balance")
}

// waitCreditSettled polls within the settle window for the credit failure
// text to clear. Returns true when the balance loaded or never errored.
func (n *Navigator) waitCreditSettled(ctx context.Context) bool {
	script := `(() => {
		const body = (document.body && document.body.innerText) || '';
		return body.includes('Không tải được số tín dụng') ||
			body.toLowerCase().includes('could not load credits') ||
			body.toLowerCase().includes('failed to load credits');
	})()`

	deadline := time.Now().Add(n.cfg.CreditSettleWindow)
	for {
		var failing bool
		if err := n.eval(ctx, script, &failing); err != nil {
			return false
		}
		if !failing {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(time.Second):
		}
	}
}

// openProject moves from the gallery into an editor. forceNew creates a new
// project; otherwise the most recent existing project is opened, falling
// back to creation when the gallery is empty.
func (n *Navigator) openProject(ctx context.Context, forceNew bool) error {
	if !forceNew {
		script := fmt.Sprintf(`(() => {
			for (const sel of %s) {
				try {
					const el = document.querySelector(sel);
					if (el) { el.click(); return true; }
				} catch (e) {}
			}
			return false;
		})()`, jsSelectorArray(n.cfg.Selectors.GalleryIndicator))

		var opened bool
		if err := n.eval(ctx, script, &opened); err != nil {
			return fmt.Errorf("%w: failed to open existing project: %v", ErrNavigationFailed, err)
		}
		if opened {
			return n.waitDocumentReady(ctx)
		}
		// Empty gallery, fall through to creation
	}

	script := fmt.Sprintf(`(() => {
		for (const sel of %s) {
			try {
				const el = document.querySelector(sel);
				if (el) { el.click(); return true; }
			} catch (e) {}
		}
		return false;
	})()`, jsSelectorArray(n.cfg.Selectors.NewProjectButton))

	var clicked bool
	if err := n.eval(ctx, script, &clicked); err != nil {
		return fmt.Errorf("%w: failed to create project: %v", ErrNavigationFailed, err)
	}
	if !clicked {
		return fmt.Errorf("%w: no project creation affordance found in gallery", ErrNavigationFailed)
	}
	return n.waitDocumentReady(ctx)
}

// returnToGallery navigates from an open editor back to the project gallery
func (n *Navigator) returnToGallery(ctx context.Context) error {
	script := fmt.Sprintf(`(() => {
		for (const sel of %s) {
			try {
				const el = document.querySelector(sel);
				if (el) { el.click(); return true; }
			} catch (e) {}
		}
		return false;
	})()`, jsSelectorArray(n.cfg.Selectors.HomeAffordance))

	var clicked bool
	if err := n.eval(ctx, script, &clicked); err != nil {
		return fmt.Errorf("%w: failed to return to gallery: %v", ErrNavigationFailed, err)
	}
	if !clicked {
		// No home affordance, renavigate from the top
		if err := n.navigate(ctx, n.cfg.URL); err != nil {
			return fmt.Errorf("%w: %v", ErrNavigationFailed, err)
		}
	}
	return n.waitDocumentReady(ctx)
}
