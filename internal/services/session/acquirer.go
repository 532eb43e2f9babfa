package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/veoflow/veoflow/internal/common"
	"github.com/veoflow/veoflow/internal/models"
	"github.com/veoflow/veoflow/internal/services/profiles"
)

var (
	// ErrProfileCorrupt indicates the profile's auth-state artifacts are
	// missing or malformed
	ErrProfileCorrupt = errors.New("profile auth state is corrupt")
	// ErrAuthenticationStale indicates too few recognized auth cookies to
	// expect a logged-in session
	ErrAuthenticationStale = errors.New("profile authentication is stale")
)

// authCookiePatterns match cookie names that carry login state, as opposed
// to tracking or preference cookies
var authCookiePatterns = []string{"sid", "session", "auth", "oauth", "login", "token"}

// Acquirer opens isolated browser sessions from profiles. Each acquisition
// copies the profile's cookie snapshot into a task-scoped workspace so
// concurrent tasks on the same profile never touch shared state.
type Acquirer struct {
	browserCfg  common.BrowserConfig
	targetURL   string
	minCookies  int
	sessionsDir string
	profiles    *profiles.Service
	logger      arbor.ILogger
}

// NewAcquirer creates a session acquirer
func NewAcquirer(browserCfg common.BrowserConfig, flowCfg common.FlowConfig, sessionsDir string, profileSvc *profiles.Service, logger arbor.ILogger) *Acquirer {
	return &Acquirer{
		browserCfg:  browserCfg,
		targetURL:   flowCfg.URL,
		minCookies:  flowCfg.MinAuthCookies,
		sessionsDir: sessionsDir,
		profiles:    profileSvc,
		logger:      logger,
	}
}

// Open starts an isolated browser session for one task from the given
// profile snapshot. Fails with ErrProfileCorrupt or ErrAuthenticationStale
// before any browser process is started.
func (a *Acquirer) Open(ctx context.Context, profile *models.Profile, taskID string) (*Session, error) {
	cookies, err := loadCookieJar(filepath.Join(profile.StateDir, profiles.CookieFileName))
	if err != nil {
		return nil, err
	}

	authCount := countAuthCookies(cookies)
	if authCount < a.minCookies {
		a.logger.Warn().
			Str("profile_id", profile.ID).
			Int("auth_cookies", authCount).
			Int("required", a.minCookies).
			Msg("Profile has too few authentication cookies")
		return nil, fmt.Errorf("%w: %d auth cookies, need %d", ErrAuthenticationStale, authCount, a.minCookies)
	}

	// Task-scoped checkout of the snapshot. The shared profile dir is never
	// written by a running session.
	workspace := filepath.Join(a.sessionsDir, taskID)
	if err := os.MkdirAll(workspace, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session workspace: %w", err)
	}
	jar, _ := json.Marshal(cookies)
	if err := os.WriteFile(filepath.Join(workspace, profiles.CookieFileName), jar, 0600); err != nil {
		os.RemoveAll(workspace)
		return nil, fmt.Errorf("failed to copy cookie snapshot into workspace: %w", err)
	}

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(ctx, a.buildAllocatorOptions(workspace)...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)

	cleanup := func() {
		browserCancel()
		allocatorCancel()
		os.RemoveAll(workspace)
	}

	// Startup smoke test before any real navigation
	testCtx, testCancel := context.WithTimeout(browserCtx, a.browserCfg.StartupTimeout)
	defer testCancel()
	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		cleanup()
		return nil, fmt.Errorf("browser failed startup test: %w", err)
	}

	if err := a.injectCookies(browserCtx, cookies); err != nil {
		cleanup()
		return nil, err
	}

	pageCtx, pageCancel := chromedp.NewContext(browserCtx)

	a.profiles.Lease(profile.ID, taskID)

	a.logger.Info().
		Str("task_id", taskID).
		Str("profile_id", profile.ID).
		Int("auth_cookies", authCount).
		Bool("headless", a.browserCfg.Headless).
		Msg("Session opened")

	return &Session{
		ProfileID:       profile.ID,
		TaskID:          taskID,
		WorkspaceDir:    workspace,
		LastView:        models.ViewUnknown,
		AuthCookieCount: authCount,
		allocatorCtx:    allocatorCtx,
		allocatorCancel: allocatorCancel,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		pageCtx:         pageCtx,
		pageCancel:      pageCancel,
		startupTimeout:  a.browserCfg.StartupTimeout,
		released:        func() { a.profiles.Release(profile.ID, taskID) },
		logger:          a.logger,
	}, nil
}

func (a *Acquirer) buildAllocatorOptions(workspace string) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.UserAgent(a.browserCfg.UserAgent),
		chromedp.UserDataDir(filepath.Join(workspace, "chrome")),
		chromedp.WindowSize(a.browserCfg.WindowWidth, a.browserCfg.WindowHeight),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("disable-popup-blocking", true),
		chromedp.Flag("excludeSwitches", "enable-automation"),
		chromedp.Flag("useAutomationExtension", false),
	}
	if a.browserCfg.NoSandbox {
		opts = append(opts, chromedp.Flag("no-sandbox", true))
	}
	if a.browserCfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
		opts = append(opts, chromedp.Flag("disable-gpu", true))
	}
	return opts
}

// injectCookies sets the snapshot cookies on the browser via CDP so the
// first navigation already carries the authenticated session
func (a *Acquirer) injectCookies(browserCtx context.Context, cookies []models.Cookie) error {
	target, err := url.Parse(a.targetURL)
	if err != nil {
		return fmt.Errorf("failed to parse target URL: %w", err)
	}

	if err := chromedp.Run(browserCtx, network.Enable()); err != nil {
		return fmt.Errorf("failed to enable network domain: %w", err)
	}

	return chromedp.Run(browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		failCount := 0
		for _, c := range cookies {
			domain := strings.TrimPrefix(c.Domain, ".")
			if domain == "" {
				domain = target.Host
			}

			param := network.SetCookie(c.Name, c.Value).
				WithDomain(domain).
				WithPath(c.Path).
				WithSecure(c.Secure).
				WithHTTPOnly(c.HTTPOnly)

			if c.Expires > 0 {
				expiresTime := time.Unix(int64(c.Expires), 0)
				if expiresTime.After(time.Now()) {
					timestamp := cdp.TimeSinceEpoch(expiresTime)
					param = param.WithExpires(&timestamp)
				}
			}
			switch strings.ToLower(c.SameSite) {
			case "strict":
				param = param.WithSameSite(network.CookieSameSiteStrict)
			case "lax":
				param = param.WithSameSite(network.CookieSameSiteLax)
			case "none":
				param = param.WithSameSite(network.CookieSameSiteNone)
			}

			if err := param.Do(ctx); err != nil {
				failCount++
				a.logger.Warn().
					Err(err).
					Str("cookie_name", c.Name).
					Str("domain", domain).
					Msg("Failed to inject cookie")
			}
		}
		if failCount == len(cookies) {
			return fmt.Errorf("all %d cookie injections failed", failCount)
		}
		return nil
	}))
}

// loadCookieJar reads and validates a profile cookie snapshot
func loadCookieJar(path string) ([]models.Cookie, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: cookie snapshot missing at %s", ErrProfileCorrupt, path)
		}
		return nil, fmt.Errorf("%w: %v", ErrProfileCorrupt, err)
	}

	var cookies []models.Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("%w: cookie snapshot is not valid JSON: %v", ErrProfileCorrupt, err)
	}
	return cookies, nil
}

// countAuthCookies counts cookies whose names match authentication-scoped
// patterns. Tracking and preference cookies do not count toward a valid
// login state.
func countAuthCookies(cookies []models.Cookie) int {
	count := 0
	for _, c := range cookies {
		name := strings.ToLower(c.Name)
		for _, pattern := range authCookiePatterns {
			if strings.Contains(name, pattern) {
				count++
				break
			}
		}
	}
	return count
}
