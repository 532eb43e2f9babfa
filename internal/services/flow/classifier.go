package flow

import (
	"errors"
	"strings"
	"time"

	"github.com/veoflow/veoflow/internal/common"
)

// Verdict is the classifier's disposition for an observed error signal
type Verdict int

const (
	// VerdictIgnore means the signal is noise and generation should continue
	VerdictIgnore Verdict = iota
	// VerdictTransient means the attempt failed but a retry with a fresh page
	// may succeed
	VerdictTransient
	// VerdictPersistent means retrying on this profile will fail the same way
	VerdictPersistent
)

func (v Verdict) String() string {
	switch v {
	case VerdictIgnore:
		return "ignore"
	case VerdictTransient:
		return "transient"
	case VerdictPersistent:
		return "persistent"
	default:
		return "unknown"
	}
}

// persistentPatterns match error text the target UI shows for failures that
// no amount of retrying on the same profile will fix. The UI localizes its
// dialogs, so the list carries every observed locale.
var persistentPatterns = []string{
	"rất tiếc, đã xảy ra lỗi",
	"something went wrong",
	"an error occurred",
	"content policy",
	"violates our policies",
	"quota exceeded",
	"out of credits",
	"no credits remaining",
	"upgrade your plan",
	"daily limit",
	"account has been",
	"sign in again",
}

// genericFragments are words the UI uses in non-error contexts. Text built
// only from these is never a real error.
var genericFragments = []string{"flow", "error", "failed", "loading", "veo", "..."}

// pageClosedFragments appear in chromedp errors when the tab or browser
// target went away underneath an operation
var pageClosedFragments = []string{
	"context canceled",
	"target closed",
	"target crashed",
	"session closed",
	"websocket: close",
	"page closed",
	"browser closed",
	"inspected target navigated or closed",
}

// Classifier turns raw error signals observed on the page into retry
// dispositions. It is stateless; the settle re-check that filters flicker
// lives with the caller, which owns the page.
type Classifier struct {
	minErrorLength int
	gracePeriod    time.Duration
}

// NewClassifier creates a classifier from flow configuration
func NewClassifier(cfg common.FlowConfig) *Classifier {
	return &Classifier{
		minErrorLength: cfg.MinErrorLength,
		gracePeriod:    cfg.TriggerGracePeriod,
	}
}

// GracePeriod returns the post-trigger window inside which error signals are
// ignored
func (c *Classifier) GracePeriod() time.Duration {
	return c.gracePeriod
}

// ClassifyText classifies error text scraped from the page. sinceTrigger is
// the time elapsed since generation was triggered; signals inside the grace
// period are stale leftovers from the pre-trigger page state.
func (c *Classifier) ClassifyText(text string, sinceTrigger time.Duration) Verdict {
	if sinceTrigger >= 0 && sinceTrigger < c.gracePeriod {
		return VerdictIgnore
	}

	normalized := strings.ToLower(strings.Join(strings.Fields(text), " "))
	if len(normalized) < c.minErrorLength {
		return VerdictIgnore
	}
	if isGenericOnly(normalized) {
		return VerdictIgnore
	}

	for _, p := range persistentPatterns {
		if strings.Contains(normalized, p) {
			return VerdictPersistent
		}
	}

	// Real error text of unknown shape. Assume the attempt is poisoned but
	// the profile is fine.
	return VerdictTransient
}

// ClassifyFailure classifies a Go error from a page operation
func (c *Classifier) ClassifyFailure(err error) Verdict {
	if err == nil {
		return VerdictIgnore
	}

	var popup *AccountPopupError
	if errors.As(err, &popup) {
		return VerdictPersistent
	}
	if errors.Is(err, ErrLoginRequired) {
		return VerdictPersistent
	}
	if errors.Is(err, ErrGenerationFailed) {
		return VerdictPersistent
	}
	if IsPageClosed(err) {
		return VerdictTransient
	}

	return VerdictTransient
}

// IsPageClosed reports whether err indicates the tab or browser target went
// away, which calls for page recreation rather than task failure
func IsPageClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPageClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, f := range pageClosedFragments {
		if strings.Contains(msg, f) {
			return true
		}
	}
	return false
}

// isGenericOnly reports whether normalized text consists entirely of known
// non-error vocabulary
func isGenericOnly(normalized string) bool {
	remainder := normalized
	for _, g := range genericFragments {
		remainder = strings.ReplaceAll(remainder, g, "")
	}
	remainder = strings.TrimFunc(remainder, func(r rune) bool {
		return r == ' ' || r == '.' || r == ':' || r == '-' || r == '!' || r == ','
	})
	return remainder == ""
}
