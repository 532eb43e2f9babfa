package flow

import (
	"errors"
	"fmt"
)

var (
	// ErrLoginRequired indicates the target UI redirected to a login page and
	// the session cannot proceed without fresh credentials
	ErrLoginRequired = errors.New("login required")
	// ErrNavigationFailed indicates the editor could not be reached after all
	// navigation attempts
	ErrNavigationFailed = errors.New("navigation to editor failed")
	// ErrPageClosed indicates the browser tab or target went away mid-operation
	ErrPageClosed = errors.New("page closed")
	// ErrInjectFailed indicates the prompt could not be written into the
	// editor's input
	ErrInjectFailed = errors.New("prompt injection failed")
	// ErrGenerationTimeout indicates no completion or persistent error signal
	// appeared within the completion budget
	ErrGenerationTimeout = errors.New("generation timed out")
	// ErrGenerationFailed indicates the UI surfaced a persistent error during
	// generation
	ErrGenerationFailed = errors.New("generation failed")
)

// CreditLoadError is the non-fatal failure to read the account's credit
// balance during navigation. Generation may still succeed, so callers log
// and continue.
type CreditLoadError struct {
	Attempts int
}

func (e *CreditLoadError) Error() string {
	return fmt.Sprintf("credit balance failed to load after %d reload attempts", e.Attempts)
}

// AccountPopupError indicates an account-level modal (quota exhausted, plan
// upgrade, terms change) that blocks generation and will block every retry
// on the same profile.
type AccountPopupError struct {
	Message string
}

func (e *AccountPopupError) Error() string {
	return fmt.Sprintf("account popup blocks generation: %s", e.Message)
}
