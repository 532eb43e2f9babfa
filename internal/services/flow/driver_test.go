package flow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/veoflow/veoflow/internal/common"
)

// scriptedPage plays back page-evaluation results, keyed on stable fragments
// of the driver's scripts
type scriptedPage struct {
	mu sync.Mutex

	keyed      bool     // keyboard dispatch finds an input
	cleared    bool     // prompt emptied after the keyboard submit
	clicks     int      // generate button clicks observed
	errorTexts []string // one per error scrape, last value repeats
	errorCalls int
	videoSets  [][]string // one per video scrape, last value repeats
	videoCalls int
}

func (p *scriptedPage) eval(ctx context.Context, script string, res interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case strings.Contains(script, "KeyboardEvent"):
		*res.(*bool) = p.keyed
	case strings.Contains(script, "remaining"):
		*res.(*bool) = p.cleared
	case strings.Contains(script, "el.click()"):
		p.clicks++
		*res.(*bool) = true
	case strings.Contains(script, "currentSrc"):
		idx := p.videoCalls
		p.videoCalls++
		if len(p.videoSets) == 0 {
			*res.(*[]string) = nil
			return nil
		}
		if idx >= len(p.videoSets) {
			idx = len(p.videoSets) - 1
		}
		*res.(*[]string) = p.videoSets[idx]
	case strings.Contains(script, "parts.push"):
		idx := p.errorCalls
		p.errorCalls++
		if len(p.errorTexts) == 0 {
			*res.(*string) = ""
			return nil
		}
		if idx >= len(p.errorTexts) {
			idx = len(p.errorTexts) - 1
		}
		*res.(*string) = p.errorTexts[idx]
	}
	return nil
}

func newScriptedDriver(p *scriptedPage) *Driver {
	cfg := common.NewDefaultConfig().Flow
	cfg.PollInterval = time.Millisecond
	cfg.ErrorSettleDelay = time.Millisecond
	cfg.CompletionTimeout = 250 * time.Millisecond
	cfg.TriggerGracePeriod = 0
	return &Driver{
		cfg:        cfg,
		classifier: NewClassifier(cfg),
		logger:     arbor.NewLogger(),
		eval:       p.eval,
		keySettle:  0,
	}
}

func TestTriggerSkipsButtonAfterKeyboardSubmit(t *testing.T) {
	p := &scriptedPage{keyed: true, cleared: true}
	d := newScriptedDriver(p)

	confirmed, err := d.Trigger(context.Background())
	if err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}
	if !confirmed {
		t.Error("Trigger() = false, want true for an accepted keyboard submit")
	}
	if p.clicks != 0 {
		t.Errorf("generate button clicked %d times after the keyboard submit took; a second trigger starts a duplicate generation", p.clicks)
	}
}

func TestTriggerFallsBackToButtonWhenPromptRemains(t *testing.T) {
	p := &scriptedPage{keyed: true, cleared: false}
	d := newScriptedDriver(p)

	confirmed, err := d.Trigger(context.Background())
	if err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}
	if !confirmed {
		t.Error("Trigger() = false, want true after button fallback")
	}
	if p.clicks != 1 {
		t.Errorf("generate button clicked %d times, want 1", p.clicks)
	}
}

func TestTriggerUsesButtonWhenNoInputFound(t *testing.T) {
	p := &scriptedPage{keyed: false}
	d := newScriptedDriver(p)

	confirmed, err := d.Trigger(context.Background())
	if err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}
	if !confirmed {
		t.Error("Trigger() = false, want true from the button path")
	}
	if p.clicks != 1 {
		t.Errorf("generate button clicked %d times, want 1", p.clicks)
	}
}

func TestAwaitCompletionIgnoresClearedErrorSignal(t *testing.T) {
	p := &scriptedPage{
		videoSets:  [][]string{{}, {}, {"https://storage.example.com/v.mp4"}},
		errorTexts: []string{"Quota exceeded for this account", ""},
	}
	d := newScriptedDriver(p)

	// A candidate error shows on the first poll and is gone by the settle
	// re-check. It must not fail the generation.
	result, err := d.AwaitCompletion(context.Background(), context.Background(), time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("AwaitCompletion() error = %v, want success after flicker cleared", err)
	}
	if len(result.VideoURLs) != 1 || result.VideoURLs[0] != "https://storage.example.com/v.mp4" {
		t.Errorf("unexpected video URLs: %v", result.VideoURLs)
	}
	if p.errorCalls < 2 {
		t.Errorf("error surface scraped %d times, want at least 2 (candidate plus settle re-check)", p.errorCalls)
	}
}

func TestAwaitCompletionFailsWhenErrorSurvivesSettle(t *testing.T) {
	p := &scriptedPage{
		videoSets:  [][]string{{}},
		errorTexts: []string{"Quota exceeded for this account"},
	}
	d := newScriptedDriver(p)

	_, err := d.AwaitCompletion(context.Background(), context.Background(), time.Now().Add(-time.Minute))
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("AwaitCompletion() error = %v, want ErrGenerationFailed", err)
	}
	if p.errorCalls < 2 {
		t.Errorf("error surface scraped %d times, want at least 2 before failing", p.errorCalls)
	}
}
