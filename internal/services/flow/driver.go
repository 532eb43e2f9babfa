package flow

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/veoflow/veoflow/internal/common"
)

// keySubmitSettle is how long the UI gets to react to the keyboard submit
// before the prompt input is re-read
const keySubmitSettle = 500 * time.Millisecond

// GenerationResult is a completed generation observed on the page
type GenerationResult struct {
	VideoURLs []string
	Elapsed   time.Duration
}

// Driver runs a single generation through the editor: write the prompt,
// trigger, then watch the page until a video appears or a real error
// survives the settle re-check.
type Driver struct {
	cfg        common.FlowConfig
	classifier *Classifier
	logger     arbor.ILogger

	eval      evalFunc
	keySettle time.Duration
}

// NewDriver creates a generation driver
func NewDriver(cfg common.FlowConfig, classifier *Classifier, logger arbor.ILogger) *Driver {
	return &Driver{
		cfg:        cfg,
		classifier: classifier,
		logger:     logger,
		eval:       chromedpEval,
		keySettle:  keySubmitSettle,
	}
}

// Inject writes the prompt into the editor's input and verifies it stuck.
// The input may be a textarea or a contenteditable region depending on the
// UI build, so the write goes through whichever the selector chain finds.
func (d *Driver) Inject(ctx context.Context, prompt string) error {
	script := fmt.Sprintf(`((prompt) => {
		for (const sel of %s) {
			let el;
			try { el = document.querySelector(sel); } catch (e) { continue; }
			if (!el) continue;

			el.focus();
			if (el.tagName === 'TEXTAREA' || el.tagName === 'INPUT') {
				const setter = Object.getOwnPropertyDescriptor(
					el.tagName === 'TEXTAREA' ? HTMLTextAreaElement.prototype : HTMLInputElement.prototype,
					'value').set;
				setter.call(el, prompt);
			} else {
				el.textContent = prompt;
			}
			el.dispatchEvent(new Event('input', { bubbles: true }));
			el.dispatchEvent(new Event('change', { bubbles: true }));

			const current = (el.value !== undefined ? el.value : el.textContent) || '';
			if (current === prompt) return true;
		}
		return false;
	})(%q)`, jsSelectorArray(d.cfg.Selectors.PromptInput), prompt)

	var ok bool
	if err := d.eval(ctx, script, &ok); err != nil {
		return fmt.Errorf("%w: %v", ErrInjectFailed, err)
	}
	if !ok {
		return fmt.Errorf("%w: prompt text did not persist in any input", ErrInjectFailed)
	}

	d.logger.Debug().Int("prompt_length", len(prompt)).Msg("Prompt injected")
	return nil
}

// Trigger starts generation. Keyboard submit from the focused input is
// preferred; the generate button is a fallback used only when the keyboard
// path visibly did not take. The UI empties the prompt input when it accepts
// a submission, so a cleared input after the keyboard event means generation
// started and clicking the button on top of it would start a second one.
// The returned bool is advisory only: the UI gives no synchronous
// acknowledgment, so false means neither path visibly fired, not that
// generation did not start. Callers still await completion either way.
func (d *Driver) Trigger(ctx context.Context) (bool, error) {
	keyScript := fmt.Sprintf(`(() => {
		for (const sel of %s) {
			let el;
			try { el = document.querySelector(sel); } catch (e) { continue; }
			if (!el) continue;
			el.focus();
			const opts = { key: 'Enter', code: 'Enter', keyCode: 13, ctrlKey: true, bubbles: true };
			el.dispatchEvent(new KeyboardEvent('keydown', opts));
			el.dispatchEvent(new KeyboardEvent('keyup', opts));
			return true;
		}
		return false;
	})()`, jsSelectorArray(d.cfg.Selectors.PromptInput))

	var keyed bool
	if err := d.eval(ctx, keyScript, &keyed); err != nil {
		return false, fmt.Errorf("trigger via keyboard failed: %w", err)
	}

	if keyed {
		submitted, err := d.promptConsumed(ctx)
		if err != nil {
			return false, err
		}
		if submitted {
			d.logger.Debug().Bool("keyboard", true).Msg("Generation triggered")
			return true, nil
		}
	}

	buttonScript := fmt.Sprintf(`(() => {
		for (const sel of %s) {
			let el;
			try { el = document.querySelector(sel); } catch (e) { continue; }
			if (el && !el.disabled) { el.click(); return true; }
		}
		return false;
	})()`, jsSelectorArray(d.cfg.Selectors.GenerateButton))

	var clicked bool
	if err := d.eval(ctx, buttonScript, &clicked); err != nil {
		return false, fmt.Errorf("trigger via button failed: %w", err)
	}

	d.logger.Debug().
		Bool("keyboard", keyed).
		Bool("button", clicked).
		Msg("Generation triggered")
	return clicked, nil
}

// promptConsumed reports whether the prompt input emptied after the keyboard
// submit, which is how the UI acknowledges an accepted submission
func (d *Driver) promptConsumed(ctx context.Context) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-time.After(d.keySettle):
	}

	script := fmt.Sprintf(`(() => {
		for (const sel of %s) {
			let el;
			try { el = document.querySelector(sel); } catch (e) { continue; }
			if (!el) continue;
			const remaining = (el.value !== undefined ? el.value : el.textContent) || '';
			return remaining.trim() === '';
		}
		return false;
	})()`, jsSelectorArray(d.cfg.Selectors.PromptInput))

	var cleared bool
	if err := d.eval(ctx, script, &cleared); err != nil {
		return false, fmt.Errorf("prompt check after keyboard submit failed: %w", err)
	}
	return cleared, nil
}

// AwaitCompletion polls the page until generation finishes. Completion is a
// video element with a playable source or a download affordance. Error
// signals are classified, and non-ignored candidates must survive a settle
// re-check before they count; overlays on this UI flicker during normal
// progress.
func (d *Driver) AwaitCompletion(ctx context.Context, page context.Context, triggeredAt time.Time) (*GenerationResult, error) {
	deadline := time.Now().Add(d.cfg.CompletionTimeout)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-page.Done():
			return nil, ErrPageClosed
		case <-time.After(d.cfg.PollInterval):
		}

		urls, err := d.scrapeVideos(page)
		if err != nil {
			return nil, err
		}
		if len(urls) > 0 {
			elapsed := time.Since(triggeredAt)
			d.logger.Info().
				Int("videos", len(urls)).
				Dur("elapsed", elapsed).
				Msg("Generation completed")
			return &GenerationResult{VideoURLs: urls, Elapsed: elapsed}, nil
		}

		text, err := d.scrapeErrorText(page)
		if err != nil {
			return nil, err
		}
		verdict := d.classifier.ClassifyText(text, time.Since(triggeredAt))
		if verdict != VerdictIgnore {
			settled, settledText, err := d.settleCheck(ctx, page, triggeredAt)
			if err != nil {
				return nil, err
			}
			if settled != VerdictIgnore {
				d.logger.Warn().
					Str("verdict", settled.String()).
					Str("error_text", settledText).
					Msg("Generation error confirmed after settle re-check")
				if settled == VerdictPersistent {
					return nil, fmt.Errorf("%w: %s", ErrGenerationFailed, settledText)
				}
				return nil, fmt.Errorf("transient generation error: %s", settledText)
			}
			d.logger.Debug().Str("error_text", text).Msg("Error signal cleared during settle re-check")
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w after %s", ErrGenerationTimeout, d.cfg.CompletionTimeout)
		}
	}
}

// settleCheck waits the settle delay and re-reads the error state. Flicker
// clears; real failures persist.
func (d *Driver) settleCheck(ctx context.Context, page context.Context, triggeredAt time.Time) (Verdict, string, error) {
	select {
	case <-ctx.Done():
		return VerdictIgnore, "", ctx.Err()
	case <-page.Done():
		return VerdictIgnore, "", ErrPageClosed
	case <-time.After(d.cfg.ErrorSettleDelay):
	}

	text, err := d.scrapeErrorText(page)
	if err != nil {
		return VerdictIgnore, "", err
	}
	return d.classifier.ClassifyText(text, time.Since(triggeredAt)), text, nil
}

// scrapeVideos collects playable video sources and download targets from
// the page. Tolerates structural variants: src attribute, nested source
// elements, or a bare download link.
func (d *Driver) scrapeVideos(page context.Context) ([]string, error) {
	script := fmt.Sprintf(`(() => {
		const urls = new Set();
		for (const sel of %s) {
			try {
				for (const v of document.querySelectorAll(sel)) {
					if (v.currentSrc) urls.add(v.currentSrc);
					else if (v.src) urls.add(v.src);
					for (const s of v.querySelectorAll('source')) {
						if (s.src) urls.add(s.src);
					}
				}
			} catch (e) {}
		}
		for (const sel of %s) {
			try {
				for (const a of document.querySelectorAll(sel)) {
					if (a.href && a.href.startsWith('http')) urls.add(a.href);
				}
			} catch (e) {}
		}
		return Array.from(urls).filter(u => u);
	})()`, jsSelectorArray(d.cfg.Selectors.VideoElement), jsSelectorArray(d.cfg.Selectors.DownloadButton))

	var urls []string
	if err := d.eval(page, script, &urls); err != nil {
		if IsPageClosed(err) {
			return nil, fmt.Errorf("%w: %v", ErrPageClosed, err)
		}
		return nil, fmt.Errorf("video scrape failed: %w", err)
	}
	return urls, nil
}

// scrapeErrorText concatenates visible text from error surfaces
func (d *Driver) scrapeErrorText(page context.Context) (string, error) {
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
	})()`, jsSelectorArray(d.cfg.Selectors.ErrorDialog))

	var text string
	if err := d.eval(page, script, &text); err != nil {
		if IsPageClosed(err) {
			return "", fmt.Errorf("%w: %v", ErrPageClosed, err)
		}
		return "", fmt.Errorf("error text scrape failed: %w", err)
	}
	return text, nil
}
