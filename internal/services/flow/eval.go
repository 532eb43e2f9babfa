package flow

import (
	"context"

	"github.com/chromedp/chromedp"
)

// evalFunc executes a script in the page and unmarshals its result into res.
// The Navigator and Driver do all page inspection through this indirection so
// their state machines can be driven against a scripted page in tests.
type evalFunc func(page context.Context, script string, res interface{}) error

// navigateFunc loads a URL in the page
type navigateFunc func(page context.Context, url string) error

// reloadFunc reloads the current page
type reloadFunc func(page context.Context) error

func chromedpEval(page context.Context, script string, res interface{}) error {
	return chromedp.Run(page, chromedp.Evaluate(script, res))
}

func chromedpNavigate(page context.Context, url string) error {
	return chromedp.Run(page, chromedp.Navigate(url))
}

func chromedpReload(page context.Context) error {
	return chromedp.Run(page, chromedp.Reload())
}
