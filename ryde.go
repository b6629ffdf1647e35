// ryde.go
// Date: 2026-01-12
// Version: 0.3.0
// License: GPL-3.0
// License Details: https://www.gnu.org/licenses/gpl-3.0.en.html
//

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

const (
	addressInputSelector = `#txtAddressPublic-My-Area`
	searchButtonName     = `btnSearch_Public-My-Area`
	suggestionSelector   = `.pac-item`

	addressFieldTimeout = 10 * time.Second
	suggestionTimeout   = 3 * time.Second
)

// ErrAcquisition marks every failure to obtain the rendered results page.
var ErrAcquisition = errors.New("could not acquire schedule page")

// Global variable to hold the allocator context
var allocatorContext context.Context

// newAllocator starts a headless browser allocator. The returned cancel func
// shuts the browser down and must be called on every exit path.
func newAllocator(cfg *Config) (context.Context, context.CancelFunc) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("no-sandbox", true), // Running as root requires this
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(cfg.UserAgent),
	)
	if cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ChromePath))
	}
	return chromedp.NewExecAllocator(context.Background(), opts...)
}

// acquisitionError wraps err so that it matches ErrAcquisition while keeping
// the underlying chain (context.DeadlineExceeded in particular) reachable.
func acquisitionError(step string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrAcquisition, step, err)
}

// fetchScheduleHTML fills in the "My area" address search and returns the
// rendered results page.
var fetchScheduleHTML = func(ctx context.Context, address string, debugging bool) (string, error) {
	if allocatorContext == nil {
		return "", fmt.Errorf("%w: browser is not available", ErrAcquisition)
	}

	// One tab per acquisition; closed when this function returns.
	tabCtx, cancel := chromedp.NewContext(allocatorContext)
	defer cancel()
	tabCtx, cancel = context.WithTimeout(tabCtx, appConfig.Timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	log.Printf("Loading page: %s", appConfig.SiteURL)
	if err := chromedp.Run(tabCtx, chromedp.Navigate(appConfig.SiteURL)); err != nil {
		return "", acquisitionError("load page", err)
	}

	if err := waitForAddressField(tabCtx); err != nil {
		return "", acquisitionError("could not find address input field", err)
	}

	log.Printf("Searching for address: %s", address)
	err := chromedp.Run(tabCtx,
		chromedp.ScrollIntoView(addressInputSelector, chromedp.ByQuery),
		chromedp.Clear(addressInputSelector, chromedp.ByQuery),
		chromedp.SendKeys(addressInputSelector, address, chromedp.ByQuery),
	)
	if err != nil {
		return "", acquisitionError("enter address", err)
	}

	if err := chooseSuggestion(tabCtx, debugging); err != nil {
		return "", acquisitionError("select address", err)
	}

	if err := submitSearch(tabCtx, debugging); err != nil {
		return "", acquisitionError("submit search", err)
	}

	log.Println("Waiting for results...")
	if err := waitForResults(tabCtx); err != nil {
		return "", acquisitionError("wait for results", err)
	}

	var html string
	if err := chromedp.Run(tabCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", acquisitionError("read page", err)
	}
	if debugging {
		log.Printf("Acquired %d bytes of HTML", len(html))
	}
	return html, nil
}

func waitForAddressField(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, addressFieldTimeout)
	defer cancel()
	return chromedp.Run(ctx, chromedp.WaitVisible(addressInputSelector, chromedp.ByQuery))
}

// chooseSuggestion clicks the first Google Places suggestion, or presses
// Enter when the dropdown never appears.
func chooseSuggestion(ctx context.Context, debugging bool) error {
	var shown bool
	err := chromedp.Run(ctx, chromedp.Poll(
		`document.querySelectorAll('`+suggestionSelector+`').length > 0`,
		&shown,
		chromedp.WithPollingTimeout(suggestionTimeout),
	))
	if errors.Is(err, chromedp.ErrPollingTimeout) {
		log.Println("No autocomplete items found, pressing Enter")
		return chromedp.Run(ctx, chromedp.SendKeys(addressInputSelector, kb.Enter, chromedp.ByQuery))
	}
	if err != nil {
		return err
	}

	var nodes []*cdp.Node
	if err := chromedp.Run(ctx, chromedp.Nodes(suggestionSelector, &nodes, chromedp.ByQueryAll)); err != nil {
		return err
	}
	log.Printf("Found %d autocomplete suggestions", len(nodes))
	if err := chromedp.Run(ctx, chromedp.MouseClickNode(nodes[0])); err != nil {
		return err
	}
	if debugging {
		log.Println("Clicked first autocomplete suggestion")
	}
	return nil
}

// submitSearch clicks the search button when the page has one; otherwise the
// form is submitted with Enter from the address field.
func submitSearch(ctx context.Context, debugging bool) error {
	buttonSelector := `[name="` + searchButtonName + `"]`

	var hasButton bool
	if err := chromedp.Run(ctx, chromedp.Evaluate(
		`document.getElementsByName('`+searchButtonName+`').length > 0`, &hasButton,
	)); err != nil {
		return err
	}

	if !hasButton {
		log.Println("Could not find search button, pressing Enter")
		return chromedp.Run(ctx, chromedp.SendKeys(addressInputSelector, kb.Enter, chromedp.ByQuery))
	}

	err := chromedp.Run(ctx,
		chromedp.ScrollIntoView(buttonSelector, chromedp.ByQuery),
		chromedp.Click(buttonSelector, chromedp.ByQuery),
	)
	if err == nil && debugging {
		log.Println("Clicked search button")
	}
	return err
}

// waitForResults polls until a collection date is visible or the configured
// wait elapses. Running out of time is not an error; the extractor reports
// whatever the page holds at that point.
func waitForResults(ctx context.Context) error {
	var ready bool
	err := chromedp.Run(ctx, chromedp.Poll(
		`/(Mon|Tue|Wed|Thu|Fri|Sat|Sun)\s+\d{1,2}\/\d{1,2}\/\d{4}/i.test(document.body.innerText)`,
		&ready,
		chromedp.WithPollingTimeout(appConfig.ResultsWait),
		chromedp.WithPollingInterval(250*time.Millisecond),
	))
	if errors.Is(err, chromedp.ErrPollingTimeout) {
		log.Printf("No collection date appeared within %s", appConfig.ResultsWait)
		return nil
	}
	return err
}
