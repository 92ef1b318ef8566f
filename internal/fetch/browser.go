package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// Renderer launches (or reuses) a headless browser context and renders
// pages, per spec §4.2's "Rendered fetch". One browser is shared per
// cycle; pages are created and closed per URL so a page handle is never
// leaked across fetches.
type Renderer struct {
	UserAgent   string
	QuietPeriod time.Duration

	browser *rod.Browser
}

// Start launches the shared headless browser. Unavailability (missing
// Chrome/Chromium binary, launch failure) is non-fatal: the caller falls
// back to static fetch per spec §4.2.
func (r *Renderer) Start() error {
	path, has := launcher.LookPath()
	if !has {
		return fmt.Errorf("rendered fetch unavailable: no browser binary found")
	}
	controlURL, err := launcher.New().Bin(path).Headless(true).Launch()
	if err != nil {
		return fmt.Errorf("rendered fetch unavailable: %w", err)
	}
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("rendered fetch unavailable: %w", err)
	}
	r.browser = browser
	return nil
}

// Close releases the shared browser.
func (r *Renderer) Close() {
	if r.browser != nil {
		_ = r.browser.Close()
	}
}

// Available reports whether the renderer successfully started.
func (r *Renderer) Available() bool { return r.browser != nil }

// Fetch navigates to target, waits for DOM-content-loaded then a fixed
// quiet period, and returns the rendered HTML. The page handle is released
// on every exit path, including timeouts, via defer.
func (r *Renderer) Fetch(ctx context.Context, target string) Result {
	if r.browser == nil {
		return Result{Err: fmt.Errorf("rendered fetch unavailable: browser not started")}
	}
	start := time.Now()

	quiet := r.QuietPeriod
	if quiet <= 0 {
		quiet = 2 * time.Second
	}
	navTimeout := 10 * time.Second
	pageCtx, cancel := context.WithTimeout(ctx, navTimeout)
	defer cancel()

	incognito, err := r.browser.Incognito()
	if err != nil {
		return Result{ElapsedMS: time.Since(start).Milliseconds(), Err: fmt.Errorf("incognito context: %w", err)}
	}

	page, err := incognito.Context(pageCtx).Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return Result{ElapsedMS: time.Since(start).Milliseconds(), Err: fmt.Errorf("open page: %w", err)}
	}
	defer func() { _ = page.Close() }()

	if r.UserAgent != "" {
		_ = proto.NetworkSetUserAgentOverride{UserAgent: r.UserAgent}.Call(page)
	}

	waitDOMContentLoaded := page.Timeout(navTimeout).WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := page.Timeout(navTimeout).Navigate(target); err != nil {
		return Result{ElapsedMS: time.Since(start).Milliseconds(), Mode: ModeRendered, Err: fmt.Errorf("navigate: %w", err)}
	}
	waitDOMContentLoaded()
	if err := page.Timeout(navTimeout).WaitDOMStable(quiet, 0); err != nil {
		// DOM never fully settled within the quiet period; still read
		// whatever rendered rather than failing the fetch.
	}

	htmlStr, err := page.HTML()
	if err != nil {
		return Result{ElapsedMS: time.Since(start).Milliseconds(), Mode: ModeRendered, Err: fmt.Errorf("read html: %w", err)}
	}

	finalURL := target
	if info, ierr := page.Info(); ierr == nil && info != nil && info.URL != "" {
		finalURL = info.URL
	}

	return Result{
		FinalURL:   finalURL,
		StatusCode: 200,
		Body:       htmlStr,
		ElapsedMS:  time.Since(start).Milliseconds(),
		Mode:       ModeRendered,
	}
}
