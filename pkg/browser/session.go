package browser

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Session is one live browser bound to one capture or replay run. Its
// primitive methods implement the engine's driver capability; the per-attempt
// context deadline is translated into Playwright operation timeouts.
type Session struct {
	// Browser is the launched browser instance.
	Browser playwright.Browser

	// Context is the isolated browser context the session runs in.
	Context playwright.BrowserContext

	// Page is the single page the session operates on.
	Page playwright.Page

	// Name identifies the session within its manager.
	Name string

	// CreatedAt is when the session was started.
	CreatedAt time.Time

	// LastUsedAt is when the session last executed a primitive.
	LastUsedAt time.Time

	// Headless reports whether the browser runs without a window.
	Headless bool
}

// touch updates the last-used timestamp.
func (s *Session) touch() {
	s.LastUsedAt = time.Now()
}

// close releases the session's Playwright resources, ignoring errors so a
// half-dead session still cleans up.
func (s *Session) close() {
	_ = s.Page.Close()
	_ = s.Context.Close()
	_ = s.Browser.Close()
}

// timeoutMs converts the context deadline into a Playwright timeout option.
// Without a deadline the page default applies.
func timeoutMs(ctx context.Context) *float64 {
	deadline, ok := ctx.Deadline()
	if !ok {
		return nil
	}
	ms := float64(time.Until(deadline)) / float64(time.Millisecond)
	if ms < 1 {
		ms = 1
	}
	return &ms
}

// Navigate loads a URL and waits for the load event.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.touch()
	waitUntil := playwright.WaitUntilStateLoad
	if _, err := s.Page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: waitUntil,
		Timeout:   timeoutMs(ctx),
	}); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

// Click clicks the first element matching the selector.
func (s *Session) Click(ctx context.Context, selector string) error {
	s.touch()
	if err := s.Page.Click(selector, playwright.PageClickOptions{Timeout: timeoutMs(ctx)}); err != nil {
		return fmt.Errorf("click failed: %w", err)
	}
	return nil
}

// Type fills the element matching the selector with the value.
func (s *Session) Type(ctx context.Context, selector, value string) error {
	s.touch()
	if err := s.Page.Fill(selector, value, playwright.PageFillOptions{Timeout: timeoutMs(ctx)}); err != nil {
		return fmt.Errorf("type failed: %w", err)
	}
	return nil
}

// Select chooses an option by value in a select element.
func (s *Session) Select(ctx context.Context, selector, value string) error {
	s.touch()
	if _, err := s.Page.SelectOption(selector, playwright.SelectOptionValues{
		Values: &[]string{value},
	}, playwright.PageSelectOptionOptions{Timeout: timeoutMs(ctx)}); err != nil {
		return fmt.Errorf("select failed: %w", err)
	}
	return nil
}

// Hover hovers the element matching the selector.
func (s *Session) Hover(ctx context.Context, selector string) error {
	s.touch()
	if err := s.Page.Hover(selector, playwright.PageHoverOptions{Timeout: timeoutMs(ctx)}); err != nil {
		return fmt.Errorf("hover failed: %w", err)
	}
	return nil
}

// WaitForSelector blocks until the selector is attached or the timeout
// elapses. The explicit timeout wins over the context deadline because
// recorded workflows carry their own per-wait budgets.
func (s *Session) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	s.touch()
	ms := float64(timeout) / float64(time.Millisecond)
	opts := playwright.PageWaitForSelectorOptions{Timeout: &ms}
	if ms <= 0 {
		opts.Timeout = timeoutMs(ctx)
	}
	if _, err := s.Page.WaitForSelector(selector, opts); err != nil {
		return fmt.Errorf("wait failed: %w", err)
	}
	return nil
}

// Screenshot captures the current viewport as PNG bytes.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	s.touch()
	data, err := s.Page.Screenshot(playwright.PageScreenshotOptions{Timeout: timeoutMs(ctx)})
	if err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return data, nil
}

// Download triggers a navigation expected to produce a file download and
// returns the downloaded bytes.
func (s *Session) Download(ctx context.Context, url string) ([]byte, error) {
	s.touch()
	download, err := s.Page.ExpectDownload(func() error {
		// A navigation that turns into a download aborts itself, so the
		// goto error is expected and must not fail the capture.
		_, _ = s.Page.Goto(url, playwright.PageGotoOptions{Timeout: timeoutMs(ctx)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}

	path, err := download.Path()
	if err != nil {
		return nil, fmt.Errorf("download produced no file: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading downloaded file failed: %w", err)
	}
	return data, nil
}

// CurrentURL reports the page's current location.
func (s *Session) CurrentURL() string {
	return s.Page.URL()
}

// Content returns the page's current HTML.
func (s *Session) Content() (string, error) {
	s.touch()
	return s.Page.Content()
}
