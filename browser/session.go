// Package browser drives a long-lived Chrome session through the DevTools
// protocol. Unlike a per-fetch headless browser, the session here stays
// open across many page interactions so login state and scroll position
// survive between steps.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"coursekit/config"
)

// ErrSessionClosed is reported when the underlying browser window has been
// closed, either by the user or by a crash.
var ErrSessionClosed = errors.New("browser session closed")

// Session is a handle to a running Chrome instance. All actions run in the
// session's single tab and each carries its own timeout so a stuck page
// never hangs the caller forever.
type Session struct {
	cfg    config.Chrome
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc

	allocCancel context.CancelFunc
}

// Launch starts Chrome with the configured profile and returns a live
// session. The profile directory keeps cookies, so a profile that has been
// logged in once stays logged in on later launches.
func Launch(cfg config.Chrome, log *zap.Logger) (*Session, error) {
	s := &Session{cfg: cfg, log: log}
	if err := s.start(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) start() error {
	allocOpts := []chromedp.ExecAllocatorOption{
		chromedp.NoDefaultBrowserCheck,
		chromedp.NoFirstRun,
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-component-update", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-service-autorun", true),
		chromedp.Flag("password-store", "basic"),
		chromedp.Flag("use-mock-keychain", true),
		chromedp.WindowSize(1920, 1080),
	}
	if s.cfg.UserDataDir != "" {
		allocOpts = append(allocOpts, chromedp.UserDataDir(s.cfg.UserDataDir))
	}
	if s.cfg.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(s.cfg.ExecPath))
	}
	if s.cfg.Headless {
		allocOpts = append(allocOpts, chromedp.Flag("headless", "new"))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	ctx, cancel := chromedp.NewContext(allocCtx)

	// Spin the browser up eagerly so a bad ExecPath fails here rather
	// than on the first navigation.
	if err := chromedp.Run(ctx); err != nil {
		cancel()
		allocCancel()
		return fmt.Errorf("launching chrome: %w", err)
	}

	s.ctx = ctx
	s.cancel = cancel
	s.allocCancel = allocCancel
	s.log.Info("browser launched", zap.Bool("headless", s.cfg.Headless))
	return nil
}

// Relaunch tears down the current browser and starts a fresh one with the
// same profile. Used when the window dies mid-crawl.
func (s *Session) Relaunch() error {
	s.Close()
	return s.start()
}

// Close shuts the browser down. Safe to call more than once.
func (s *Session) Close() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.allocCancel != nil {
		s.allocCancel()
		s.allocCancel = nil
	}
}

// Closed reports whether err indicates the browser itself went away, as
// opposed to a single action failing.
func Closed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSessionClosed) || errors.Is(err, context.Canceled) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "websocket") ||
		strings.Contains(msg, "connection closed") ||
		strings.Contains(msg, "browser closed")
}

// run executes actions with the session's per-action timeout applied.
func (s *Session) run(actions ...chromedp.Action) error {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.Timeout())
	defer cancel()
	err := chromedp.Run(ctx, actions...)
	if err != nil && s.ctx.Err() != nil {
		return ErrSessionClosed
	}
	return err
}

// Navigate loads url and waits for the document to be ready.
func (s *Session) Navigate(url string) error {
	s.log.Debug("navigate", zap.String("url", url))
	return s.run(chromedp.Navigate(url))
}

// Back navigates the tab one step back in history.
func (s *Session) Back() error {
	return s.run(chromedp.NavigateBack())
}

// Location returns the tab's current URL.
func (s *Session) Location() (string, error) {
	var url string
	if err := s.run(chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

// WaitVisible blocks until sel matches a visible element, up to timeout.
func (s *Session) WaitVisible(sel string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	err := chromedp.Run(ctx, chromedp.WaitVisible(sel, chromedp.ByQuery))
	if err != nil && s.ctx.Err() != nil {
		return ErrSessionClosed
	}
	return err
}

// PageSource returns the full rendered HTML of the current page.
func (s *Session) PageSource() (string, error) {
	var html string
	if err := s.run(chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// ElementHTML returns the outer HTML of the first element matching sel.
func (s *Session) ElementHTML(sel string) (string, error) {
	var html string
	if err := s.run(chromedp.OuterHTML(sel, &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// Click clicks the first element matching sel.
func (s *Session) Click(sel string) error {
	return s.run(chromedp.Click(sel, chromedp.ByQuery))
}

// ClickNth clicks the n-th element (zero-based) matching sel. chromedp's
// own Click only hits the first match, so the dispatch happens in page JS.
func (s *Session) ClickNth(sel string, n int) error {
	script := fmt.Sprintf(
		`(() => { const els = document.querySelectorAll(%q); if (els.length <= %d) return false; els[%d].click(); return true; })()`,
		sel, n, n,
	)
	var ok bool
	if err := s.run(chromedp.Evaluate(script, &ok)); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no element %d for selector %q", n, sel)
	}
	return nil
}

// ClickText clicks the first element whose exact text content is text.
func (s *Session) ClickText(text string) error {
	xpath := fmt.Sprintf(`//*[text()=%q]`, text)
	return s.run(chromedp.Click(xpath, chromedp.BySearch))
}

// ClickTextNth clicks the n-th element (zero-based) whose exact text
// content is text.
func (s *Session) ClickTextNth(text string, n int) error {
	xpath := fmt.Sprintf(`(//*[text()=%q])[%d]`, text, n+1)
	return s.run(chromedp.Click(xpath, chromedp.BySearch))
}

// ScrollToBottom scrolls the page to the bottom repeatedly until the
// document height stops growing, so lazily loaded lists fully populate.
func (s *Session) ScrollToBottom() error {
	const script = `(async () => {
		let last = 0;
		for (let i = 0; i < 30; i++) {
			window.scrollTo(0, document.body.scrollHeight);
			await new Promise(r => setTimeout(r, 400));
			const h = document.body.scrollHeight;
			if (h === last) break;
			last = h;
		}
		return document.body.scrollHeight;
	})()`
	var height int
	return s.run(chromedp.Evaluate(script, &height, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
}

// SetDownloadDir points Chrome's download target at dir so triggered
// downloads land somewhere the caller can watch.
func (s *Session) SetDownloadDir(dir string) error {
	return s.run(cdpbrowser.SetDownloadBehavior(cdpbrowser.SetDownloadBehaviorBehaviorAllow).
		WithDownloadPath(dir))
}

// Sleep pauses for d inside the browser context. Some page transitions
// have no stable element to wait on.
func (s *Session) Sleep(d time.Duration) error {
	ctx, cancel := context.WithTimeout(s.ctx, d+time.Second)
	defer cancel()
	return chromedp.Run(ctx, chromedp.Sleep(d))
}
