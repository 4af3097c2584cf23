// File: internal/browser/session.go
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/bizmint-cli/internal/config"
)

const defaultOpTimeout = 15 * time.Second

// Session owns one Chromium instance and its current tab for the duration of
// a single signup attempt. The attempt always tears it down, whatever the
// outcome, so state never leaks between accounts.
type Session struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc

	mu        sync.Mutex
	tabCtx    context.Context
	tabCancel context.CancelFunc

	log *zap.Logger
}

// NewSession launches a browser and opens its first tab.
func NewSession(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-software-rasterizer", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("js-flags", "--max-old-space-size=512"),
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
	)
	for _, arg := range cfg.Args {
		name, value, found := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if found {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	// Force the browser process to start now so launch failures surface here
	// rather than in the middle of the flow.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	s := &Session{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		log:         logger.Named("browser"),
	}
	s.log.Debug("Browser session started")
	return s, nil
}

func (s *Session) tab() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tabCtx
}

// run executes chromedp actions on the current tab, bounded by d and by the
// caller's context.
func (s *Session) run(ctx context.Context, d time.Duration, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tctx, cancel := context.WithTimeout(s.tab(), d)
	defer cancel()
	return chromedp.Run(tctx, actions...)
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, defaultOpTimeout, chromedp.Navigate(url))
}

func (s *Session) Reload(ctx context.Context) error {
	return s.run(ctx, defaultOpTimeout, chromedp.Reload())
}

// FreshTab discards the current (possibly crashed) tab, opens a new one from
// the same browser process and navigates it to url. Cancelling the old tab
// context closes its target, so exactly one tab survives.
func (s *Session) FreshTab(ctx context.Context, url string) error {
	s.mu.Lock()
	oldCancel := s.tabCancel
	newTab, newCancel := chromedp.NewContext(s.allocCtx)
	s.tabCtx = newTab
	s.tabCancel = newCancel
	s.mu.Unlock()

	oldCancel()

	if err := s.run(ctx, defaultOpTimeout, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate recovery tab: %w", err)
	}
	s.log.Info("Recovered into a fresh tab", zap.String("url", url))
	return nil
}

func (s *Session) Location(ctx context.Context) (string, error) {
	var url string
	err := s.run(ctx, defaultOpTimeout, chromedp.Location(&url))
	return url, err
}

func (s *Session) Content(ctx context.Context) (string, error) {
	var out string
	err := s.run(ctx, defaultOpTimeout, chromedp.OuterHTML("html", &out, chromedp.ByQuery))
	return out, err
}

func (s *Session) WaitVisible(ctx context.Context, sel string, timeout time.Duration) error {
	return s.run(ctx, timeout, chromedp.WaitVisible(sel, chromedp.ByQuery))
}

func (s *Session) Click(ctx context.Context, sel string) error {
	return s.run(ctx, defaultOpTimeout, chromedp.Click(sel, chromedp.NodeVisible, chromedp.ByQuery))
}

func (s *Session) SendKeys(ctx context.Context, sel, keys string) error {
	return s.run(ctx, defaultOpTimeout, chromedp.SendKeys(sel, keys, chromedp.ByQuery))
}

func (s *Session) PressKey(ctx context.Context, sel, key string) error {
	return s.run(ctx, defaultOpTimeout, chromedp.SendKeys(sel, key, chromedp.ByQuery))
}

func (s *Session) KeysToFocused(ctx context.Context, keys string) error {
	return s.run(ctx, defaultOpTimeout, chromedp.KeyEvent(keys))
}

func (s *Session) Eval(ctx context.Context, js string, out any) error {
	return s.run(ctx, defaultOpTimeout, chromedp.Evaluate(js, out))
}

func (s *Session) Cookies(ctx context.Context) ([]Cookie, error) {
	var cookies []Cookie
	err := s.run(ctx, defaultOpTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		raw, err := storage.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		cookies = make([]Cookie, 0, len(raw))
		for _, c := range raw {
			cookies = append(cookies, Cookie{
				Name:    c.Name,
				Value:   c.Value,
				Expires: c.Expires,
			})
		}
		return nil
	}))
	return cookies, err
}

// Close tears down the tab and the browser process.
func (s *Session) Close() {
	s.mu.Lock()
	tabCancel := s.tabCancel
	s.mu.Unlock()

	tabCancel()
	s.allocCancel()
	s.log.Debug("Browser session closed")
}
