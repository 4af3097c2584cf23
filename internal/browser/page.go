// File: internal/browser/page.go
package browser

import (
	"context"
	"time"
)

// Cookie is the subset of browser cookie state the signup flow harvests.
type Cookie struct {
	Name    string
	Value   string
	Expires float64 // seconds since epoch, 0 when the cookie is session-scoped
}

// Page is the seam between the signup logic and the live browser tab. The
// chromedp-backed Session implements it in production; tests substitute
// scripted stubs. Keeping the surface small and primitive (navigate, click,
// keys, script evaluation) pushes all fallback layering into the callers,
// where it is table-driven and observable.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	// FreshTab opens a new tab at url, switches to it and discards every
	// other tab. It is the crash-recovery primitive.
	FreshTab(ctx context.Context, url string) error

	Location(ctx context.Context) (string, error)
	Content(ctx context.Context) (string, error)

	WaitVisible(ctx context.Context, sel string, timeout time.Duration) error
	Click(ctx context.Context, sel string) error
	SendKeys(ctx context.Context, sel, keys string) error
	// PressKey sends a single control key (enter, tab, backspace) to sel.
	PressKey(ctx context.Context, sel, key string) error
	// KeysToFocused types into whatever element currently holds focus.
	KeysToFocused(ctx context.Context, keys string) error

	// Eval runs a JavaScript expression; out may be nil when the result is
	// irrelevant.
	Eval(ctx context.Context, js string, out any) error

	Cookies(ctx context.Context) ([]Cookie, error)
}
