// File: internal/browser/navigator.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// crashMarkers appear in the rendered content of a dead renderer process.
var crashMarkers = []string{"crashed", "aw, snap"}

// crashErrorHints in a driver error also indicate tab or process death.
var crashErrorHints = []string{"crash", "tab", "target window"}

// Navigator watches the page for progress toward a destination while
// detecting and recovering from renderer crashes, bounded by a retry budget.
type Navigator struct {
	page Page
	log  *zap.Logger

	recoveryWait time.Duration
	pollInterval time.Duration
}

// NewNavigator wraps a page with crash-aware waiting.
func NewNavigator(page Page, logger *zap.Logger) *Navigator {
	return &Navigator{
		page:         page,
		log:          logger.Named("navigator"),
		recoveryWait: 3 * time.Second,
		pollInterval: time.Second,
	}
}

// PageCrashed reports whether rendered content carries a crash marker.
func PageCrashed(content string) bool {
	lowered := strings.ToLower(content)
	for _, marker := range crashMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

func crashLikeError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range crashErrorHints {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

// WaitForDestination polls once per second until reached approves the
// current URL. A crash signal triggers recovery into a fresh tab at
// recoveryURL; exceeding maxCrashRetries gives up permanently. Exhausting
// the deadline without arriving is a failure, not an error.
func (n *Navigator) WaitForDestination(
	ctx context.Context,
	recoveryURL string,
	reached func(url string) bool,
	deadline time.Duration,
	maxCrashRetries int,
) bool {
	crashes := 0
	ticks := int(deadline / time.Second)

	for i := 0; i < ticks; i++ {
		sleep(ctx, n.pollInterval)
		if ctx.Err() != nil {
			return false
		}

		content, err := n.page.Content(ctx)
		crashed := crashLikeError(err) || (err == nil && PageCrashed(content))
		if crashed {
			crashes++
			n.log.Warn("Page crash detected",
				zap.Int("crash_count", crashes),
				zap.Int("max_retries", maxCrashRetries))
			if crashes >= maxCrashRetries {
				n.log.Error("Crash retry budget exhausted, giving up")
				return false
			}
			if !n.recover(ctx, recoveryURL) {
				return false
			}
			continue
		}
		if err != nil {
			// Transient driver hiccup; keep polling.
			continue
		}

		url, err := n.page.Location(ctx)
		if err != nil {
			continue
		}
		if reached(url) {
			return true
		}
	}
	return false
}

func (n *Navigator) recover(ctx context.Context, recoveryURL string) bool {
	if err := n.page.FreshTab(ctx, recoveryURL); err != nil {
		n.log.Error("Crash recovery failed", zap.Error(err))
		return false
	}
	sleep(ctx, n.recoveryWait)
	return true
}

// ExtractWithRetry applies the crash-detect-and-refresh policy around a
// one-shot extraction attempt, retrying on both crash signals and ordinary
// extraction failures and carrying the last error forward.
func (n *Navigator) ExtractWithRetry(ctx context.Context, maxRetries int, extract func(context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		if ctx.Err() != nil {
			break
		}

		content, err := n.page.Content(ctx)
		if crashLikeError(err) || (err == nil && PageCrashed(content)) {
			n.log.Warn("Page crashed before extraction, refreshing",
				zap.Int("attempt", attempt+1), zap.Int("max_retries", maxRetries))
			n.refresh(ctx)
			continue
		}

		if err := extract(ctx); err == nil {
			return nil
		} else {
			lastErr = err
			n.log.Warn("Extraction failed, refreshing",
				zap.Error(err),
				zap.Int("attempt", attempt+1), zap.Int("max_retries", maxRetries))
			n.refresh(ctx)
		}
	}

	if lastErr == nil {
		lastErr = errors.New("page never left the crashed state")
	}
	return fmt.Errorf("extraction exhausted %d retries: %w", maxRetries, lastErr)
}

func (n *Navigator) refresh(ctx context.Context) {
	if err := n.page.Reload(ctx); err != nil {
		n.log.Debug("Refresh failed", zap.Error(err))
	}
	sleep(ctx, n.recoveryWait)
}
