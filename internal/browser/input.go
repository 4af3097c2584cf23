// File: internal/browser/input.go
package browser

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"
)

// TypeOptions tunes a robust typing operation.
type TypeOptions struct {
	// CharDelay is the pause between individual characters.
	CharDelay time.Duration
	// MaxAttempts bounds the number of full type-and-verify cycles.
	MaxAttempts int
	// Strict demands readback verification; without it, exhausting all
	// attempts accepts the last state optimistically.
	Strict bool
}

// DefaultTypeOptions mirror the tuning that converges on the target's forms.
func DefaultTypeOptions() TypeOptions {
	return TypeOptions{
		CharDelay:   30 * time.Millisecond,
		MaxAttempts: 3,
		Strict:      true,
	}
}

// Driver performs form-field interactions against a live, possibly
// slow-rendering page. The target's fields behave inconsistently under pure
// native key events, so every step carries a JavaScript-level fallback and
// the final value is verified by readback.
type Driver struct {
	page Page
	log  *zap.Logger
}

// NewDriver wraps a page with the robust input logic.
func NewDriver(page Page, logger *zap.Logger) *Driver {
	return &Driver{page: page, log: logger.Named("input")}
}

// TypeInto focuses sel, clears it, types text character by character and
// verifies the result by readback. On mismatch it escalates to scripted
// assignment and a blur-and-reread cycle before retrying from scratch.
func (d *Driver) TypeInto(ctx context.Context, sel, text string, opts TypeOptions) bool {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}

	lastValue := ""
	for attempt := 0; attempt < opts.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			break
		}

		// Best effort: bring the field into view before touching it.
		_ = d.page.Eval(ctx, scrollIntoViewJS(sel), nil)

		// Focus. Native click first, scripted click when the element is
		// overlapped or mid-animation.
		if err := d.page.Click(ctx, sel); err != nil {
			_ = d.page.Eval(ctx, clickJS(sel), nil)
		}
		sleep(ctx, 150*time.Millisecond)

		// Clear. Select-all plus backspace beats a scripted wipe on
		// framework-managed inputs, but fall back when it misfires.
		if err := d.selectAllAndDelete(ctx, sel); err != nil {
			_ = d.page.Eval(ctx, clearValueJS(sel), nil)
		}
		sleep(ctx, 50*time.Millisecond)

		for _, r := range text {
			if err := d.page.SendKeys(ctx, sel, string(r)); err != nil {
				d.log.Debug("sendkeys failed mid-string", zap.String("selector", sel), zap.Error(err))
				break
			}
			sleep(ctx, opts.CharDelay)
		}

		// Reactive frameworks only observe the change once input/change fire.
		_ = d.page.Eval(ctx, dispatchInputChangeJS(sel), nil)

		lastValue = strings.TrimSpace(d.readValue(ctx, sel))
		if lastValue == text {
			return true
		}

		// Scripted direct assignment.
		if err := d.page.Eval(ctx, setValueJS(sel, text), nil); err == nil {
			sleep(ctx, 50*time.Millisecond)
			lastValue = strings.TrimSpace(d.readValue(ctx, sel))
			if lastValue == text {
				return true
			}
		}

		// Blur via tab and read once more; some widgets only commit on blur.
		if err := d.page.PressKey(ctx, sel, kb.Tab); err == nil {
			sleep(ctx, 50*time.Millisecond)
			lastValue = strings.TrimSpace(d.readValue(ctx, sel))
			if lastValue == text {
				return true
			}
		}

		sleep(ctx, 200*time.Millisecond)
	}

	if opts.Strict {
		d.log.Warn("Input verification failed",
			zap.String("selector", sel),
			zap.String("expected", text),
			zap.String("actual", lastValue))
		return false
	}
	// Optimistic acceptance of whatever state the last attempt left behind.
	return true
}

func (d *Driver) selectAllAndDelete(ctx context.Context, sel string) error {
	if err := d.page.Eval(ctx, selectContentJS(sel), nil); err != nil {
		return err
	}
	return d.page.PressKey(ctx, sel, kb.Backspace)
}

// readValue reads the field's current value, preferring a live property read,
// then the value attribute, then a scripted read.
func (d *Driver) readValue(ctx context.Context, sel string) string {
	var v string
	if err := d.page.Eval(ctx, propertyValueJS(sel), &v); err == nil {
		return v
	}
	if err := d.page.Eval(ctx, attributeValueJS(sel), &v); err == nil {
		return v
	}
	if err := d.page.Eval(ctx, scriptedValueJS(sel), &v); err == nil {
		return v
	}
	return ""
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// -- JavaScript builders --

func q(sel string) string { return strconv.Quote(sel) }

func scrollIntoViewJS(sel string) string {
	return fmt.Sprintf(`(() => { const el = document.querySelector(%s); if (el) el.scrollIntoView({block: 'center'}); })()`, q(sel))
}

func clickJS(sel string) string {
	return fmt.Sprintf(`(() => { const el = document.querySelector(%s); if (!el) throw new Error('no element'); el.click(); })()`, q(sel))
}

func selectContentJS(sel string) string {
	return fmt.Sprintf(`(() => { const el = document.querySelector(%s); if (!el || !el.select) throw new Error('not selectable'); el.focus(); el.select(); })()`, q(sel))
}

func clearValueJS(sel string) string {
	return fmt.Sprintf(`(() => { const el = document.querySelector(%s); if (!el) throw new Error('no element'); el.value = ''; })()`, q(sel))
}

func dispatchInputChangeJS(sel string) string {
	return fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) throw new Error('no element');
		el.dispatchEvent(new Event('input', {bubbles: true}));
		el.dispatchEvent(new Event('change', {bubbles: true}));
	})()`, q(sel))
}

func setValueJS(sel, value string) string {
	return fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) throw new Error('no element');
		el.value = %s;
		el.dispatchEvent(new Event('input', {bubbles: true}));
		el.dispatchEvent(new Event('change', {bubbles: true}));
	})()`, q(sel), strconv.Quote(value))
}

func propertyValueJS(sel string) string {
	return fmt.Sprintf(`(() => { const el = document.querySelector(%s); if (!el) throw new Error('no element'); const v = el.value; if (v === undefined || v === null) throw new Error('no value property'); return String(v); })()`, q(sel))
}

func attributeValueJS(sel string) string {
	return fmt.Sprintf(`(() => { const el = document.querySelector(%s); if (!el) throw new Error('no element'); const v = el.getAttribute('value'); if (v === null) throw new Error('no value attribute'); return v; })()`, q(sel))
}

func scriptedValueJS(sel string) string {
	return fmt.Sprintf(`(function(){ var el = document.querySelector(%s); return el && el.value != null ? String(el.value) : ''; })()`, q(sel))
}
