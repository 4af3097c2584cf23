// File: internal/browser/otp.go
package browser

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Confidence distinguishes a readback-confirmed code entry from the
// documented optimistic escape hatch for unreadable custom widgets.
type Confidence int

const (
	// ConfidenceFailed means the code could not be entered at all.
	ConfidenceFailed Confidence = iota
	// ConfidenceVerified means the entered value was read back and matched.
	ConfidenceVerified
	// ConfidenceAssumed means the widget never exposed a readable value but
	// the keystrokes were delivered; success is assumed, not confirmed.
	ConfidenceAssumed
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceVerified:
		return "verified"
	case ConfidenceAssumed:
		return "assumed"
	default:
		return "failed"
	}
}

const (
	pinInputSelector  = "input[name='pinInput']"
	otpSegmentZero    = "span[data-index='0']"
	pinVerifyWindow   = 2 * time.Second
	pinLocateWindow   = 3 * time.Second
	pinVerifyInterval = 100 * time.Millisecond
)

// Filler inputs a 6-character verification code into whichever of three
// widget shapes the page happens to render: six discrete single-character
// boxes, one combined box, or a custom OTP container.
type Filler struct {
	page Page
	log  *zap.Logger

	verifyWindow time.Duration
	locateWindow time.Duration
}

// NewFiller wraps a page with the code-entry strategies.
func NewFiller(page Page, logger *zap.Logger) *Filler {
	return &Filler{
		page:         page,
		log:          logger.Named("otp"),
		verifyWindow: pinVerifyWindow,
		locateWindow: pinLocateWindow,
	}
}

// Fill enters the code. It first disables every visible resend control: a
// stray focus or keystroke on one of those would invalidate the code in
// flight. The three widget strategies are then tried in order.
func (f *Filler) Fill(ctx context.Context, code string) Confidence {
	if len(code) != 6 {
		f.log.Error("Verification code has wrong length", zap.Int("length", len(code)))
		return ConfidenceFailed
	}

	DisableResendControls(ctx, f.page, f.log)

	var pinCount int
	if err := f.page.Eval(ctx, countJS(pinInputSelector), &pinCount); err == nil && pinCount >= 6 {
		return f.fillSixBoxes(ctx, code)
	}

	if err := f.page.WaitVisible(ctx, pinInputSelector, f.locateWindow); err == nil {
		return f.fillSingleBox(ctx, code)
	}

	if conf := f.fillOTPContainer(ctx, code); conf != ConfidenceFailed {
		return conf
	}

	// Last resort: hand the whole string to whatever has focus.
	if err := f.page.KeysToFocused(ctx, code); err == nil {
		return ConfidenceAssumed
	}
	return ConfidenceFailed
}

// fillSixBoxes types each character into its slot, polling the joined value
// for confirmation, with a focus-first-and-send-all fallback per attempt.
func (f *Filler) fillSixBoxes(ctx context.Context, code string) Confidence {
	for attempt := 0; attempt < 3; attempt++ {
		perKeyDelay := 100 * time.Millisecond
		if attempt > 0 {
			perKeyDelay = 140 * time.Millisecond
		}

		for i, ch := range code {
			_ = f.page.Eval(ctx, focusPinJS(i), nil)
			sleep(ctx, 50*time.Millisecond)
			if err := f.page.KeysToFocused(ctx, string(ch)); err != nil {
				f.log.Debug("pin keystroke failed", zap.Int("slot", i), zap.Error(err))
			}
			sleep(ctx, perKeyDelay)
		}

		if f.pollPinValues(ctx, code) {
			return ConfidenceVerified
		}

		// Some pin groups forward keystrokes internally: focus the first
		// slot and send the whole string.
		_ = f.page.Eval(ctx, focusPinJS(0), nil)
		sleep(ctx, 100*time.Millisecond)
		_ = f.page.KeysToFocused(ctx, code)

		if f.pollPinValues(ctx, code) {
			return ConfidenceVerified
		}
	}

	f.log.Warn("Six-box code entry never confirmed by readback, assuming delivery")
	return ConfidenceAssumed
}

func (f *Filler) fillSingleBox(ctx context.Context, code string) Confidence {
	_ = f.page.Click(ctx, pinInputSelector)
	sleep(ctx, 100*time.Millisecond)
	_ = f.page.Eval(ctx, selectContentJS(pinInputSelector), nil)
	_ = f.page.Eval(ctx, clearValueJS(pinInputSelector), nil)
	sleep(ctx, 50*time.Millisecond)
	_ = f.page.SendKeys(ctx, pinInputSelector, code)

	deadline := time.Now().Add(f.verifyWindow)
	for time.Now().Before(deadline) {
		var v string
		if err := f.page.Eval(ctx, propertyValueJS(pinInputSelector), &v); err == nil && v == code {
			return ConfidenceVerified
		}
		sleep(ctx, pinVerifyInterval)
	}

	// Scripted assignment fallback.
	if err := f.page.Eval(ctx, setValueJS(pinInputSelector, code), nil); err == nil {
		sleep(ctx, 200*time.Millisecond)
		var v string
		if err := f.page.Eval(ctx, propertyValueJS(pinInputSelector), &v); err == nil && v == code {
			return ConfidenceVerified
		}
	}

	f.log.Warn("Single-box code entry never confirmed by readback, assuming delivery")
	return ConfidenceAssumed
}

func (f *Filler) fillOTPContainer(ctx context.Context, code string) Confidence {
	if err := f.page.WaitVisible(ctx, otpSegmentZero, f.locateWindow); err != nil {
		return ConfidenceFailed
	}
	if err := f.page.Click(ctx, otpSegmentZero); err != nil {
		return ConfidenceFailed
	}
	sleep(ctx, 200*time.Millisecond)
	if err := f.page.KeysToFocused(ctx, code); err != nil {
		return ConfidenceFailed
	}
	sleep(ctx, 200*time.Millisecond)

	var pinCount int
	if err := f.page.Eval(ctx, countJS(pinInputSelector), &pinCount); err == nil && pinCount >= 6 {
		if f.pollPinValues(ctx, code) {
			return ConfidenceVerified
		}
	}
	return ConfidenceAssumed
}

// pollPinValues polls the joined slot values until they match or the window
// closes.
func (f *Filler) pollPinValues(ctx context.Context, expected string) bool {
	deadline := time.Now().Add(f.verifyWindow)
	for {
		var joined string
		if err := f.page.Eval(ctx, joinedPinValuesJS(), &joined); err == nil && joined == expected {
			return true
		}
		if time.Now().After(deadline) || ctx.Err() != nil {
			return false
		}
		sleep(ctx, pinVerifyInterval)
	}
}

func countJS(sel string) string {
	return fmt.Sprintf(`document.querySelectorAll(%s).length`, q(sel))
}

func focusPinJS(index int) string {
	return fmt.Sprintf(`(() => {
		const pins = document.querySelectorAll(%s);
		if (pins.length <= %d) throw new Error('missing pin slot');
		const el = pins[%d];
		el.focus();
		el.click();
		el.value = '';
	})()`, q(pinInputSelector), index, index)
}

func joinedPinValuesJS() string {
	return fmt.Sprintf(`Array.from(document.querySelectorAll(%s)).slice(0, 6).map(p => p.value || '').join('')`, q(pinInputSelector))
}
