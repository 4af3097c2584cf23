// File: internal/browser/actions.go
//
// Best-effort page hygiene and heuristic button discovery. The target's
// markup is unstable, so controls are found by visible text in either of two
// languages rather than by selector alone.
package browser

import (
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// resendTexts label controls that re-trigger the verification email. A
// resend invalidates the code already in flight and must never be clicked.
var resendTexts = []string{"重新发送", "Resend", "Send again", "Try again", "重新获取"}

// primaryActionTexts label continue-like controls.
var primaryActionTexts = []string{
	"继续", "下一步", "登录", "确认", "提交", "完成",
	"Continue", "Next", "Sign in", "Log in", "Submit", "Done", "Create",
}

// verifyTexts label the code-confirmation control.
var verifyTexts = []string{"验证", "Verify"}

// DisableResendControls disables and dims every visible resend-like button.
// Purely best effort: failures are logged and ignored, the flow proceeds.
func DisableResendControls(ctx context.Context, page Page, log *zap.Logger) int {
	var count int
	if err := page.Eval(ctx, disableResendJS(), &count); err != nil {
		log.Debug("Failed to disable resend controls", zap.Error(err))
		return 0
	}
	if count > 0 {
		log.Debug("Disabled resend controls", zap.Int("count", count))
	}
	return count
}

// ClickPrimaryAction keeps scanning for a continue-like button until timeout,
// skipping anything resend-like, and clicks the first match.
func ClickPrimaryAction(ctx context.Context, page Page, timeout time.Duration) bool {
	return clickByText(ctx, page, primaryActionTexts, timeout)
}

// ClickVerifyOnly clicks only a verify-like button, never a resend.
func ClickVerifyOnly(ctx context.Context, page Page, timeout time.Duration) bool {
	return clickByText(ctx, page, verifyTexts, timeout)
}

func clickByText(ctx context.Context, page Page, allow []string, timeout time.Duration) bool {
	js := clickByTextJS(allow)
	deadline := time.Now().Add(timeout)
	for {
		var clicked bool
		if err := page.Eval(ctx, js, &clicked); err == nil && clicked {
			return true
		}
		if time.Now().After(deadline) || ctx.Err() != nil {
			return false
		}
		sleep(ctx, 200*time.Millisecond)
	}
}

func disableResendJS() string {
	deny, _ := json.Marshal(resendTexts)
	return fmt.Sprintf(`(() => {
		const deny = %s;
		const buttons = Array.from(document.querySelectorAll('button'));
		let count = 0;
		for (const b of buttons) {
			const t = (b.innerText || '').trim();
			if (!t) continue;
			if (!deny.some(d => t.toLowerCase().includes(d.toLowerCase()))) continue;
			try {
				b.disabled = true;
				b.setAttribute('aria-disabled', 'true');
				b.style.pointerEvents = 'none';
				b.style.opacity = '0.5';
				count++;
			} catch (e) {}
		}
		return count;
	})()`, deny)
}

func clickByTextJS(allow []string) string {
	allowJSON, _ := json.Marshal(allow)
	denyJSON, _ := json.Marshal(resendTexts)
	return fmt.Sprintf(`(() => {
		const allow = %s;
		const deny = %s;
		const visible = el => !!(el.offsetWidth || el.offsetHeight || el.getClientRects().length);
		const matches = (t, list) => list.some(x => t.toLowerCase().includes(x.toLowerCase()));
		const tryClick = els => {
			for (const b of els) {
				if (!visible(b) || b.disabled) continue;
				const t = (b.innerText || '').trim();
				if (!t || matches(t, deny)) continue;
				if (matches(t, allow)) { b.click(); return true; }
			}
			return false;
		};
		if (tryClick(document.querySelectorAll("button[type='submit']"))) return true;
		return tryClick(document.querySelectorAll('button'));
	})()`, allowJSON, denyJSON)
}
