package browser

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestDisableResendControlsReportsCount(t *testing.T) {
	page := &stubPage{}
	page.evalFn = func(js string, out any) error {
		assert.Contains(t, js, "重新发送")
		assert.Contains(t, js, "Resend")
		setOut(out, 2)
		return nil
	}
	assert.Equal(t, 2, DisableResendControls(context.Background(), page, zap.NewNop()))
}

func TestDisableResendControlsSwallowsEvalError(t *testing.T) {
	page := &stubPage{}
	page.evalFn = func(js string, out any) error { return errors.New("execution context destroyed") }
	assert.Zero(t, DisableResendControls(context.Background(), page, zap.NewNop()))
}

func TestClickPrimaryActionPollsUntilButtonAppears(t *testing.T) {
	evals := 0
	page := &stubPage{}
	page.evalFn = func(js string, out any) error {
		// The resend deny list rides along with the allow list on every scan.
		assert.Contains(t, js, "Continue")
		assert.Contains(t, js, "Send again")
		evals++
		setOut(out, evals >= 3)
		return nil
	}

	ok := ClickPrimaryAction(context.Background(), page, 2*time.Second)
	assert.True(t, ok)
	assert.Equal(t, 3, evals)
}

func TestClickPrimaryActionTimesOut(t *testing.T) {
	page := &stubPage{}
	page.evalFn = func(js string, out any) error {
		setOut(out, false)
		return nil
	}
	assert.False(t, ClickPrimaryAction(context.Background(), page, 300*time.Millisecond))
}

func TestClickVerifyOnlyUsesVerifyAllowList(t *testing.T) {
	page := &stubPage{}
	page.evalFn = func(js string, out any) error {
		assert.Contains(t, js, "Verify")
		assert.Contains(t, js, "验证")
		assert.False(t, strings.Contains(js, "Sign in"), "verify scan must not match sign-in controls")
		setOut(out, true)
		return nil
	}
	assert.True(t, ClickVerifyOnly(context.Background(), page, time.Second))
}
