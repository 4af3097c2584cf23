// File: internal/signup/flow.go
//
// The signup state machine. Each state is a hard gate: failure aborts the
// attempt with a specific reason, and the browser session for the attempt is
// always torn down regardless of which state failed.
package signup

import (
	"context"
	"errors"
	"math/rand"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/xkilldash9x/bizmint-cli/internal/browser"
	"github.com/xkilldash9x/bizmint-cli/internal/config"
	"github.com/xkilldash9x/bizmint-cli/internal/mailbox"
	"github.com/xkilldash9x/bizmint-cli/internal/store"
)

// MailProvider is the mailbox-side contract of one attempt.
type MailProvider interface {
	Allocate(ctx context.Context, preferredDomain string) (string, error)
	AwaitCode(ctx context.Context, mailbox string, timeout time.Duration, sinceID string) (string, error)
}

// PageFactory opens a fresh browser page for one attempt and returns its
// teardown. The flow calls teardown unconditionally.
type PageFactory func(ctx context.Context) (browser.Page, func(), error)

// Result is the immutable outcome of one account attempt.
type Result struct {
	Mailbox    string
	Succeeded  bool
	Credential *store.Credential
	Err        error
}

// Locator strategies per logical field, tried in order with the first
// visible match winning. Data, not branching code, so tests can substitute.
var (
	emailFieldLocators = []string{
		"input[type='email']",
		"input[name='email']",
		"input[name='identifier']",
		"input[autocomplete='email']",
		"input[type='text']",
	}
	nameFieldLocators = []string{
		"input[name='displayName']",
		"input[name='name']",
		"input[aria-label='Name']",
		"input[autocomplete='name']",
		"input[type='text']",
	}
)

// namePool feeds the display-name step. Picked at random per attempt.
var namePool = []string{
	"Alex Chen", "Jordan Lee", "Sam Park", "Taylor Kim", "Morgan Wu",
	"Casey Lin", "Riley Zhao", "Jamie Sun", "Drew Yang", "Quinn Lu",
}

// Flow drives one complete signup attempt against a live page.
type Flow struct {
	browserCfg config.BrowserConfig
	signupCfg  config.SignupConfig
	mail       MailProvider
	pool       *mailbox.Pool
	newPage    PageFactory
	codeWait   time.Duration
	log        *zap.Logger

	locateWindow      time.Duration
	clickWindow       time.Duration
	fieldPollInterval time.Duration
	credPollInterval  time.Duration
}

// New wires a flow from configuration and collaborators.
func New(cfg *config.Config, mail MailProvider, pool *mailbox.Pool, newPage PageFactory, logger *zap.Logger) *Flow {
	codeWait := cfg.Mail.CodeTimeout
	if codeWait <= 0 {
		codeWait = 60 * time.Second
	}
	return &Flow{
		browserCfg:        cfg.Browser,
		signupCfg:         cfg.Signup,
		mail:              mail,
		pool:              pool,
		newPage:           newPage,
		codeWait:          codeWait,
		log:               logger.Named("signup"),
		locateWindow:      10 * time.Second,
		clickWindow:       10 * time.Second,
		fieldPollInterval: 500 * time.Millisecond,
		credPollInterval:  500 * time.Millisecond,
	}
}

// Run executes the state machine once and reports the attempt's outcome.
// Every failure is local to this attempt; the caller decides what comes next.
func (f *Flow) Run(ctx context.Context, preferredDomain string) Result {
	// Gate 1: acquire mailbox. The pre-allocated pool is consumed first.
	mbox, ok := f.pool.Pop()
	if !ok {
		var err error
		mbox, err = f.mail.Allocate(ctx, preferredDomain)
		if err != nil {
			kind := KindAllocationFailed
			if errors.Is(err, mailbox.ErrNotConfigured) {
				kind = KindConfigurationMissing
			}
			return Result{Err: wrapf(kind, err, "no mailbox for this attempt")}
		}
	}

	log := f.log.With(zap.String("mailbox", mbox))
	log.Info("Starting signup attempt")

	page, teardown, err := f.newPage(ctx)
	if err != nil {
		return Result{Mailbox: mbox, Err: wrapf(KindBrowserCrash, err, "browser session could not be opened")}
	}
	defer teardown()

	cred, err := f.drive(ctx, page, mbox, log)
	if err != nil {
		log.Warn("Signup attempt failed", zap.Error(err))
		return Result{Mailbox: mbox, Err: err}
	}

	log.Info("Signup attempt succeeded", zap.String("config_id", cred.ConfigID))
	return Result{Mailbox: mbox, Succeeded: true, Credential: cred}
}

func (f *Flow) drive(ctx context.Context, page browser.Page, mbox string, log *zap.Logger) (*store.Credential, error) {
	driver := browser.NewDriver(page, log)
	typeOpts := browser.DefaultTypeOptions()
	if f.signupCfg.TypeAttempts > 0 {
		typeOpts.MaxAttempts = f.signupCfg.TypeAttempts
	}

	if err := page.Navigate(ctx, f.browserCfg.LoginURL); err != nil {
		return nil, wrapf(KindNavigationTimeout, err, "login page never loaded")
	}

	// Gate 2: submit email.
	emailSel, ok := f.findVisible(ctx, page, emailFieldLocators, f.locateWindow)
	if !ok {
		return nil, failf(KindElementNotFound, "email field never appeared")
	}
	if !driver.TypeInto(ctx, emailSel, mbox, typeOpts) {
		return nil, failf(KindInputVerificationFailed, "email field never accepted %q", mbox)
	}
	if !browser.ClickPrimaryAction(ctx, page, f.clickWindow) {
		return nil, failf(KindElementNotFound, "continue control never appeared after email entry")
	}

	// Gate 3: await the emailed code with resend controls out of the way.
	browser.DisableResendControls(ctx, page, log)
	code, err := f.mail.AwaitCode(ctx, mbox, f.codeWait, "")
	if err != nil {
		return nil, wrapf(KindCodeTimeout, err, "no verification code within %s", f.codeWait)
	}

	// Gate 4: fill the code. Entry can trigger a re-render that restores the
	// resend controls, so they are disabled again before confirming.
	filler := browser.NewFiller(page, log)
	conf := filler.Fill(ctx, code)
	if conf == browser.ConfidenceFailed {
		return nil, failf(KindInputVerificationFailed, "verification code could not be entered")
	}
	log.Info("Verification code entered", zap.Stringer("confidence", conf))
	browser.DisableResendControls(ctx, page, log)
	if !browser.ClickVerifyOnly(ctx, page, f.clickWindow) {
		// Some variants auto-advance on the last code character.
		log.Debug("No verify control found, relying on auto-advance")
	}

	// Gate 5: enter display name.
	nameSel, ok := f.findVisible(ctx, page, nameFieldLocators, f.signupCfg.NamePollTimeout)
	if !ok {
		return nil, failf(KindElementNotFound, "name field never appeared within %s", f.signupCfg.NamePollTimeout)
	}
	name := namePool[rand.Intn(len(namePool))]
	if !driver.TypeInto(ctx, nameSel, name, typeOpts) {
		return nil, failf(KindInputVerificationFailed, "name field never accepted %q", name)
	}
	if err := page.PressKey(ctx, nameSel, kb.Enter); err != nil {
		log.Debug("enter keypress failed", zap.Error(err))
	}
	browser.ClickPrimaryAction(ctx, page, f.clickWindow)

	// Gate 6: await the workspace redirect, surviving renderer crashes.
	nav := browser.NewNavigator(page, log)
	arrived := nav.WaitForDestination(ctx, f.browserCfg.WorkspaceURL, f.workspaceReached,
		f.signupCfg.WorkspaceTimeout, f.signupCfg.MaxCrashRetries)
	if !arrived {
		return nil, failf(KindNavigationTimeout,
			"workspace never reached within %s", f.signupCfg.WorkspaceTimeout)
	}

	// Gate 7: extract session credentials.
	var cred *store.Credential
	err = nav.ExtractWithRetry(ctx, f.signupCfg.MaxCrashRetries, func(ctx context.Context) error {
		c, err := f.harvestCredentials(ctx, page, mbox)
		if err != nil {
			return err
		}
		cred = c
		return nil
	})
	if err != nil {
		var ae *AttemptError
		if errors.As(err, &ae) {
			return nil, err
		}
		return nil, wrapf(KindBrowserCrash, err, "page never stabilized for credential extraction")
	}
	return cred, nil
}

// findVisible polls the locator list until one matches or the window closes.
func (f *Flow) findVisible(ctx context.Context, page browser.Page, locators []string, window time.Duration) (string, bool) {
	deadline := time.Now().Add(window)
	for {
		for _, sel := range locators {
			if err := page.WaitVisible(ctx, sel, f.fieldPollInterval); err == nil {
				return sel, true
			}
		}
		if time.Now().After(deadline) || ctx.Err() != nil {
			return "", false
		}
		sleepCtx(ctx, f.fieldPollInterval)
	}
}

// workspaceReached matches the post-signup destination by host, plus either
// the session index query parameter or the config id path segment.
func (f *Flow) workspaceReached(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	target, err := url.Parse(f.browserCfg.WorkspaceURL)
	if err != nil || target.Host == "" {
		return false
	}
	if u.Host != target.Host {
		return false
	}
	return strings.Contains(u.RawQuery, sessionIndexParam+"=") ||
		strings.Contains(u.Path, configIDPathMarker)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
