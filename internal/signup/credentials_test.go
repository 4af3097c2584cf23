package signup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/bizmint-cli/internal/browser"
	"github.com/xkilldash9x/bizmint-cli/internal/mailbox"
)

func TestFormatExpirySubtractsSkew(t *testing.T) {
	const reported = int64(1_790_000_000)
	expected := time.Unix(reported-43200, 0).Format("2006-01-02 15:04:05")
	assert.Equal(t, expected, formatExpiry(float64(reported)))
}

func TestFormatExpirySessionCookie(t *testing.T) {
	assert.Empty(t, formatExpiry(0))
	assert.Empty(t, formatExpiry(-1))
}

func TestURLParsers(t *testing.T) {
	u := "https://business.gemini.google/cid/cfg-42/home?csesidx=7&hl=en"
	assert.Equal(t, "7", queryParam(u, "csesidx"))
	assert.Equal(t, "cfg-42", pathSegmentAfter(u, "/cid/"))

	assert.Empty(t, queryParam("https://x.test/", "csesidx"))
	assert.Empty(t, pathSegmentAfter("https://x.test/home", "/cid/"))

	// Config id at the end of the path, no trailing segment.
	assert.Equal(t, "abc", pathSegmentAfter("https://x.test/cid/abc", "/cid/"))
}

func TestHarvestNamesMissingFields(t *testing.T) {
	page := newScriptedPage()
	page.currentURL = "https://business.gemini.google/home" // no csesidx, no /cid/
	page.cookies = []browser.Cookie{{Name: "__Secure-C_SES", Value: "s"}}

	flow := fastFlow(testConfig(), &stubMail{}, mailbox.NewPool(), page)
	flow.signupCfg.ExtractTimeout = 100 * time.Millisecond

	_, err := flow.harvestCredentials(context.Background(), page, "user@x.test")
	require.Error(t, err)
	assert.Equal(t, KindExtractionIncomplete, KindOf(err))
	assert.Contains(t, err.Error(), "csesidx query parameter")
	assert.Contains(t, err.Error(), "config id in URL path")
	assert.Contains(t, err.Error(), "__Host-C_OSES cookie")
	assert.NotContains(t, err.Error(), "__Secure-C_SES cookie")
}

func TestHarvestSucceedsOnceFieldsConverge(t *testing.T) {
	page := newScriptedPage()
	page.currentURL = "https://business.gemini.google/cid/cfg-9/home?csesidx=2"
	page.cookies = []browser.Cookie{
		{Name: "__Secure-C_SES", Value: "s", Expires: 1_790_000_000},
		{Name: "__Host-C_OSES", Value: "h"},
	}

	flow := fastFlow(testConfig(), &stubMail{}, mailbox.NewPool(), page)
	cred, err := flow.harvestCredentials(context.Background(), page, "user@x.test")
	require.NoError(t, err)
	assert.Equal(t, "user@x.test", cred.ID)
	assert.Equal(t, "2", cred.SessionIndex)
	assert.Equal(t, "cfg-9", cred.ConfigID)
}

func TestWorkspaceReached(t *testing.T) {
	flow := fastFlow(testConfig(), &stubMail{}, mailbox.NewPool(), newScriptedPage())

	assert.True(t, flow.workspaceReached("https://business.gemini.google/cid/cfg-1?csesidx=0"))
	assert.True(t, flow.workspaceReached("https://business.gemini.google/cid/cfg-1/home"))
	assert.False(t, flow.workspaceReached("https://business.gemini.google/onboarding"))
	assert.False(t, flow.workspaceReached("https://attacker.test/cid/cfg-1?csesidx=0"))
	assert.False(t, flow.workspaceReached("::not a url"))
}
