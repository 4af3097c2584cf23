// File: internal/signup/credentials.go
package signup

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/xkilldash9x/bizmint-cli/internal/browser"
	"github.com/xkilldash9x/bizmint-cli/internal/store"
)

const (
	sessionIndexParam   = "csesidx"
	configIDPathMarker  = "/cid/"
	sessionCookieName   = "__Secure-C_SES"
	hostCookieName      = "__Host-C_OSES"
	expirySkew          = 43200 * time.Second
	expiryTimestampForm = "2006-01-02 15:04:05"
)

// harvestCredentials polls until all four session fields are simultaneously
// present: the session index from the URL query, the configuration id from
// the URL path, and the two session cookies. On timeout the error names
// precisely which fields never appeared.
func (f *Flow) harvestCredentials(ctx context.Context, page browser.Page, mailbox string) (*store.Credential, error) {
	deadline := time.Now().Add(f.signupCfg.ExtractTimeout)
	for {
		cred, missing := f.snapshotCredentials(ctx, page, mailbox)
		if len(missing) == 0 {
			return cred, nil
		}
		if time.Now().After(deadline) || ctx.Err() != nil {
			return nil, failf(KindExtractionIncomplete,
				"session fields never appeared: %s", strings.Join(missing, ", "))
		}
		sleepCtx(ctx, f.credPollInterval)
	}
}

func (f *Flow) snapshotCredentials(ctx context.Context, page browser.Page, mailbox string) (*store.Credential, []string) {
	var missing []string

	location, err := page.Location(ctx)
	if err != nil {
		return nil, []string{"current URL"}
	}

	sessionIndex := queryParam(location, sessionIndexParam)
	if sessionIndex == "" {
		missing = append(missing, sessionIndexParam+" query parameter")
	}
	configID := pathSegmentAfter(location, configIDPathMarker)
	if configID == "" {
		missing = append(missing, "config id in URL path")
	}

	var sessionSecret, hostSecret string
	var cookieExpiry float64
	if cookies, err := page.Cookies(ctx); err == nil {
		for _, c := range cookies {
			switch c.Name {
			case sessionCookieName:
				sessionSecret = c.Value
				cookieExpiry = c.Expires
			case hostCookieName:
				hostSecret = c.Value
			}
		}
	}
	if sessionSecret == "" {
		missing = append(missing, sessionCookieName+" cookie")
	}
	if hostSecret == "" {
		missing = append(missing, hostCookieName+" cookie")
	}

	if len(missing) > 0 {
		return nil, missing
	}
	return &store.Credential{
		ID:            mailbox,
		SessionIndex:  sessionIndex,
		ConfigID:      configID,
		SessionSecret: sessionSecret,
		HostSecret:    hostSecret,
		ExpiresAt:     formatExpiry(cookieExpiry),
	}, nil
}

// formatExpiry subtracts the fixed 12-hour skew from the cookie's reported
// expiry. Session cookies report no expiry; those records carry none.
func formatExpiry(epochSeconds float64) string {
	if epochSeconds <= 0 {
		return ""
	}
	return time.Unix(int64(epochSeconds), 0).Add(-expirySkew).Format(expiryTimestampForm)
}

func queryParam(rawURL, key string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Query().Get(key)
}

func pathSegmentAfter(rawURL, marker string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	idx := strings.Index(u.Path, marker)
	if idx < 0 {
		return ""
	}
	rest := u.Path[idx+len(marker):]
	if cut := strings.IndexByte(rest, '/'); cut >= 0 {
		rest = rest[:cut]
	}
	return rest
}
