// File: internal/mailbox/client.go
package mailbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/bizmint-cli/internal/config"
	"github.com/xkilldash9x/bizmint-cli/internal/network"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	// ErrNotConfigured means the relay endpoint or key is missing.
	ErrNotConfigured = errors.New("mailbox: relay API not configured")
	// ErrAllocationFailed means both allocation paths were exhausted.
	ErrAllocationFailed = errors.New("mailbox: all allocation paths failed")
	// ErrCodeTimeout means no new decodable email arrived within the budget.
	ErrCodeTimeout = errors.New("mailbox: verification code timed out")
)

const localPartAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Client talks to the disposable-mailbox relay. It unifies two incompatible
// upstream API shapes behind one contract: a zero-configuration allocation
// endpoint with a structured per-mailbox feed, and an older admin API that
// needs a configured domain and exposes an "all mail" feed.
type Client struct {
	http         *network.Client
	base         string
	adminKey     string
	domains      []string
	source       string
	pollInterval time.Duration
	log          *zap.Logger
}

// NewClient builds a relay client from configuration.
func NewClient(cfg config.MailConfig, hc *network.Client, logger *zap.Logger) *Client {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Client{
		http:         hc,
		base:         strings.TrimRight(cfg.APIBase, "/"),
		adminKey:     cfg.AdminKey,
		domains:      cfg.Domains,
		source:       cfg.SourceSentinel,
		pollInterval: interval,
		log:          logger.Named("mailbox"),
	}
}

// Allocate obtains a fresh mailbox address. The zero-configuration endpoint
// is tried first; any transport or payload error falls through to the
// domain-based admin endpoint with a random 10-character local part.
func (c *Client) Allocate(ctx context.Context, preferredDomain string) (string, error) {
	if c.base == "" || c.adminKey == "" {
		return "", ErrNotConfigured
	}

	if email, err := c.allocateGenerated(ctx); err == nil {
		c.log.Info("Mailbox allocated", zap.String("mailbox", email))
		return email, nil
	} else {
		c.log.Warn("generate-email endpoint unusable, trying admin fallback", zap.Error(err))
	}

	email, err := c.allocateAdmin(ctx, preferredDomain)
	if err != nil {
		c.log.Error("Admin allocation fallback failed", zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrAllocationFailed, err)
	}
	c.log.Info("Mailbox allocated via admin fallback", zap.String("mailbox", email))
	return email, nil
}

func (c *Client) allocateGenerated(ctx context.Context) (string, error) {
	body, err := c.get(ctx, c.base+"/api/generate-email", map[string]string{"X-API-Key": c.adminKey})
	if err != nil {
		return "", err
	}

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Email string `json:"email"`
		} `json:"data"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode generate-email response: %w", err)
	}
	if !resp.Success || resp.Data.Email == "" {
		msg := resp.Message
		if msg == "" {
			msg = resp.Error
		}
		if msg == "" {
			msg = "unknown error"
		}
		return "", fmt.Errorf("generate-email rejected: %s", msg)
	}
	return resp.Data.Email, nil
}

func (c *Client) allocateAdmin(ctx context.Context, preferredDomain string) (string, error) {
	domain := preferredDomain
	if domain == "" {
		if len(c.domains) == 0 {
			return "", errors.New("no email domains configured")
		}
		domain = c.domains[rand.Intn(len(c.domains))]
	}

	payload, err := json.Marshal(map[string]any{
		"enablePrefix": false,
		"name":         randomLocalPart(10),
		"domain":       domain,
	})
	if err != nil {
		return "", err
	}

	body, err := c.post(ctx, c.base+"/admin/new_address", map[string]string{"x-admin-auth": c.adminKey}, payload)
	if err != nil {
		return "", err
	}

	var resp struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode new_address response: %w", err)
	}
	if resp.Address == "" {
		return "", errors.New("new_address returned no address")
	}
	return resp.Address, nil
}

// AwaitCode polls both inbox representations until a new, decodable message
// appears. sinceID is the freshness baseline; when empty, the newest message
// id at call time is captured so a stale verification mail is never reused.
func (c *Client) AwaitCode(ctx context.Context, mailbox string, timeout time.Duration, sinceID string) (string, error) {
	log := c.log.With(zap.String("mailbox", mailbox))
	log.Info("Waiting for verification code", zap.Duration("timeout", timeout))

	if sinceID == "" {
		if id, err := c.latestMessageID(ctx, mailbox); err == nil {
			sinceID = id
		}
	}

	deadline := time.Now().Add(timeout)
	for {
		if code, ok := c.pollMailboxFeed(ctx, mailbox, sinceID); ok {
			log.Info("Verification code received")
			return code, nil
		}
		if code, ok := c.pollAdminFeed(ctx, mailbox); ok {
			log.Info("Verification code received via admin feed")
			return code, nil
		}

		if time.Now().After(deadline) {
			log.Error("Verification code timed out")
			return "", ErrCodeTimeout
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}

// latestMessageID captures the freshness baseline for AwaitCode.
func (c *Client) latestMessageID(ctx context.Context, mailbox string) (string, error) {
	msgs, err := c.fetchMailboxFeed(ctx, mailbox)
	if err != nil || len(msgs) == 0 {
		return "", err
	}
	return msgs[0].id(), nil
}

// pollMailboxFeed checks the structured per-mailbox feed. The top message
// must differ from the baseline id to count as new.
func (c *Client) pollMailboxFeed(ctx context.Context, mailbox, sinceID string) (string, bool) {
	msgs, err := c.fetchMailboxFeed(ctx, mailbox)
	if err != nil || len(msgs) == 0 {
		return "", false
	}

	latest := msgs[0]
	if sinceID != "" && latest.id() == sinceID {
		return "", false
	}
	return ExtractCode(latest.bodyContent())
}

// pollAdminFeed checks the administrative "all mail" feed, matching by exact
// recipient and sender. The relay pre-extracts the code into the message
// metadata on this path, so no freshness baseline applies here: only the
// matching verification mail carries an extraction result.
func (c *Client) pollAdminFeed(ctx context.Context, mailbox string) (string, bool) {
	if c.source == "" {
		return "", false
	}

	body, err := c.get(ctx, c.base+"/admin/mails?limit=20&offset=0", map[string]string{"x-admin-auth": c.adminKey})
	if err != nil {
		return "", false
	}

	var feed struct {
		Results []struct {
			Address  string `json:"address"`
			Source   string `json:"source"`
			Metadata string `json:"metadata"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &feed); err != nil {
		return "", false
	}

	for _, mail := range feed.Results {
		if mail.Address != mailbox || mail.Source != c.source {
			continue
		}
		var meta struct {
			AIExtract struct {
				Result string `json:"result"`
			} `json:"ai_extract"`
		}
		if err := json.Unmarshal([]byte(mail.Metadata), &meta); err != nil {
			continue
		}
		if meta.AIExtract.Result != "" {
			return meta.AIExtract.Result, true
		}
	}
	return "", false
}

// relayMessage tolerates the field-name drift between relay versions.
type relayMessage struct {
	ID          any    `json:"id"`
	HTMLContent string `json:"html_content"`
	HTML        string `json:"html"`
	Body        string `json:"body"`
	Content     string `json:"content"`
	Text        string `json:"text"`
}

func (m relayMessage) id() string {
	if m.ID == nil {
		return ""
	}
	return fmt.Sprint(m.ID)
}

func (m relayMessage) bodyContent() string {
	for _, candidate := range []string{m.HTMLContent, m.HTML, m.Body, m.Content, m.Text} {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}

func (c *Client) fetchMailboxFeed(ctx context.Context, mailbox string) ([]relayMessage, error) {
	endpoint := c.base + "/api/emails?email=" + url.QueryEscape(mailbox)
	body, err := c.get(ctx, endpoint, map[string]string{"X-API-Key": c.adminKey})
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var msgs []relayMessage
		if err := json.Unmarshal(body, &msgs); err != nil {
			return nil, err
		}
		return msgs, nil
	}

	var envelope struct {
		Data struct {
			Emails []relayMessage `json:"emails"`
		} `json:"data"`
		Emails   []relayMessage `json:"emails"`
		Messages []relayMessage `json:"messages"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, err
	}
	if len(envelope.Data.Emails) > 0 {
		return envelope.Data.Emails, nil
	}
	if len(envelope.Emails) > 0 {
		return envelope.Emails, nil
	}
	return envelope.Messages, nil
}

func (c *Client) get(ctx context.Context, endpoint string, headers map[string]string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, endpoint, headers, nil)
}

func (c *Client) post(ctx context.Context, endpoint string, headers map[string]string, payload []byte) ([]byte, error) {
	return c.do(ctx, http.MethodPost, endpoint, headers, payload)
}

func (c *Client) do(ctx context.Context, method, endpoint string, headers map[string]string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s %s: unexpected status %d", method, endpoint, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func randomLocalPart(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = localPartAlphabet[rand.Intn(len(localPartAlphabet))]
	}
	return string(b)
}
