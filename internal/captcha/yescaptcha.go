// File: internal/captcha/yescaptcha.go
//
// Token client for the external reCAPTCHA scoring service. Only the
// degraded-trust session refresh path needs it; the core signup flow never
// calls here.
package captcha

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/bizmint-cli/internal/config"
	"github.com/xkilldash9x/bizmint-cli/internal/network"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrTokenTimeout means the vendor never produced a token within the budget.
var ErrTokenTimeout = errors.New("captcha: token polling timed out")

const taskType = "RecaptchaV3TaskProxylessM1"

// Service drives the vendor's create-task / get-result polling protocol.
type Service struct {
	http         *network.Client
	base         string
	apiKey       string
	siteKey      string
	siteURL      string
	pollInterval time.Duration
	timeout      time.Duration
	log          *zap.Logger
}

// NewService builds a token service from configuration.
func NewService(cfg config.CaptchaConfig, hc *network.Client, logger *zap.Logger) *Service {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 3 * time.Second
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Service{
		http:         hc,
		base:         strings.TrimRight(cfg.APIBase, "/"),
		apiKey:       cfg.APIKey,
		siteKey:      cfg.SiteKey,
		siteURL:      cfg.SiteURL,
		pollInterval: interval,
		timeout:      timeout,
		log:          logger.Named("captcha"),
	}
}

// Enabled reports whether the vendor key is configured.
func (s *Service) Enabled() bool {
	return s.apiKey != ""
}

// Token requests a scoring token for the given page action and polls until
// the vendor reports it ready.
func (s *Service) Token(ctx context.Context, pageAction string) (string, error) {
	if !s.Enabled() {
		return "", errors.New("captcha: API key not configured")
	}

	taskID, err := s.createTask(ctx, pageAction)
	if err != nil {
		return "", err
	}
	s.log.Info("Captcha task created", zap.String("task_id", taskID))

	deadline := time.Now().Add(s.timeout)
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(s.pollInterval):
		}

		token, ready, err := s.pollResult(ctx, taskID)
		if err != nil {
			return "", err
		}
		if ready {
			s.log.Info("Captcha token obtained")
			return token, nil
		}
		if time.Now().After(deadline) {
			return "", ErrTokenTimeout
		}
	}
}

func (s *Service) createTask(ctx context.Context, pageAction string) (string, error) {
	body, err := s.post(ctx, "/createTask", map[string]any{
		"clientKey": s.apiKey,
		"task": map[string]any{
			"websiteURL": s.siteURL,
			"websiteKey": s.siteKey,
			"pageAction": pageAction,
			"type":       taskType,
		},
	})
	if err != nil {
		return "", err
	}

	var resp struct {
		ErrorID          int    `json:"errorId"`
		ErrorDescription string `json:"errorDescription"`
		TaskID           any    `json:"taskId"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode createTask response: %w", err)
	}
	if resp.ErrorID != 0 {
		return "", fmt.Errorf("captcha: createTask failed: %s", resp.ErrorDescription)
	}
	if resp.TaskID == nil {
		return "", errors.New("captcha: createTask returned no task id")
	}
	return fmt.Sprint(resp.TaskID), nil
}

func (s *Service) pollResult(ctx context.Context, taskID string) (token string, ready bool, err error) {
	body, err := s.post(ctx, "/getTaskResult", map[string]any{
		"clientKey": s.apiKey,
		"taskId":    taskID,
	})
	if err != nil {
		return "", false, err
	}

	var resp struct {
		Status           string `json:"status"`
		ErrorID          int    `json:"errorId"`
		ErrorDescription string `json:"errorDescription"`
		Solution         struct {
			GRecaptchaResponse string `json:"gRecaptchaResponse"`
		} `json:"solution"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", false, fmt.Errorf("decode getTaskResult response: %w", err)
	}
	if resp.ErrorID != 0 {
		return "", false, fmt.Errorf("captcha: getTaskResult failed: %s", resp.ErrorDescription)
	}
	if resp.Status == "ready" && resp.Solution.GRecaptchaResponse != "" {
		return resp.Solution.GRecaptchaResponse, true, nil
	}
	return "", false, nil
}

func (s *Service) post(ctx context.Context, path string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.base+path, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("POST %s: unexpected status %d", path, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
