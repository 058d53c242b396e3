package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"go.uber.org/zap"
)

// WinnerEvent is posted to the webhook after a period winner is minted.
type WinnerEvent struct {
	Project     string `json:"project"`
	Event       string `json:"event"`
	Message     string `json:"message"`
	PeriodStart int64  `json:"period_start"`
	PostID      string `json:"post_id"`
	Username    string `json:"username"`
	LikeCount   int64  `json:"like_count"`
	Signature   string `json:"signature"`
}

type WebhookNotifier struct {
	URL      string
	HTTP     *http.Client
	Logger   *zap.Logger
	Attempts uint
	Delay    time.Duration
}

func NewWebhookNotifier(url string, timeout time.Duration, logger *zap.Logger) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookNotifier{
		URL:      url,
		HTTP:     &http.Client{Timeout: timeout},
		Logger:   logger,
		Attempts: 3,
		Delay:    500 * time.Millisecond,
	}
}

func (n *WebhookNotifier) AnnounceWinner(ctx context.Context, ev WinnerEvent) error {
	if n == nil || n.URL == "" {
		return nil
	}
	if ev.Project == "" {
		ev.Project = "defess"
	}
	if ev.Event == "" {
		ev.Event = "period_winner"
	}
	if ev.Message == "" {
		ev.Message = fmt.Sprintf("@%s won period %d with %d likes", ev.Username, ev.PeriodStart, ev.LikeCount)
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	attempts := n.Attempts
	if attempts == 0 {
		attempts = 1
	}
	return retry.Do(
		func() error { return n.post(ctx, b) },
		retry.Attempts(attempts),
		retry.Delay(n.Delay),
		retry.MaxDelay(5*time.Second),
		retry.Context(ctx),
		retry.RetryIf(func(err error) bool {
			var he *httpError
			if errors.As(err, &he) {
				return he.StatusCode >= 500 || he.StatusCode == http.StatusTooManyRequests
			}
			return true
		}),
		retry.OnRetry(func(attempt uint, err error) {
			if n.Logger != nil {
				n.Logger.Warn("winner webhook retry", zap.Uint("attempt", attempt), zap.Error(err))
			}
		}),
	)
}

func (n *WebhookNotifier) post(ctx context.Context, body []byte) error {
	client := n.HTTP
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &httpError{StatusCode: resp.StatusCode}
	}
	return nil
}

type httpError struct {
	StatusCode int
}

func (e *httpError) Error() string {
	return "webhook http status " + http.StatusText(e.StatusCode)
}
