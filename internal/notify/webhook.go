package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RateLimitedError возвращается, когда получатель просит повторить запрос позже.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// WebhookSender отправляет события POST-запросом на адрес получателя.
type WebhookSender struct {
	url        string
	httpClient *http.Client
}

// NewWebhookSender создаёт HTTP-отправителя событий на указанный адрес.
func NewWebhookSender(url string) *WebhookSender {
	url = strings.TrimRight(url, "/")
	if url != "" && !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + url
	}

	return &WebhookSender{
		url: url,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Name возвращает название транспорта для метрик и логов.
func (s *WebhookSender) Name() string {
	return "webhook"
}

// Send отправляет событие. Ответ 429 превращается в RateLimitedError с задержкой из Retry-After.
func (s *WebhookSender) Send(ctx context.Context, ev Event) error {
	if s == nil || s.url == "" {
		return fmt.Errorf("webhook sender not configured")
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Id", ev.ID)
	req.Header.Set("X-Event-Type", ev.Type)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := time.Duration(0)
		if v := resp.Header.Get("Retry-After"); v != "" {
			if seconds, parseErr := strconv.Atoi(v); parseErr == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return &RateLimitedError{RetryAfter: retryAfter}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	return nil
}
