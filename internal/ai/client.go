package ai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"LLMAssistant/internal/config"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestTimeout фиксированный тайм-аут одного запроса.
const RequestTimeout = 60 * time.Second

// maxBodyBytes ограничение на размер читаемого ответа.
const maxBodyBytes = 16 << 20

// Sender отправляет собранный запрос и возвращает текст ответа модели.
// Все реализации должны быть взаимозаменяемыми.
type Sender interface {
	Send(ctx context.Context, p Payload) (string, error)
}

// Doer сетевой примитив; *http.Client ему удовлетворяет.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client однократный обмен с OpenAI-совместимым endpoint без повторов.
type Client struct {
	url    string
	apiKey string
	http   Doer
	logger *zap.SugaredLogger
}

// NewClient создаёт клиента. Если doer == nil, используется http.Client с тайм-аутом RequestTimeout.
func NewClient(cfg *config.Config, doer Doer, logger *zap.SugaredLogger) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("parse llm url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("llm url %q: unsupported scheme %q", cfg.URL, u.Scheme)
	}
	if doer == nil {
		doer = &http.Client{Timeout: RequestTimeout}
	}
	apiKey := ""
	if cfg.HasAPIKey() {
		apiKey = strings.TrimSpace(cfg.APIKey)
	}
	return &Client{url: u.String(), apiKey: apiKey, http: doer, logger: logger}, nil
}

// Send выполняет один POST запрос. Возвращает либо текст, либо *Error, но не то и другое.
func (c *Client) Send(ctx context.Context, p Payload) (string, error) {
	body, err := marshalPayload(p)
	if err != nil {
		return "", &Error{Kind: KindProtocol, Message: "Error encoding request", Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", &Error{Kind: KindNetwork, Message: "Error building request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	requestID := uuid.NewString()
	start := time.Now()
	c.logger.Infow("Sending request to LLM", "request_id", requestID, "url", c.url, "bytes", len(body), "messages", len(p.Messages))

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Errorw("LLM request failed", "request_id", requestID, "duration", time.Since(start).String(), "error", err)
		return "", &Error{Kind: KindNetwork, Message: "Network upload failed", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		c.logger.Errorw("Failed to read LLM response", "request_id", requestID, "status", resp.StatusCode, "error", err)
		return "", &Error{Kind: KindNetwork, Status: resp.StatusCode, Message: fmt.Sprintf("Network download failed. HTTP Status: %d", resp.StatusCode), Err: err}
	}
	c.logger.Infow("LLM response received", "request_id", requestID, "status", resp.StatusCode, "bytes", len(raw), "duration", time.Since(start).String())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if ok, apiErr := decodeErrorBody(resp.StatusCode, raw); ok {
			c.logger.Warnw("LLM returned error body", "request_id", requestID, "status", resp.StatusCode, "error", apiErr)
			return "", apiErr
		}
		return "", &Error{
			Kind:    KindNetwork,
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("Network upload failed. HTTP Status: %d\nError Info: %s", resp.StatusCode, diagnostic(resp.Status, raw)),
		}
	}

	text, err := decodeResponse(raw)
	if err != nil {
		var e *Error
		if errors.As(err, &e) {
			e.Status = resp.StatusCode
		}
		c.logger.Warnw("LLM response not usable", "request_id", requestID, "error", err)
		return "", err
	}
	return text, nil
}

// diagnostic короткое описание неуспешного ответа для пользователя.
func diagnostic(status string, body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if s == "" {
		return status
	}
	if len(s) > limit {
		s = s[:limit] + "..."
	}
	return status + ": " + s
}
