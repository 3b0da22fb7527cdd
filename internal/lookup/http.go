package lookup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"kbbot/internal/domain"
)

const maxAnswerBytes = 1 << 20

// HTTPAnswerer asks a remote answer service. It sends {"question": text} and
// accepts either {"answer": "..."} or a text/plain body.
type HTTPAnswerer struct {
	url    string
	token  string
	client *http.Client
	logger *slog.Logger
}

var _ domain.Answerer = (*HTTPAnswerer)(nil)

type HTTPConfig struct {
	URL     string
	Token   string        // sent as a bearer token when set
	Timeout time.Duration // 0 = no timeout
	Client  *http.Client  // optional; overrides Timeout
	Logger  *slog.Logger
}

func NewHTTP(cfg HTTPConfig) *HTTPAnswerer {
	if cfg.Client == nil {
		cfg.Client = newHTTPClient(cfg.Timeout)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &HTTPAnswerer{url: cfg.URL, token: cfg.Token, client: cfg.Client, logger: cfg.Logger}
}

// newHTTPClient returns a pooled client. The dial and TLS limits bound
// connection setup only; the overall request has no deadline unless timeout > 0.
func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

type answerRequest struct {
	Question string `json:"question"`
}

type answerResponse struct {
	Answer string `json:"answer"`
}

// Answer makes exactly one request; failures are returned, never retried.
func (h *HTTPAnswerer) Answer(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(answerRequest{Question: text})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build lookup request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/plain")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("lookup request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAnswerBytes))
	if err != nil {
		return "", fmt.Errorf("read lookup response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(data), 200)}
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		return string(data), nil
	}
	var out answerResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("decode lookup response: %w", err)
	}
	h.logger.Debug("lookup answered", "url", h.url, "answer_len", len(out.Answer))
	return out.Answer, nil
}

// StatusError reports a non-2xx answer from the lookup service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("lookup service returned HTTP %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
