package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"chat-automation/internal/domain"
	"chat-automation/internal/infra/metrics"
)

// HTTPGateway обращается к внешнему сервису сессий по HTTP.
type HTTPGateway struct {
	baseURL    *url.URL
	token      string
	httpClient *http.Client
}

var _ domain.SessionGateway = (*HTTPGateway)(nil)

// Option настраивает HTTPGateway.
type Option func(*HTTPGateway)

// WithHTTPClient подменяет HTTP-клиент.
func WithHTTPClient(client *http.Client) Option {
	return func(g *HTTPGateway) {
		if client != nil {
			g.httpClient = client
		}
	}
}

// WithTimeout задаёт таймаут запроса.
func WithTimeout(timeout time.Duration) Option {
	return func(g *HTTPGateway) {
		if timeout > 0 {
			g.httpClient.Timeout = timeout
		}
	}
}

// NewHTTP создаёт клиента сервиса сессий.
func NewHTTP(baseURL, token string, opts ...Option) (*HTTPGateway, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("gateway url is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse gateway url: %w", err)
	}
	if parsed.Scheme == "" {
		parsed.Scheme = "http"
	}
	g := &HTTPGateway{
		baseURL:    parsed,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

type sessionInfo struct {
	ConnectionStatus string `json:"connectionStatus"`
}

// Session запрашивает состояние сессии. Для неизвестной сессии возвращает domain.ErrSessionNotFound.
func (g *HTTPGateway) Session(ctx context.Context, sessionID string) (domain.Session, error) {
	var info sessionInfo
	status, err := g.do(ctx, http.MethodGet, g.endpoint("api", "sessions", sessionID), nil, &info, "session_get")
	if status == http.StatusNotFound {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &httpSession{gw: g, id: sessionID, status: info.ConnectionStatus}, nil
}

func (g *HTTPGateway) endpoint(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return strings.TrimRight(g.baseURL.String(), "/") + "/" + strings.Join(escaped, "/")
}

func (g *HTTPGateway) do(ctx context.Context, method, endpoint string, body any, out any, operation string) (int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}
	start := time.Now()
	resp, err := g.httpClient.Do(req)
	metrics.ObserveNetworkRequest("session_gateway", operation, g.baseURL.Host, start, err)
	if err != nil {
		return 0, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var apiErr domain.SendResult
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			return resp.StatusCode, fmt.Errorf("gateway status %d: %s", resp.StatusCode, apiErr.Message)
		}
		return resp.StatusCode, fmt.Errorf("gateway status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

type httpSession struct {
	gw     *HTTPGateway
	id     string
	status string
}

func (s *httpSession) ConnectionStatus() string { return s.status }

func (s *httpSession) SendText(ctx context.Context, chatID, text string, typingDelay time.Duration) (domain.SendResult, error) {
	return s.send(ctx, "text", map[string]any{
		"chatId":      chatID,
		"text":        text,
		"typingDelay": typingDelay.Milliseconds(),
	})
}

func (s *httpSession) SendImage(ctx context.Context, chatID, imageURL, caption string, typingDelay time.Duration) (domain.SendResult, error) {
	return s.send(ctx, "image", map[string]any{
		"chatId":      chatID,
		"url":         imageURL,
		"caption":     caption,
		"typingDelay": typingDelay.Milliseconds(),
	})
}

func (s *httpSession) SendDocument(ctx context.Context, chatID, docURL, filename, mimetype string, typingDelay time.Duration) (domain.SendResult, error) {
	return s.send(ctx, "document", map[string]any{
		"chatId":      chatID,
		"url":         docURL,
		"filename":    filename,
		"mimetype":    mimetype,
		"typingDelay": typingDelay.Milliseconds(),
	})
}

func (s *httpSession) send(ctx context.Context, kind string, body map[string]any) (domain.SendResult, error) {
	var res domain.SendResult
	endpoint := s.gw.endpoint("api", "sessions", s.id, "messages", kind)
	if _, err := s.gw.do(ctx, http.MethodPost, endpoint, body, &res, "send_"+kind); err != nil {
		return domain.SendResult{}, err
	}
	return res, nil
}
