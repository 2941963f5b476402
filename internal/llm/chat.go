package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// APIError is a non-200 reply from a provider
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

// dialect translates between Request/Response and one vendor's chat API
type dialect interface {
	path() string
	headers(apiKey string) map[string]string
	encode(model string, req *Request) any
	decode(data []byte) (*Response, error)
}

// ChatProvider is a Provider backed by an HTTP chat-completion endpoint
type ChatProvider struct {
	name    string
	apiKey  string
	baseURL string
	model   string
	dialect dialect
	client  *http.Client
}

func newChatProvider(name, apiKey, baseURL, model string, d dialect) *ChatProvider {
	return &ChatProvider{
		name:    name,
		apiKey:  apiKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		dialect: d,
		client:  newHTTPClient(),
	}
}

// Name returns the registry name of the provider
func (p *ChatProvider) Name() string {
	return p.name
}

// Generate sends one completion request
func (p *ChatProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	var raw json.RawMessage
	err := postJSON(ctx, p.client, p.baseURL+p.dialect.path(), p.dialect.headers(p.apiKey), p.dialect.encode(model, req), &raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.name, err)
	}

	resp, err := p.dialect.decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", p.name, err)
	}
	return resp, nil
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// conversation splits req into its system prompt and the remaining turns.
// System-role messages are folded into the prompt after req.System.
func conversation(req *Request) (string, []wireMessage) {
	system := req.System
	msgs := make([]wireMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		msgs = append(msgs, wireMessage{Role: string(m.Role), Content: m.Content})
	}
	return system, msgs
}

// inlineConversation is conversation for APIs that take the system prompt
// as the first message
func inlineConversation(req *Request) []wireMessage {
	system, msgs := conversation(req)
	if system == "" {
		return msgs
	}
	return append([]wireMessage{{Role: string(RoleSystem), Content: system}}, msgs...)
}

// newHTTPClient has timeouts sized for slow completion endpoints
func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 120 * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 90 * time.Second,
			IdleConnTimeout:       90 * time.Second,
			MaxIdleConnsPerHost:   5,
			ForceAttemptHTTP2:     true,
		},
	}
}

// postJSON sends payload to url and decodes a 200 reply into out. Empty
// header values are skipped.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: string(msg)}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
