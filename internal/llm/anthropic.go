package llm

import (
	"encoding/json"
	"strings"
)

// ClaudeConfig configures the Anthropic Messages API
type ClaudeConfig struct {
	APIKey  string
	BaseURL string // default: https://api.anthropic.com
	Model   string // default: claude-sonnet-4-20250514
}

// NewClaudeProvider creates a provider for Anthropic's /v1/messages API
func NewClaudeProvider(cfg ClaudeConfig) *ChatProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com"
	}
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-20250514"
	}
	return newChatProvider("claude", cfg.APIKey, cfg.BaseURL, cfg.Model, anthropicDialect{})
}

// anthropicMaxTokens fills the field the Messages API requires
const anthropicMaxTokens = 4096

type anthropicDialect struct{}

type anthropicRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	System      string        `json:"system,omitempty"`
	Messages    []wireMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	StopSeqs    []string      `json:"stop_sequences,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (anthropicDialect) path() string { return "/v1/messages" }

func (anthropicDialect) headers(apiKey string) map[string]string {
	return map[string]string{
		"x-api-key":         apiKey,
		"anthropic-version": "2023-06-01",
	}
}

func (anthropicDialect) encode(model string, req *Request) any {
	system, msgs := conversation(req)
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicMaxTokens
	}
	return &anthropicRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		System:      system,
		Messages:    msgs,
		Temperature: req.Temperature,
		StopSeqs:    req.StopSeqs,
	}
}

func (anthropicDialect) decode(data []byte) (*Response, error) {
	var out anthropicResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	var text strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return &Response{
		Content:      text.String(),
		FinishReason: out.StopReason,
		Usage: Usage{
			InputTokens:  out.Usage.InputTokens,
			OutputTokens: out.Usage.OutputTokens,
		},
	}, nil
}
