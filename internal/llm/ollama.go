package llm

import "encoding/json"

// OllamaConfig configures a local Ollama server
type OllamaConfig struct {
	BaseURL string // default: http://localhost:11434
	Model   string // default: qwen2.5-coder
}

// NewOllamaProvider creates a provider for Ollama's /api/chat endpoint. It
// needs no API key.
func NewOllamaProvider(cfg OllamaConfig) *ChatProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "qwen2.5-coder"
	}
	return newChatProvider("ollama", "", cfg.BaseURL, cfg.Model, ollamaDialect{})
}

type ollamaDialect struct{}

type ollamaRequest struct {
	Model    string         `json:"model"`
	Messages []wireMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaResponse struct {
	Message         wireMessage `json:"message"`
	DoneReason      string      `json:"done_reason"`
	EvalCount       int         `json:"eval_count"`
	PromptEvalCount int         `json:"prompt_eval_count"`
}

func (ollamaDialect) path() string { return "/api/chat" }

func (ollamaDialect) headers(string) map[string]string { return nil }

func (ollamaDialect) encode(model string, req *Request) any {
	out := &ollamaRequest{Model: model, Messages: inlineConversation(req)}
	opts := map[string]any{}
	if req.Temperature > 0 {
		opts["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		opts["num_predict"] = req.MaxTokens
	}
	if len(req.StopSeqs) > 0 {
		opts["stop"] = req.StopSeqs
	}
	if len(opts) > 0 {
		out.Options = opts
	}
	return out
}

func (ollamaDialect) decode(data []byte) (*Response, error) {
	var out ollamaResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	reason := out.DoneReason
	if reason == "" {
		reason = "stop"
	}
	return &Response{
		Content:      out.Message.Content,
		FinishReason: reason,
		Usage: Usage{
			InputTokens:  out.PromptEvalCount,
			OutputTokens: out.EvalCount,
		},
	}, nil
}
