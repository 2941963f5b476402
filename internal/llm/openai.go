package llm

import "encoding/json"

// OpenRouterBaseURL is the default endpoint of the OpenAI-compatible provider
const OpenRouterBaseURL = "https://openrouter.ai/api"

// OpenAIConfig configures an OpenAI-compatible endpoint such as OpenRouter
type OpenAIConfig struct {
	Name    string // default: openrouter
	APIKey  string
	BaseURL string // default: https://openrouter.ai/api
	Model   string // default: deepseek/deepseek-r1:free
	// SiteURL and SiteName are sent as OpenRouter attribution headers
	SiteURL  string
	SiteName string
}

// NewOpenAIProvider creates a provider for the /v1/chat/completions API
func NewOpenAIProvider(cfg OpenAIConfig) *ChatProvider {
	if cfg.Name == "" {
		cfg.Name = "openrouter"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = OpenRouterBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "deepseek/deepseek-r1:free"
	}
	return newChatProvider(cfg.Name, cfg.APIKey, cfg.BaseURL, cfg.Model,
		openaiDialect{siteURL: cfg.SiteURL, siteName: cfg.SiteName})
}

type openaiDialect struct {
	siteURL  string
	siteName string
}

type openaiRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
}

type openaiResponse struct {
	Choices []struct {
		Message      wireMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (openaiDialect) path() string { return "/v1/chat/completions" }

func (d openaiDialect) headers(apiKey string) map[string]string {
	h := map[string]string{
		"HTTP-Referer": d.siteURL,
		"X-Title":      d.siteName,
	}
	if apiKey != "" {
		h["Authorization"] = "Bearer " + apiKey
	}
	return h
}

func (openaiDialect) encode(model string, req *Request) any {
	return &openaiRequest{
		Model:       model,
		Messages:    inlineConversation(req),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stop:        req.StopSeqs,
	}
}

func (openaiDialect) decode(data []byte) (*Response, error) {
	var out openaiResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	resp := &Response{Usage: Usage{
		InputTokens:  out.Usage.PromptTokens,
		OutputTokens: out.Usage.CompletionTokens,
	}}
	if len(out.Choices) > 0 {
		resp.Content = out.Choices[0].Message.Content
		resp.FinishReason = out.Choices[0].FinishReason
	}
	return resp, nil
}
