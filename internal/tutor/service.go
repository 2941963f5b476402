// Package tutor answers questions about a submission with Socratic hints
// pitched at the user's experience level.
package tutor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/felixgeelhaar/codedojo/internal/domain"
	"github.com/felixgeelhaar/codedojo/internal/llm"
)

// NoResponse is returned when the provider replies with no content
const NoResponse = "No response"

// ErrProviderFailed wraps failures talking to the LLM provider
var ErrProviderFailed = errors.New("failed to fetch response from tutor provider")

// ProfileGetter loads profiles
type ProfileGetter interface {
	Get(ctx context.Context, userID string) (*domain.Profile, error)
}

// ProblemGetter loads problems for lesson context
type ProblemGetter interface {
	Get(ctx context.Context, id int64) (*domain.Problem, error)
}

// ProviderSource yields the provider to use for a call
type ProviderSource interface {
	Default() (llm.Provider, error)
}

// ChatRequest is a tutoring question about the user's code
type ChatRequest struct {
	Code      string `json:"code"`
	Terminal  string `json:"terminal"`
	Question  string `json:"question"`
	ProblemID int64  `json:"problem_id,omitempty"`
}

// ChatResponse is the tutor's answer
type ChatResponse struct {
	Response string `json:"response"`
}

// Service runs tutor chats
type Service struct {
	profiles  ProfileGetter
	problems  ProblemGetter
	providers ProviderSource
	maxTokens int
	logger    *slog.Logger
}

// NewService creates a new tutor service. problems may be nil.
func NewService(profiles ProfileGetter, problems ProblemGetter, providers ProviderSource, maxTokens int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		profiles:  profiles,
		problems:  problems,
		providers: providers,
		maxTokens: maxTokens,
		logger:    logger,
	}
}

// Chat answers a question about the caller's code. Code and question are
// required and the caller must have a profile.
func (s *Service) Chat(ctx context.Context, userID string, req ChatRequest) (*ChatResponse, error) {
	if userID == "" {
		return nil, domain.ErrUnauthorized
	}
	if strings.TrimSpace(req.Code) == "" || strings.TrimSpace(req.Question) == "" {
		return nil, fmt.Errorf("%w: missing required fields", domain.ErrBadRequest)
	}

	profile, err := s.profiles.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrProfileNotFound) {
			return nil, fmt.Errorf("%w: please complete your profile setup", domain.ErrProfileNotFound)
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}

	var problemType domain.ProblemType
	if req.ProblemID != 0 && s.problems != nil {
		if p, err := s.problems.Get(ctx, req.ProblemID); err == nil {
			problemType = p.Type
		}
	}

	prompt, err := BuildPrompt(profile, problemType, req)
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}

	provider, err := s.providers.Default()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderFailed, err)
	}

	resp, err := provider.Generate(ctx, &llm.Request{
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		MaxTokens: s.maxTokens,
	})
	if err != nil {
		s.logger.Error("tutor provider call failed", "provider", provider.Name(), "user_id", userID, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrProviderFailed, err)
	}

	answer := strings.TrimSpace(resp.Content)
	if answer == "" {
		answer = NoResponse
	}
	s.logger.Debug("tutor answered",
		"provider", provider.Name(),
		"user_id", userID,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens)
	return &ChatResponse{Response: answer}, nil
}
