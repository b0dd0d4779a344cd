package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/lexdex/internal/domain"
)

const judgePrompt = `You check whether a legal passage is relevant to a question about Tunisian law.
Answer with a single word: "yes" if the passage helps answer the question, "no" otherwise.`

// JudgeConfig holds the relevance judge settings.
type JudgeConfig struct {
	APIKey   string
	BaseURL  string
	Model    string
	Timeout  time.Duration
	Attempts uint
	Logger   *zap.Logger
}

// Judge asks a chat model whether a passage is relevant to a query.
type Judge struct {
	client   *openai.Client
	model    string
	timeout  time.Duration
	attempts uint
	logger   *zap.Logger
}

// NewJudge creates a chat relevance judge.
func NewJudge(cfg *JudgeConfig) *Judge {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	attempts := cfg.Attempts
	if attempts == 0 {
		attempts = 2
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Judge{
		client:   openai.NewClientWithConfig(clientCfg),
		model:    cfg.Model,
		timeout:  timeout,
		attempts: attempts,
		logger:   cfg.Logger,
	}
}

// Relevant returns the model's verdict. Each attempt has its own timeout.
func (j *Judge) Relevant(ctx context.Context, query, passage string) (bool, error) {
	req := openai.ChatCompletionRequest{
		Model:       j.model,
		Temperature: 0,
		MaxTokens:   3,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: judgePrompt},
			{Role: openai.ChatMessageRoleUser, Content: "Question: " + query + "\n\nPassage:\n" + passage},
		},
	}

	verdict, err := retry.DoWithData(
		func() (string, error) {
			callCtx, cancel := context.WithTimeout(ctx, j.timeout)
			defer cancel()
			resp, err := j.client.CreateChatCompletion(callCtx, req)
			if err != nil {
				return "", parseAPIError(err)
			}
			if len(resp.Choices) == 0 {
				return "", fmt.Errorf("empty judge response: %w", domain.ErrProviderCall)
			}
			return resp.Choices[0].Message.Content, nil
		},
		retry.Context(ctx),
		retry.Attempts(j.attempts),
		retry.Delay(100*time.Millisecond),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return false, fmt.Errorf("relevance judge: %w", err)
	}
	return parseVerdict(verdict)
}

// parseVerdict accepts yes/no in English, French or Arabic.
func parseVerdict(s string) (bool, error) {
	v := strings.ToLower(strings.Trim(strings.TrimSpace(s), ".!\"'"))
	switch {
	case strings.HasPrefix(v, "yes"), strings.HasPrefix(v, "oui"), strings.HasPrefix(v, "نعم"):
		return true, nil
	case strings.HasPrefix(v, "no"), strings.HasPrefix(v, "non"), strings.HasPrefix(v, "لا"):
		return false, nil
	}
	return false, fmt.Errorf("unexpected judge verdict %q: %w", s, domain.ErrProviderCall)
}
