package chunking

import (
	"fmt"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter measures text in model tokens.
type TokenCounter interface {
	Name() string
	Count(text string) int
}

// Tokenizer names.
const (
	TokenizerEstimate = "estimate"
	TokenizerTiktoken = "tiktoken"
)

// EstimateCounter approximates tokens as ceil(runes/4).
type EstimateCounter struct{}

// Name returns the tokenizer name.
func (EstimateCounter) Name() string { return TokenizerEstimate }

// Count returns ceil(runes/4).
func (EstimateCounter) Count(text string) int {
	return (utf8.RuneCountInString(text) + 3) / 4
}

// TiktokenCounter counts cl100k_base tokens.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter loads the cl100k_base encoding.
func NewTiktokenCounter() (*TiktokenCounter, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("load cl100k_base: %w", err)
	}
	return &TiktokenCounter{enc: enc}, nil
}

// Name returns the tokenizer name.
func (c *TiktokenCounter) Name() string { return TokenizerTiktoken }

// Count returns the number of cl100k_base tokens in text.
func (c *TiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// NewTokenCounter resolves a tokenizer by name. Empty selects the estimator.
func NewTokenCounter(name string) (TokenCounter, error) {
	switch name {
	case "", TokenizerEstimate:
		return EstimateCounter{}, nil
	case TokenizerTiktoken:
		return NewTiktokenCounter()
	default:
		return nil, fmt.Errorf("unknown tokenizer %q", name)
	}
}
