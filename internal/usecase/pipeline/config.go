package pipeline

import (
	"fmt"
	"time"

	"github.com/kailas-cloud/lexdex/internal/domain"
)

// Pipeline defaults.
const (
	DefaultConcurrency      = 4
	DefaultMaxRetries       = 3
	DefaultLeaseDuration    = 10 * time.Minute
	DefaultApproveThreshold = 70
	DefaultRejectThreshold  = 40
	DefaultBatchSize        = 50
	MaxBatchSize            = 500
)

// Config tunes batch runs.
type Config struct {
	Concurrency      int
	MaxRetries       int
	LeaseDuration    time.Duration
	ApproveThreshold float64
	RejectThreshold  float64
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.LeaseDuration <= 0 {
		c.LeaseDuration = DefaultLeaseDuration
	}
	if c.ApproveThreshold == 0 {
		c.ApproveThreshold = DefaultApproveThreshold
	}
	if c.RejectThreshold == 0 {
		c.RejectThreshold = DefaultRejectThreshold
	}
	return c
}

// Trigger is a batch run request.
type Trigger struct {
	BatchSize int
	Category  string
	// MaxItems bounds the documents attempted by the run; defaults to BatchSize.
	MaxItems int
}

func (t Trigger) validate() (Trigger, error) {
	if t.BatchSize <= 0 {
		t.BatchSize = DefaultBatchSize
	}
	if t.BatchSize > MaxBatchSize {
		return t, fmt.Errorf("batchSize exceeds %d: %w", MaxBatchSize, domain.ErrValidation)
	}
	if t.MaxItems < 0 {
		return t, fmt.Errorf("maxItems must be positive: %w", domain.ErrValidation)
	}
	if t.MaxItems == 0 {
		t.MaxItems = t.BatchSize
	}
	return t, nil
}

// RunResult summarizes a batch run.
type RunResult struct {
	Processed int           `json:"processed"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"-"`
}
