package ai

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// UsageLimitError reports that a session budget was exhausted before the
// request was sent. It carries the limit that tripped.
type UsageLimitError struct {
	What  string // "calls" or "tokens"
	Used  int
	Limit int
}

func (e *UsageLimitError) Error() string {
	return fmt.Sprintf("usage limit reached: %s %d/%d", e.What, e.Used, e.Limit)
}

// UsageStats is a point-in-time snapshot of session spend.
type UsageStats struct {
	Calls            int
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// UsageTracker enforces per-session call and token budgets across all model
// calls. A zero limit disables that budget.
type UsageTracker struct {
	mu               sync.Mutex
	maxCalls         int
	maxTokens        int
	calls            int
	promptTokens     int
	completionTokens int
}

// NewUsageTracker creates a tracker with the given budgets. Pass 0 for an
// unlimited dimension.
func NewUsageTracker(maxCalls, maxTokens int) *UsageTracker {
	return &UsageTracker{maxCalls: maxCalls, maxTokens: maxTokens}
}

// Check returns a UsageLimitError if either budget is already spent.
func (t *UsageTracker) Check() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.maxCalls > 0 && t.calls >= t.maxCalls {
		return &UsageLimitError{What: "calls", Used: t.calls, Limit: t.maxCalls}
	}
	total := t.promptTokens + t.completionTokens
	if t.maxTokens > 0 && total >= t.maxTokens {
		return &UsageLimitError{What: "tokens", Used: total, Limit: t.maxTokens}
	}
	return nil
}

// Record accounts one completed call.
func (t *UsageTracker) Record(u Usage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	t.promptTokens += u.PromptTokens
	t.completionTokens += u.CompletionTokens
}

// Stats returns a snapshot of current spend.
func (t *UsageTracker) Stats() UsageStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return UsageStats{
		Calls:            t.calls,
		PromptTokens:     t.promptTokens,
		CompletionTokens: t.completionTokens,
		TotalTokens:      t.promptTokens + t.completionTokens,
	}
}

// MeteredRuntime wraps a Runtime with usage accounting and structured call
// logging. Budgets are checked before the upstream call is made.
type MeteredRuntime struct {
	inner   Runtime
	tracker *UsageTracker
	logger  *zap.Logger
}

// NewMeteredRuntime wraps inner. tracker and logger may be nil.
func NewMeteredRuntime(inner Runtime, tracker *UsageTracker, logger *zap.Logger) *MeteredRuntime {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MeteredRuntime{inner: inner, tracker: tracker, logger: logger}
}

// Tracker exposes the underlying tracker for reporting.
func (m *MeteredRuntime) Tracker() *UsageTracker { return m.tracker }

func (m *MeteredRuntime) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if m.tracker != nil {
		if err := m.tracker.Check(); err != nil {
			return nil, err
		}
	}
	start := time.Now()
	resp, err := m.inner.Generate(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		m.logger.Warn("model call failed",
			zap.String("model", req.Model),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return nil, err
	}
	if m.tracker != nil {
		m.tracker.Record(resp.Usage)
	}
	m.logger.Debug("model call completed",
		zap.String("model", req.Model),
		zap.String("request_id", resp.RequestID),
		zap.Duration("elapsed", elapsed),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens))
	return resp, nil
}
