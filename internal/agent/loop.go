package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/yoki/data-agency/internal/dataset"
	"github.com/yoki/data-agency/internal/sandbox"
)

// Request is one natural-language analysis task bound to the datasets it may
// use. Immutable once issued.
type Request struct {
	ID           string
	Text         string
	DatasetNames []string
}

// State names the loop's position for observability. The machine proceeds
// Building, Generating, Executing, Classifying and ends in Accepted or
// Aborted; Retrying loops back to Building.
type State string

const (
	StateBuilding    State = "building"
	StateGenerating  State = "generating"
	StateExecuting   State = "executing"
	StateClassifying State = "classifying"
	StateAccepted    State = "accepted"
	StateRetrying    State = "retrying"
	StateAborted     State = "aborted"
)

// Abort reasons carried on terminal reports. The caller can distinguish
// "the model kept failing" from "the request is impossible" from "the
// machinery broke".
const (
	ReasonBudgetExhausted = "retry budget exhausted"
	ReasonUnsatisfiable   = "unsatisfiable"
	ReasonInfrastructure  = "infrastructure"
	ReasonCanceled        = "canceled"
)

// Attempt records one generate-execute-classify cycle. Append-only within a
// History; Seq starts at 1.
type Attempt struct {
	Seq       int
	Prompt    Prompt
	Candidate Candidate
	Code      string
	Result    *sandbox.ExecutionResult
	Outcome   Outcome
}

// History is the ordered attempts of one request. It lives only as long as
// the request.
type History []Attempt

// Report is the terminal output of one request.
type Report struct {
	State  State // StateAccepted or StateAborted
	Reason string
	// Populated on acceptance.
	Code      string
	Result    *sandbox.ExecutionResult
	Artifacts []sandbox.Artifact
	// Full trail, surfaced on abort so every failed attempt can be
	// inspected, and kept on acceptance for rendering.
	History History
	// Err carries the underlying fault for infrastructure aborts.
	Err error
}

// Accepted reports whether the request concluded with working code.
func (r *Report) Accepted() bool { return r != nil && r.State == StateAccepted }

// Loop coordinates prompt building, generation, execution and classification
// for one request at a time.
type Loop struct {
	Generator Generator
	Executor  sandbox.Executor
	Registry  *dataset.Registry
	Builder   PromptBuilder

	// MaxAttempts bounds the generate-execute cycles per request.
	MaxAttempts int
	// GenRetries bounds immediate re-asks after a failed model call
	// before the request aborts.
	GenRetries int
	// ExecTimeout bounds each sandbox run's wall clock.
	ExecTimeout time.Duration

	Logger *zap.Logger
}

const (
	DefaultMaxAttempts = 3
	DefaultGenRetries  = 2
	DefaultExecTimeout = 120 * time.Second
)

func (l *Loop) defaults() (maxAttempts, genRetries int, timeout time.Duration, logger *zap.Logger) {
	maxAttempts = l.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	// GenRetries zero means default; negative disables re-asks.
	genRetries = l.GenRetries
	if genRetries == 0 {
		genRetries = DefaultGenRetries
	} else if genRetries < 0 {
		genRetries = 0
	}
	timeout = l.ExecTimeout
	if timeout <= 0 {
		timeout = DefaultExecTimeout
	}
	logger = l.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return
}

// Run drives one request to a terminal report. ctx cancellation tears down
// any in-flight sandbox run and aborts the request.
func (l *Loop) Run(ctx context.Context, req Request) *Report {
	maxAttempts, genRetries, timeout, logger := l.defaults()
	logger = logger.With(zap.String("request_id", req.ID))

	schemas, err := l.Registry.Schemas(req.DatasetNames)
	if err != nil {
		return &Report{State: StateAborted, Reason: ReasonInfrastructure, Err: err}
	}
	// One isolated copy per request; executions never touch the
	// registry's canonical data.
	data, err := l.Registry.Snapshot(req.DatasetNames)
	if err != nil {
		return &Report{State: StateAborted, Reason: ReasonInfrastructure, Err: err}
	}

	var history History
	var prev *Attempt

	for seq := 1; seq <= maxAttempts; seq++ {
		// Building
		prompt := l.Builder.Build(req, schemas, prev)
		logger.Debug("attempt started", zap.Int("attempt", seq), zap.String("state", string(StateGenerating)))

		// Generating
		cand, err := l.generateWithRetries(ctx, prompt, genRetries, logger)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return &Report{State: StateAborted, Reason: ReasonCanceled, History: history, Err: err}
			}
			return &Report{State: StateAborted, Reason: ReasonInfrastructure, History: history, Err: err}
		}

		attempt := Attempt{Seq: seq, Prompt: prompt, Candidate: cand, Code: cand.Code}

		// A generator that declares the request unsatisfiable before
		// producing runnable code skips execution.
		if cand.Assessment.Unsatisfiable {
			attempt.Outcome = OutcomeUnsatisfiable
			history = append(history, attempt)
			logger.Info("request judged unsatisfiable by generator", zap.Int("attempt", seq))
			return &Report{State: StateAborted, Reason: ReasonUnsatisfiable, History: history}
		}

		// Executing
		res, err := l.Executor.Execute(ctx, cand.Code, data, seq, timeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return &Report{State: StateAborted, Reason: ReasonCanceled, History: history, Err: err}
			}
			history = append(history, attempt)
			return &Report{State: StateAborted, Reason: ReasonInfrastructure, History: history, Err: err}
		}
		attempt.Result = res

		// Classifying
		attempt.Outcome = classify(cand, res, prev)
		history = append(history, attempt)
		logger.Info("attempt classified",
			zap.Int("attempt", seq),
			zap.String("outcome", attempt.Outcome.String()),
			zap.Bool("timed_out", res.TimedOut),
			zap.Duration("exec_time", res.Duration))

		switch attempt.Outcome {
		case OutcomeSuccess:
			return &Report{
				State:     StateAccepted,
				Code:      cand.Code,
				Result:    res,
				Artifacts: res.Artifacts,
				History:   history,
			}
		case OutcomeUnsatisfiable:
			return &Report{State: StateAborted, Reason: ReasonUnsatisfiable, History: history}
		case OutcomeRecoverableFailure:
			prev = &history[len(history)-1]
		}
	}

	return &Report{State: StateAborted, Reason: ReasonBudgetExhausted, History: history}
}

// generateWithRetries re-asks the model after transient call failures up to
// retries extra times, then gives up.
func (l *Loop) generateWithRetries(ctx context.Context, p Prompt, retries int, logger *zap.Logger) (Candidate, error) {
	var lastErr error
	for try := 0; try <= retries; try++ {
		if err := ctx.Err(); err != nil {
			return Candidate{}, err
		}
		cand, err := l.Generator.Generate(ctx, p)
		if err == nil {
			return cand, nil
		}
		lastErr = err
		logger.Warn("generation failed", zap.Int("try", try+1), zap.Error(err))
	}
	return Candidate{}, fmt.Errorf("code generation failed after %d tries: %w", retries+1, lastErr)
}
