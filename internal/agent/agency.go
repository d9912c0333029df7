package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handle identifies a submitted request.
type Handle string

// Phase is the coarse lifecycle of a submitted request as seen by Poll.
type Phase string

const (
	PhasePending  Phase = "pending"
	PhaseAccepted Phase = "accepted"
	PhaseAborted  Phase = "aborted"
)

// Status is a Poll snapshot. Report is nil while Pending.
type Status struct {
	Phase  Phase
	Report *Report
}

type inflight struct {
	cancel context.CancelFunc
	done   chan struct{}
	report *Report // written once before done is closed
}

// Agency runs refinement loops asynchronously behind a submit/poll surface,
// so an interactive session is not blocked while a sandbox run is in flight.
// Each request gets its own goroutine, history and dataset snapshot; the
// registry is only read.
type Agency struct {
	loop   *Loop
	logger *zap.Logger

	mu   sync.Mutex
	reqs map[Handle]*inflight
}

// NewAgency wraps a configured Loop. logger may be nil.
func NewAgency(loop *Loop, logger *zap.Logger) *Agency {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Agency{loop: loop, logger: logger, reqs: make(map[Handle]*inflight)}
}

// Submit starts processing a request and returns immediately.
func (a *Agency) Submit(text string, datasetNames []string) Handle {
	h := Handle(uuid.NewString())
	ctx, cancel := context.WithCancel(context.Background())
	fl := &inflight{cancel: cancel, done: make(chan struct{})}

	a.mu.Lock()
	a.reqs[h] = fl
	a.mu.Unlock()

	req := Request{ID: string(h), Text: text, DatasetNames: datasetNames}
	go func() {
		defer cancel()
		fl.report = a.loop.Run(ctx, req)
		close(fl.done)
	}()
	a.logger.Debug("request submitted", zap.String("request_id", string(h)))
	return h
}

// Poll reports the request's current phase without blocking.
func (a *Agency) Poll(h Handle) (Status, error) {
	a.mu.Lock()
	fl, ok := a.reqs[h]
	a.mu.Unlock()
	if !ok {
		return Status{}, fmt.Errorf("unknown request handle %q", h)
	}
	select {
	case <-fl.done:
	default:
		return Status{Phase: PhasePending}, nil
	}
	if fl.report.Accepted() {
		return Status{Phase: PhaseAccepted, Report: fl.report}, nil
	}
	return Status{Phase: PhaseAborted, Report: fl.report}, nil
}

// Wait blocks until the request concludes or ctx is done.
func (a *Agency) Wait(ctx context.Context, h Handle) (*Report, error) {
	a.mu.Lock()
	fl, ok := a.reqs[h]
	a.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown request handle %q", h)
	}
	select {
	case <-fl.done:
		return fl.report, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel interrupts an in-flight request. The loop tears down any running
// sandbox container before concluding. Canceling a finished or unknown
// request is a no-op.
func (a *Agency) Cancel(h Handle) {
	a.mu.Lock()
	fl, ok := a.reqs[h]
	a.mu.Unlock()
	if ok {
		fl.cancel()
	}
}

// Forget drops a concluded request's bookkeeping. Pending requests are kept.
func (a *Agency) Forget(h Handle) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fl, ok := a.reqs[h]
	if !ok {
		return
	}
	select {
	case <-fl.done:
		delete(a.reqs, h)
	default:
	}
}
