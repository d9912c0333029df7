package agent

import (
	"strings"

	"github.com/yoki/data-agency/internal/sandbox"
)

// Outcome classifies one attempt. Success and Unsatisfiable are terminal;
// RecoverableFailure yields either another attempt or a terminal abort when
// the budget runs out.
type Outcome int

const (
	// OutcomeUnclassified is the zero value. classify never returns it; it
	// marks attempts the loop abandoned before classification, such as an
	// infrastructure abort mid-execution.
	OutcomeUnclassified Outcome = iota
	OutcomeSuccess
	OutcomeRecoverableFailure
	OutcomeUnsatisfiable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRecoverableFailure:
		return "recoverable-failure"
	case OutcomeUnsatisfiable:
		return "unsatisfiable"
	default:
		return "unclassified"
	}
}

// classify decides the outcome of the attempt that produced cand and res.
// prev is the immediately preceding attempt, nil on the first.
//
// Success requires both the sandbox reporting a clean run and the generator
// claiming the requirements are met. The generator saying "unsatisfiable" is
// terminal regardless of execution. A failure whose signature matches the
// previous attempt's failure is judged unsatisfiable: seeing the same error
// did not change the model's behavior, so another retry will not either.
func classify(cand Candidate, res *sandbox.ExecutionResult, prev *Attempt) Outcome {
	if cand.Assessment.Unsatisfiable {
		return OutcomeUnsatisfiable
	}
	if res.Success() && cand.Assessment.MeetsRequirements {
		return OutcomeSuccess
	}
	if prev != nil {
		if sameFailure(res, prev.Result) {
			return OutcomeUnsatisfiable
		}
		if sameUnmetReport(cand, res, prev) {
			return OutcomeUnsatisfiable
		}
	}
	return OutcomeRecoverableFailure
}

// sameUnmetReport detects the clean-run variant of a repeated failure: the
// code executed twice without raising, and the generator gave the same
// reason both times for why requirements are unmet (typically a missing
// column it keeps rediscovering).
func sameUnmetReport(cand Candidate, res *sandbox.ExecutionResult, prev *Attempt) bool {
	if !res.Success() || prev.Result == nil || !prev.Result.Success() {
		return false
	}
	if cand.Assessment.MeetsRequirements || prev.Candidate.Assessment.MeetsRequirements {
		return false
	}
	if strings.TrimSpace(cand.Assessment.Notes) == "" {
		return false
	}
	return normalizeMessage(cand.Assessment.Notes) == normalizeMessage(prev.Candidate.Assessment.Notes)
}

// sameFailure reports whether two execution failures are semantically
// equivalent. Equivalence is structural: same error kind and same offending
// identifier. When no identifier was extracted, messages are compared after
// normalizing volatile tokens, since line numbers and addresses shift between
// otherwise identical failures.
func sameFailure(a, b *sandbox.ExecutionResult) bool {
	if a == nil || b == nil {
		return false
	}
	if a.TimedOut || b.TimedOut {
		// Timeouts carry no signature to compare; a slow program and a
		// hung one look identical.
		return false
	}
	if a.Err == nil || b.Err == nil {
		return false
	}
	if a.Err.Kind != b.Err.Kind {
		return false
	}
	if a.Err.Identifier != "" || b.Err.Identifier != "" {
		return a.Err.Identifier == b.Err.Identifier
	}
	return normalizeMessage(a.Err.Message) == normalizeMessage(b.Err.Message)
}

// normalizeMessage strips digits so "line 12" and "line 17", or two heap
// addresses, compare equal.
func normalizeMessage(s string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if r >= '0' && r <= '9' {
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
