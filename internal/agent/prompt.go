package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/yoki/data-agency/internal/dataset"
	"github.com/yoki/data-agency/internal/utils"
)

// feedbackTokenBudget bounds each captured stream carried into a retry
// prompt, keeping prompt growth constant per attempt.
const feedbackTokenBudget = 1024

// Prompt is the frozen pair of messages sent to the code generator for one
// attempt. It is recorded on the Attempt so aborted runs can be inspected.
type Prompt struct {
	System string
	User   string
}

const generatorSystemPrompt = `You are an expert-level Python data analysis agent. Your purpose is to write, debug, and refine Python code to answer user requests using the provided datasets.

Core directives:
1. Accuracy: your code's output (stdout) must directly and correctly satisfy the user's request.
2. Robustness: write defensive code that anticipates empty dataframes, missing values, and wrong dtypes.
3. Safety: you MUST NOT access files outside the working directory, install packages, or use the network. Use only pandas, numpy, matplotlib and seaborn. Each dataset is already loaded as a pandas DataFrame with the given variable name. Save any figures to the current working directory.

When you are given an error from a previous attempt, follow this protocol:
1. Identify the specific technical error.
2. Fix the flaw.
3. Return the complete corrected program, not a patch.

Respond with a single JSON object and nothing else:
{"code": "<complete python program>", "meets_requirements": <bool>, "unsatisfiable": <bool>, "notes": "<one or two sentences>"}

Set "unsatisfiable" to true only when the request cannot be fulfilled with the available datasets (for example a required column does not exist), and explain why in "notes".`

// PromptBuilder assembles generator prompts from the request, the dataset
// schemas, and at most the immediately preceding attempt. Carrying only the
// last failure keeps prompt size constant across retries.
type PromptBuilder struct {
	// Now is substituted in tests; date context helps requests like
	// "sales in the last 30 days".
	Now func() time.Time
}

// Build produces the prompt for the next attempt. prev is nil on the first
// attempt.
func (b *PromptBuilder) Build(req Request, schemas []dataset.SchemaSummary, prev *Attempt) Prompt {
	now := time.Now
	if b != nil && b.Now != nil {
		now = b.Now
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Today is %s.\n\n", now().Format("2006-01-02"))

	if prev == nil {
		fmt.Fprintf(&sb, "User request: %q\n\n", req.Text)
		writeSchemas(&sb, schemas)
		sb.WriteString("\nGenerate the Python code to fulfill the request.\n")
		return Prompt{System: generatorSystemPrompt, User: sb.String()}
	}

	sb.WriteString("Your previous code attempt failed. Analyze the failure and generate a corrected version.\n\n")
	fmt.Fprintf(&sb, "User request: %q\n\n", req.Text)
	sb.WriteString("Your previous code:\n```python\n")
	sb.WriteString(prev.Code)
	sb.WriteString("\n```\n\n")
	writeFailure(&sb, prev)
	writeSchemas(&sb, schemas)
	sb.WriteString("\nFollow your debugging protocol and return the corrected, complete program.\n")
	return Prompt{System: generatorSystemPrompt, User: sb.String()}
}

func writeSchemas(sb *strings.Builder, schemas []dataset.SchemaSummary) {
	sb.WriteString("Available data:\n")
	if len(schemas) == 0 {
		sb.WriteString("No datasets are loaded.\n")
		return
	}
	for _, s := range schemas {
		sb.WriteString(s.Markdown())
		sb.WriteString("\n")
	}
}

func writeFailure(sb *strings.Builder, prev *Attempt) {
	res := prev.Result
	if res == nil {
		return
	}
	switch {
	case res.TimedOut:
		sb.WriteString("The code exceeded the execution time limit and was terminated. Produce a faster version: avoid row-by-row loops, operate on whole columns, and sample or aggregate before expensive operations.\n\n")
	case res.Err != nil:
		fmt.Fprintf(sb, "Execution failed with %s.\n", res.Err.Error())
		if res.Err.Traceback != "" {
			sb.WriteString("Traceback:\n```\n")
			sb.WriteString(res.Err.Traceback)
			sb.WriteString("\n```\n")
		}
		sb.WriteString("\n")
	case !prev.Candidate.Assessment.MeetsRequirements:
		fmt.Fprintf(sb, "The code ran without errors but you reported the requirements were not met: %s\n\n", prev.Candidate.Assessment.Notes)
	}
	if out := strings.TrimSpace(res.Stdout); out != "" {
		sb.WriteString("Stdout:\n```\n")
		sb.WriteString(utils.TruncateToTokenLimit(out, feedbackTokenBudget))
		sb.WriteString("\n```\n\n")
	}
	if errOut := strings.TrimSpace(res.Stderr); errOut != "" && res.Err == nil && !res.TimedOut {
		sb.WriteString("Stderr:\n```\n")
		sb.WriteString(utils.TruncateToTokenLimit(errOut, feedbackTokenBudget))
		sb.WriteString("\n```\n\n")
	}
}
