package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/yoki/data-agency/internal/ai"
)

// SelfAssessment is the generator's own claim about its code. It is an input
// to classification, never authoritative for Success on its own.
type SelfAssessment struct {
	MeetsRequirements bool   `json:"meets_requirements"`
	Unsatisfiable     bool   `json:"unsatisfiable"`
	Notes             string `json:"notes"`
}

// Candidate is one generated program plus its self-assessment.
type Candidate struct {
	Code       string `json:"code"`
	Assessment SelfAssessment
}

// Generator produces a code candidate for a prompt. Implementations: the
// model-backed LLMGenerator and a scripted stub for tests.
type Generator interface {
	Generate(ctx context.Context, p Prompt) (Candidate, error)
}

// LLMGenerator asks a model runtime for JSON-structured candidates.
type LLMGenerator struct {
	Runtime     ai.Runtime
	Model       string
	MaxTokens   int
	Temperature float64
}

type candidatePayload struct {
	Code              string `json:"code"`
	MeetsRequirements bool   `json:"meets_requirements"`
	Unsatisfiable     bool   `json:"unsatisfiable"`
	Notes             string `json:"notes"`
}

func (g *LLMGenerator) Generate(ctx context.Context, p Prompt) (Candidate, error) {
	resp, err := g.Runtime.Generate(ctx, ai.GenerateRequest{
		Model: g.Model,
		Messages: []ai.Message{
			{Role: "system", Content: p.System},
			{Role: "user", Content: p.User},
		},
		MaxTokens:      g.MaxTokens,
		Temperature:    g.Temperature,
		ResponseFormat: &ai.ResponseFormat{Type: "json_object"},
	})
	if err != nil {
		return Candidate{}, fmt.Errorf("model call: %w", err)
	}
	cand, err := parseCandidate(resp.Content())
	if err != nil {
		return Candidate{}, err
	}
	return cand, nil
}

// parseCandidate decodes the model's JSON payload. Models occasionally wrap
// the object in a markdown fence or return a bare code fence; both are
// tolerated.
func parseCandidate(content string) (Candidate, error) {
	s := strings.TrimSpace(content)
	if s == "" {
		return Candidate{}, errors.New("empty model response")
	}
	if body, ok := stripFence(s, "json"); ok {
		s = body
	}
	var payload candidatePayload
	if err := json.Unmarshal([]byte(s), &payload); err == nil {
		if strings.TrimSpace(payload.Code) == "" && !payload.Unsatisfiable {
			return Candidate{}, errors.New("model returned no code")
		}
		return Candidate{
			Code: payload.Code,
			Assessment: SelfAssessment{
				MeetsRequirements: payload.MeetsRequirements,
				Unsatisfiable:     payload.Unsatisfiable,
				Notes:             payload.Notes,
			},
		}, nil
	}
	// Fallback: a bare fenced program with no JSON wrapper. Treat it as a
	// candidate that claims to meet requirements.
	if body, ok := stripFence(s, "python"); ok && strings.TrimSpace(body) != "" {
		return Candidate{
			Code:       body,
			Assessment: SelfAssessment{MeetsRequirements: true},
		}, nil
	}
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return Candidate{}, fmt.Errorf("unparseable model response: %q", s)
}

// stripFence unwraps ```lang ... ``` blocks. lang is matched loosely; a bare
// ``` fence also matches.
func stripFence(s, lang string) (string, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return "", false
	}
	rest := strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		tag := strings.TrimSpace(rest[:nl])
		if tag != "" && !strings.EqualFold(tag, lang) {
			return "", false
		}
		rest = rest[nl+1:]
	}
	end := strings.LastIndex(rest, "```")
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

// ScriptedGenerator replays a fixed sequence of candidates (or errors) for
// deterministic tests. Calls beyond the script repeat the last entry.
type ScriptedGenerator struct {
	Steps   []ScriptedStep
	Prompts []Prompt
	i       int
}

type ScriptedStep struct {
	Candidate Candidate
	Err       error
}

func (g *ScriptedGenerator) Generate(ctx context.Context, p Prompt) (Candidate, error) {
	if err := ctx.Err(); err != nil {
		return Candidate{}, err
	}
	g.Prompts = append(g.Prompts, p)
	if len(g.Steps) == 0 {
		return Candidate{}, errors.New("scripted generator has no steps")
	}
	step := g.Steps[min(g.i, len(g.Steps)-1)]
	g.i++
	return step.Candidate, step.Err
}
