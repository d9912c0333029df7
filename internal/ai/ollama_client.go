package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OllamaClient is a minimal HTTP client for a local Ollama runtime. It maps
// the shared GenerateRequest/GenerateResponse surface onto /api/chat.
type OllamaClient struct {
	httpClient       *http.Client
	host             string
	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
}

// NewOllamaClient creates a client targeting the given host (e.g., http://127.0.0.1:11434).
func NewOllamaClient(host string, httpTimeout time.Duration, retryMax int, baseDelay, maxDelay time.Duration) *OllamaClient {
	if host == "" {
		host = "http://127.0.0.1:11434"
	}
	if httpTimeout <= 0 {
		httpTimeout = 60 * time.Second
	}
	if retryMax <= 0 {
		retryMax = 2
	}
	if baseDelay <= 0 {
		baseDelay = 200 * time.Millisecond
	}
	if maxDelay <= 0 {
		maxDelay = 1 * time.Second
	}
	return &OllamaClient{
		httpClient:       &http.Client{Timeout: httpTimeout},
		host:             host,
		retryMaxAttempts: retryMax,
		retryBaseDelay:   baseDelay,
		retryMaxDelay:    maxDelay,
	}
}

// Structures aligned with Ollama /api/chat (non-streaming).
type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Format   string              `json:"format,omitempty"`
	Options  map[string]any      `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done            bool `json:"done"`
	PromptEvalCount int  `json:"prompt_eval_count"`
	EvalCount       int  `json:"eval_count"`
}

// Generate sends a chat request to Ollama and maps the response to GenerateResponse.
func (c *OllamaClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if req.Model == "" {
		return nil, errors.New("model cannot be empty")
	}
	if len(req.Messages) == 0 {
		return nil, errors.New("messages cannot be empty")
	}

	messages := make([]ollamaChatMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = ollamaChatMessage{Role: msg.Role, Content: msg.Content}
	}

	oreq := ollamaChatRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   false,
		Options:  map[string]any{},
	}
	if req.ResponseFormat != nil && req.ResponseFormat.Type == "json_object" {
		oreq.Format = "json"
	}
	if req.Temperature > 0 {
		oreq.Options["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		oreq.Options["num_predict"] = req.MaxTokens
	}

	payload, err := json.Marshal(oreq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := c.host + "/api/chat"
	backoff := c.retryBaseDelay

	var lastErr error
	for attempt := 1; attempt <= c.retryMaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			if isRetryableNetErr(err) && attempt < c.retryMaxAttempts {
				time.Sleep(withJitter(backoff))
				backoff *= 2
				continue
			}
			return nil, &UnreachableError{Host: c.host, Err: err}
		}

		out, retry, herr := c.handleResponse(resp)
		if herr == nil {
			return out, nil
		}
		lastErr = herr
		if retry && attempt < c.retryMaxAttempts {
			time.Sleep(withJitter(backoff))
			backoff *= 2
			continue
		}
		break
	}
	return nil, lastErr
}

func (c *OllamaClient) handleResponse(resp *http.Response) (out *GenerateResponse, retry bool, err error) {
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		var raw map[string]any
		_ = json.Unmarshal(body, &raw)
		apiErr := &APIError{StatusCode: resp.StatusCode, Raw: raw}
		if msg, ok := raw["error"].(string); ok {
			apiErr.Message = msg
		}
		if msg, ok := raw["message"].(string); ok && apiErr.Message == "" {
			apiErr.Message = msg
		}
		switch {
		case resp.StatusCode == http.StatusNotFound:
			// Likely a model that was never pulled.
			return nil, false, &ModelNotFoundError{APIError: apiErr}
		case resp.StatusCode >= 500:
			return nil, true, &ServerError{APIError: apiErr}
		case resp.StatusCode == http.StatusBadRequest:
			return nil, false, &BadRequestError{APIError: apiErr}
		default:
			return nil, false, apiErr
		}
	}

	var oresp ollamaChatResponse
	if derr := json.NewDecoder(resp.Body).Decode(&oresp); derr != nil {
		return nil, false, fmt.Errorf("decode response: %w", derr)
	}
	gr := &GenerateResponse{
		Choices: []Choice{{Message: Message{Role: "assistant", Content: oresp.Message.Content}}},
		Usage: Usage{
			PromptTokens:     oresp.PromptEvalCount,
			CompletionTokens: oresp.EvalCount,
			TotalTokens:      oresp.PromptEvalCount + oresp.EvalCount,
		},
		RequestID: fmt.Sprintf("ollama_%d", time.Now().UnixNano()),
	}
	return gr, false, nil
}
