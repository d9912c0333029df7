package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"time"
)

// GeminiOpenAIBaseURL is Google's OpenAI-compatible endpoint for Gemini.
const GeminiOpenAIBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"

// OpenRouterBaseURL serves many hosted models behind one API.
const OpenRouterBaseURL = "https://openrouter.ai/api/v1"

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	httpClient       *http.Client
	apiKey           string
	baseURL          string
	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResponseFormat requests structured output (e.g. {"type":"json_object"}).
type ResponseFormat struct {
	Type string `json:"type"`
}

type GenerateRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type Choice struct {
	Message Message `json:"message"`
}

type GenerateResponse struct {
	ID        string   `json:"id"`
	Choices   []Choice `json:"choices"`
	Usage     Usage    `json:"usage"`
	RequestID string   `json:"-"`
}

// Content returns the first choice's text, or "".
func (r *GenerateResponse) Content() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// APIError represents a structured API error response.
type APIError struct {
	StatusCode int            `json:"-"`
	Code       string         `json:"code,omitempty"`
	Message    string         `json:"message,omitempty"`
	Raw        map[string]any `json:"-"`
	RequestID  string         `json:"-"`
}

func (e *APIError) Error() string {
	switch {
	case e.Message != "" && e.Code != "":
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	case e.Message != "":
		return fmt.Sprintf("api error: status=%d message=%s", e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("api error: status=%d", e.StatusCode)
	}
}

// NewGeminiClient returns a client for Gemini's OpenAI-compatible endpoint
// with default timeouts and retry strategy.
func NewGeminiClient(apiKey string) *Client {
	return NewClient(apiKey, GeminiOpenAIBaseURL, 60*time.Second, 3, 500*time.Millisecond, 4*time.Second)
}

// NewOpenRouterClient returns a client targeting OpenRouter.
func NewOpenRouterClient(apiKey string) *Client {
	return NewClient(apiKey, OpenRouterBaseURL, 60*time.Second, 3, 500*time.Millisecond, 4*time.Second)
}

// NewClient allows customizing the endpoint and retry/backoff behavior.
// Tests inject a local baseURL here.
func NewClient(apiKey, baseURL string, httpTimeout time.Duration, retryMax int, baseDelay, maxDelay time.Duration) *Client {
	if httpTimeout <= 0 {
		httpTimeout = 60 * time.Second
	}
	if retryMax <= 0 {
		retryMax = 3
	}
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	if maxDelay <= 0 {
		maxDelay = 4 * time.Second
	}
	if baseURL == "" {
		baseURL = GeminiOpenAIBaseURL
	}
	return &Client{
		httpClient:       &http.Client{Timeout: httpTimeout},
		apiKey:           apiKey,
		baseURL:          baseURL,
		retryMaxAttempts: retryMax,
		retryBaseDelay:   baseDelay,
		retryMaxDelay:    maxDelay,
	}
}

// Generate sends a chat completion request, retrying 429/5xx and transient
// network errors with capped, jittered exponential backoff.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if c.apiKey == "" {
		return nil, errors.New("API key is missing")
	}
	if req.Model == "" {
		return nil, errors.New("model cannot be empty")
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	endpoint := c.baseURL + "/chat/completions"
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
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			if isRetryableNetErr(err) && attempt < c.retryMaxAttempts {
				lastErr = err
				time.Sleep(c.capDelay(withJitter(backoff)))
				backoff *= 2
				continue
			}
			return nil, fmt.Errorf("http request: %w", err)
		}

		out, retry, herr := c.handleResponse(resp)
		if herr == nil {
			return out, nil
		}
		lastErr = herr
		if retry && attempt < c.retryMaxAttempts {
			delay := c.capDelay(withJitter(backoff))
			var rl *RateLimitError
			if errors.As(herr, &rl) && rl.RetryAfter > 0 {
				delay = rl.RetryAfter
			}
			time.Sleep(delay)
			backoff *= 2
			continue
		}
		break
	}
	return nil, lastErr
}

// handleResponse decodes one HTTP exchange. retry reports whether the error
// class is worth another attempt.
func (c *Client) handleResponse(resp *http.Response) (out *GenerateResponse, retry bool, err error) {
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var gr GenerateResponse
		if derr := json.NewDecoder(resp.Body).Decode(&gr); derr != nil {
			return nil, false, fmt.Errorf("decode response: %w", derr)
		}
		gr.RequestID = requestID(resp)
		return &gr, false, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	var raw map[string]any
	_ = json.Unmarshal(body, &raw)
	apiErr := &APIError{StatusCode: resp.StatusCode, Raw: raw, RequestID: requestID(resp)}
	if v, ok := raw["error"].(map[string]any); ok {
		apiErr.Message, _ = v["message"].(string)
		apiErr.Code, _ = v["code"].(string)
	} else {
		apiErr.Message, _ = raw["message"].(string)
		apiErr.Code, _ = raw["code"].(string)
	}

	classified := classifyAPIError(apiErr, resp)
	retryable := resp.StatusCode == http.StatusTooManyRequests ||
		(resp.StatusCode >= 500 && resp.StatusCode <= 599)
	return nil, retryable, classified
}

func (c *Client) capDelay(d time.Duration) time.Duration {
	if c.retryMaxDelay > 0 && d > c.retryMaxDelay {
		return c.retryMaxDelay
	}
	return d
}

func isRetryableNetErr(err error) bool {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	return errors.Is(err, io.EOF)
}

// parseRetryAfter interprets a Retry-After header as seconds or an HTTP date.
func parseRetryAfter(v string) (time.Duration, bool) {
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d, true
		}
	}
	return 0, false
}

// classifyAPIError maps a generic APIError to a typed error.
func classifyAPIError(apiErr *APIError, resp *http.Response) error {
	switch {
	case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
		return &AuthError{APIError: apiErr}
	case apiErr.StatusCode == http.StatusTooManyRequests:
		rl := &RateLimitError{APIError: apiErr}
		if v := resp.Header.Get("Retry-After"); v != "" {
			if d, ok := parseRetryAfter(v); ok {
				rl.RetryAfter = d
			}
		}
		return rl
	case apiErr.StatusCode == http.StatusNotFound:
		return &ModelNotFoundError{APIError: apiErr}
	case apiErr.StatusCode == http.StatusBadRequest:
		return &BadRequestError{APIError: apiErr}
	case apiErr.StatusCode >= 500 && apiErr.StatusCode <= 599:
		return &ServerError{APIError: apiErr}
	default:
		return apiErr
	}
}

func requestID(resp *http.Response) string {
	if resp == nil {
		return ""
	}
	for _, k := range []string{"X-Request-Id", "X-Request-ID", "OpenAI-Request-ID"} {
		if v := resp.Header.Get(k); v != "" {
			return v
		}
	}
	return ""
}

// withJitter applies +/- 20% jitter to a backoff duration.
func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 500 * time.Millisecond
	}
	f := 0.8 + rand.Float64()*0.4
	out := time.Duration(float64(d) * f)
	if out <= 0 {
		return d
	}
	return out
}
