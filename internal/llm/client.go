// Package llm calls an external language model to turn a question plus a
// schema description into candidate SQL. The pipeline treats the engine as an
// opaque, unreliable collaborator: every failure mode here is reported as
// ErrUnavailable so the caller can degrade to template generation.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// ErrUnavailable wraps every transport, timeout, and API failure from the
// generation engine. Callers test for it with errors.Is and fall back.
var ErrUnavailable = errors.New("generation engine unavailable")

// Client produces candidate SQL for a question given a schema description.
type Client interface {
	GenerateSQL(ctx context.Context, question, schemaContext string) (string, error)
}

// Explainer summarizes query results in plain language. Explanations are
// best-effort decoration; callers ignore failures.
type Explainer interface {
	Explain(ctx context.Context, question, sqlText string, sampleRows []map[string]any) (string, error)
}

// HTTPClient talks to an OpenAI-compatible chat completions endpoint.
type HTTPClient struct {
	baseURL     string
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	client      *http.Client
}

// NewHTTPClient creates a client for the chat completions API at baseURL
// (e.g. https://api.openai.com/v1). timeout bounds the whole round trip and
// is enforced locally, never delegated to the remote side.
func NewHTTPClient(baseURL, apiKey, model string, maxTokens int, temperature float64, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		client:      &http.Client{Timeout: timeout},
	}
}

const systemPrompt = `You are a senior data analyst.
Convert the user question into a SINGLE safe SQL SELECT query.

Rules:
- ONLY SELECT statements
- NO comments
- NO markdown
- Use ONLY the provided schema
- Return ONLY raw SQL`

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// GenerateSQL sends the question and schema to the model and returns the
// normalized SQL text. Any failure is reported as ErrUnavailable.
func (c *HTTPClient) GenerateSQL(ctx context.Context, question, schemaContext string) (string, error) {
	user := fmt.Sprintf("Schema:\n%s\n\nQuestion:\n%s", schemaContext, question)
	raw, err := c.complete(ctx, systemPrompt, user)
	if err != nil {
		return "", err
	}
	sql := NormalizeSQL(raw)
	if sql == "" {
		return "", fmt.Errorf("%w: model returned no SQL", ErrUnavailable)
	}
	return sql, nil
}

const explainPrompt = `You are a helpful data analyst. Provide a concise, plain-English explanation of the results.
Keep it under 150 words. Be specific about numbers and trends.`

// Explain asks the model to summarize what the executed query returned. At
// most five sample rows are sent.
func (c *HTTPClient) Explain(ctx context.Context, question, sqlText string, sampleRows []map[string]any) (string, error) {
	if len(sampleRows) > 5 {
		sampleRows = sampleRows[:5]
	}
	sample, err := json.Marshal(sampleRows)
	if err != nil {
		return "", fmt.Errorf("%w: marshal sample rows: %v", ErrUnavailable, err)
	}

	user := fmt.Sprintf("User question:\n%s\n\nSQL executed:\n%s\n\nSample of result rows:\n%s\n\nExplanation:",
		question, sqlText, sample)
	raw, err := c.complete(ctx, explainPrompt, user)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(raw), nil
}

func (c *HTTPClient) complete(ctx context.Context, system, user string) (string, error) {
	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}

	reqData, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("%w: marshal request: %v", ErrUnavailable, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(reqData))
	if err != nil {
		return "", fmt.Errorf("%w: create request: %v", ErrUnavailable, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("%w: API error %d: %s", ErrUnavailable, resp.StatusCode, string(body))
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("%w: empty response", ErrUnavailable)
	}
	return cr.Choices[0].Message.Content, nil
}

var (
	fenceOpen  = regexp.MustCompile("^```[a-zA-Z0-9]*\\s*")
	fenceClose = regexp.MustCompile("\\s*```\\s*$")
	sqlLabel   = regexp.MustCompile(`(?i)^SQL\s*:\s*`)
)

// NormalizeSQL strips markdown code fences, an "SQL:" label, and trailing
// semicolons from model output. Models routinely add all three despite being
// told not to.
func NormalizeSQL(output string) string {
	s := strings.TrimSpace(output)
	if strings.HasPrefix(s, "```") {
		s = fenceOpen.ReplaceAllString(s, "")
		s = fenceClose.ReplaceAllString(s, "")
	}
	s = sqlLabel.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, ";")
	return strings.TrimSpace(s)
}
