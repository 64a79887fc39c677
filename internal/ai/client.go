// Package ai talks to an OpenAI-compatible chat completions endpoint and
// frames blood test interpretation requests.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultHTTPTimeout bounds a call when NewClient is given no http.Client.
const DefaultHTTPTimeout = 2 * time.Minute

// DefaultTemperature keeps interpretations close to deterministic.
const DefaultTemperature = 0.2

const maxErrorBody = 512

var (
	// ErrNoModel is returned when the client was built without a model name.
	ErrNoModel = errors.New("ai: model name is required")
	// ErrEmptyResponse is returned when the provider answers without content.
	ErrEmptyResponse = errors.New("ai: empty response from analysis provider")
)

// APIError is a non-2xx answer from the provider.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("ai: provider returned %d", e.StatusCode)
	}
	return fmt.Sprintf("ai: provider returned %d: %s", e.StatusCode, e.Message)
}

// Client calls any OpenAI-compatible /chat/completions endpoint.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	httpClient  *http.Client
}

// NewClient builds a Client. baseURL should include the /v1 prefix, e.g.
// "https://api.openai.com/v1". apiKey may be empty for local gateways.
// A nil hc gets a client with DefaultHTTPTimeout; ctx still bounds each call.
func NewClient(baseURL, apiKey, model string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{
		baseURL:     strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:      strings.TrimSpace(apiKey),
		model:       strings.TrimSpace(model),
		temperature: DefaultTemperature,
		httpClient:  hc,
	}
}

// Complete sends one system+user exchange and returns the assistant text.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if c.model == "" {
		return "", ErrNoModel
	}
	req, err := c.newRequest(ctx, systemPrompt, userPrompt)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ai: call %s: %w", c.model, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return "", apiError(resp)
	}

	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("ai: decode completion: %w", err)
	}
	for _, ch := range out.Choices {
		if text := strings.TrimSpace(ch.Message.Content); text != "" {
			return text, nil
		}
	}
	return "", ErrEmptyResponse
}

func (c *Client) newRequest(ctx context.Context, systemPrompt, userPrompt string) (*http.Request, error) {
	payload := completionRequest{Model: c.model, Temperature: c.temperature}
	if strings.TrimSpace(systemPrompt) != "" {
		payload.Messages = append(payload.Messages, chatMessage{Role: "system", Content: systemPrompt})
	}
	payload.Messages = append(payload.Messages, chatMessage{Role: "user", Content: userPrompt})

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

// apiError prefers the provider's error message and falls back to a
// truncated raw body.
func apiError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	e := &APIError{StatusCode: resp.StatusCode}

	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(raw, &parsed) == nil && parsed.Error.Message != "" {
		e.Message = parsed.Error.Message
		return e
	}
	msg := strings.TrimSpace(string(raw))
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody] + "..."
	}
	e.Message = msg
	return e
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type completionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}
