// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/http2"

	"lexredact/internal/resilience"
	"lexredact/internal/security"
)

const maxResponseBytes = 4 * 1024 * 1024

// Client calls an OpenAI-compatible chat completions endpoint.
type Client struct {
	baseURL string
	model   string
	apiKey  *security.SecureString
	http    *http.Client
}

// NewClient creates a client. A nil httpClient gets one with the given timeout.
func NewClient(baseURL, model string, apiKey *security.SecureString, timeout time.Duration, httpClient *http.Client) *Client {
	if httpClient == nil {
		if timeout <= 0 {
			timeout = 20 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout, Transport: newTransport()}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		apiKey:  apiKey,
		http:    httpClient,
	}
}

// newTransport enables HTTP/2 with health pings on idle connections
func newTransport() http.RoundTripper {
	t1 := http.DefaultTransport.(*http.Transport).Clone()
	t1.MaxIdleConnsPerHost = 16
	t2, err := http2.ConfigureTransports(t1)
	if err != nil {
		return t1
	}
	t2.ReadIdleTimeout = 30 * time.Second
	t2.PingTimeout = 10 * time.Second
	return t1
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete sends one system+user exchange and returns the assistant content.
// Non-2xx responses are returned as *resilience.StatusError.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if !c.apiKey.IsEmpty() {
		req.Header.Set("Authorization", "Bearer "+c.apiKey.Value())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("call chat endpoint: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}
	if len(respBody) > maxResponseBytes {
		return "", resilience.NewPermanentError(fmt.Sprintf("chat response exceeded limit (%d bytes)", maxResponseBytes), nil)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &resilience.StatusError{
			StatusCode: resp.StatusCode,
			RetryAfter: resilience.ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
		var errBody errorResponse
		if json.Unmarshal(respBody, &errBody) == nil && errBody.Error.Message != "" {
			statusErr.Body = truncate(errBody.Error.Message, 200)
		}
		return "", statusErr
	}

	var out chatResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", resilience.NewPermanentError("malformed chat response", err)
	}
	if len(out.Choices) == 0 {
		return "", resilience.NewPermanentError("chat response has no choices", nil)
	}
	return out.Choices[0].Message.Content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && s[n]&0xC0 == 0x80 {
		n--
	}
	return s[:n]
}
