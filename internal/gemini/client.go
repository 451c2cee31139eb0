// Package gemini implements the Reasoner capability on the Google GenAI
// API, plus the bounded retry wrapper used for every call against it.
package gemini

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"
)

// Client is a thin Reasoner implementation over the Gemini API.
type Client struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewClient creates a Gemini-backed reasoner.
func NewClient(ctx context.Context, apiKey, model string, timeout time.Duration) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &Client{
		client:  client,
		model:   model,
		timeout: timeout,
	}, nil
}

// Generate sends a single prompt and returns the response text.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0.2),
	})
	if err != nil {
		return "", fmt.Errorf("gemini generate failed: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini returned empty response")
	}
	return text, nil
}
