// Package llm asks an OpenAI-compatible chat endpoint to review curation
// suggestions before they are added to the catalog.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cognicore/studyindex/pkg/studyindex/curation"
)

// Client calls an OpenAI-compatible chat completion endpoint.
type Client struct {
	BaseURL string
	APIKey  string
	Model   string

	HTTPClient *http.Client
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) Chat(ctx context.Context, system, user string) (string, error) {
	if c.BaseURL == "" || c.Model == "" {
		return "", fmt.Errorf("llm: base URL and model required")
	}
	messages := []chatMessage{{Role: "system", Content: system}, {Role: "user", Content: user}}
	payload, err := c.send(ctx, messages)
	if err != nil {
		return "", err
	}
	if len(payload.Choices) == 0 {
		return "", fmt.Errorf("llm: empty response")
	}
	return payload.Choices[0].Message.Content, nil
}

func (c *Client) send(ctx context.Context, messages []chatMessage) (*chatResponse, error) {
	reqBody, err := json.Marshal(chatRequest{Model: c.Model, Messages: messages})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var payload chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("llm: decode response (status %d): %w", resp.StatusCode, err)
	}
	if payload.Error != nil {
		return nil, fmt.Errorf("llm error: %s", payload.Error.Message)
	}
	return &payload, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 15 * time.Second}
}

const reviewSystem = "You review values extracted from contract research study documents. " +
	"Reply with YES if the value is a real, correctly spelled entry of the named kind, otherwise NO."

// Reviewer approves curation suggestions by asking the model. It
// implements curation.Reviewer.
type Reviewer struct {
	Client *Client
	Logger *zap.Logger
}

// Approve reports whether the model's reply starts with "yes".
func (r *Reviewer) Approve(ctx context.Context, s curation.Suggestion) (bool, error) {
	answer, err := r.Client.Chat(ctx, reviewSystem, formatPrompt(s))
	if err != nil {
		return false, fmt.Errorf("review %s %q: %w", s.Kind, s.Value, err)
	}
	ok := strings.HasPrefix(strings.ToLower(strings.TrimSpace(answer)), "yes")
	if r.Logger != nil {
		r.Logger.Debug("suggestion reviewed",
			zap.String("kind", string(s.Kind)),
			zap.String("value", s.Value),
			zap.Bool("approved", ok))
	}
	return ok, nil
}

func formatPrompt(s curation.Suggestion) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Kind: %s\nValue: %s\nSeen %d times", kindLabel(s.Kind), s.Value, s.Occurrences)
	if len(s.Studies) > 0 {
		fmt.Fprintf(&buf, " in studies %s", strings.Join(s.Studies, ", "))
	}
	fmt.Fprintf(&buf, ".\nAnswer YES or NO.\n")
	return buf.String()
}

func kindLabel(k curation.Kind) string {
	switch k {
	case curation.KindClient:
		return "pharmaceutical client company name"
	case curation.KindPeople:
		return "person's full name"
	case curation.KindStrain:
		return "laboratory rodent strain"
	}
	return string(k)
}
