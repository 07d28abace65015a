// Package llamacpp locates the photo subject with a vision model served by llama.cpp's
// OpenAI-compatible chat endpoint.
package llamacpp

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

	"github.com/menta2k/certificate-composer/pkg/client"
	"github.com/menta2k/certificate-composer/pkg/types"
)

// DefaultURL is used when no server URL is configured.
const DefaultURL = "http://localhost:8080"

const (
	chatPath       = "/v1/chat/completions"
	requestTimeout = 2 * time.Minute
	// Bounding boxes are short JSON answers; keep them short and stable.
	maxTokens   = 256
	temperature = 0.1
)

// Client asks a llama.cpp server where the subject of a photo is.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type part struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Stream      bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// NewClient returns a client for the server at serverURL, or DefaultURL when empty.
func NewClient(serverURL string) (*Client, error) {
	if serverURL == "" {
		serverURL = DefaultURL
	}
	if !strings.HasPrefix(serverURL, "http://") && !strings.HasPrefix(serverURL, "https://") {
		return nil, fmt.Errorf("invalid llama.cpp url %q", serverURL)
	}
	return &Client{
		baseURL:    strings.TrimSuffix(serverURL, "/"),
		httpClient: &http.Client{Timeout: requestTimeout},
	}, nil
}

// AnalyzeImage sends the prompt and the base64 JPEG photo and parses the subject box
// from the answer.
func (c *Client) AnalyzeImage(ctx context.Context, model, prompt, imgB64 string) (*types.AnalysisResult, error) {
	parts := []part{{Type: "text", Text: prompt}}
	if imgB64 != "" {
		parts = append(parts, part{Type: "image_url", ImageURL: &imageURL{URL: "data:image/jpeg;base64," + imgB64}})
	}
	body, err := c.post(ctx, chatRequest{
		Model:       model,
		Messages:    []chatMessage{{Role: "user", Content: parts}},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("llama.cpp request failed: %w", err)
	}

	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse llama.cpp response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("llama.cpp returned no choices")
	}
	text := messageText(resp.Choices[0].Message.Content)
	if text == "" {
		return nil, errors.New("empty answer from llama.cpp")
	}
	return client.ParseAnalysisResult(text)
}

// messageText returns the answer whether it came as a string or as content parts.
func messageText(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case []any:
		for _, item := range v {
			if p, ok := item.(map[string]any); ok {
				if text, ok := p["text"].(string); ok && text != "" {
					return text
				}
			}
		}
	}
	return ""
}

func (c *Client) post(ctx context.Context, payload chatRequest) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chatPath, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
