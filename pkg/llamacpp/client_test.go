package llamacpp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAnalyzeImage(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"index": 0,
				"message": map[string]any{
					"role":    "assistant",
					"content": "```json\n{\"primary\":{\"label\":\"cat\",\"confidence\":0.7,\"box\":{\"x\":0.3,\"y\":0.3,\"w\":0.4,\"h\":0.4}},\"description\":\"a cat\"}\n```",
				},
			}},
		})
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL + "/")
	res, err := c.AnalyzeImage(context.Background(), "minicpm", "locate", "aGVsbG8=")
	if err != nil {
		t.Fatalf("AnalyzeImage failed: %v", err)
	}
	if res.Primary.Label != "cat" || res.Primary.Box.X != 0.3 {
		t.Errorf("unexpected result %+v", res.Primary)
	}
	if got.Model != "minicpm" || len(got.Messages) != 1 || got.MaxTokens != maxTokens || got.Stream {
		t.Fatalf("unexpected request %+v", got)
	}
	parts, ok := got.Messages[0].Content.([]any)
	if !ok || len(parts) != 2 {
		t.Fatalf("expected text and image parts, got %#v", got.Messages[0].Content)
	}
	img := parts[1].(map[string]any)["image_url"].(map[string]any)["url"].(string)
	if !strings.HasPrefix(img, "data:image/jpeg;base64,") {
		t.Errorf("unexpected image url %q", img)
	}
}

func TestAnalyzeImageServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL)
	if _, err := c.AnalyzeImage(context.Background(), "m", "p", ""); err == nil {
		t.Error("expected error for 503")
	}
}

func TestNewClient(t *testing.T) {
	c, err := NewClient("")
	if err != nil || c.baseURL != DefaultURL {
		t.Fatalf("expected default url, got %v %v", c, err)
	}
	if _, err := NewClient("localhost:8080"); err == nil {
		t.Error("expected error for a url without scheme")
	}
}

func TestMessageText(t *testing.T) {
	if got := messageText("plain"); got != "plain" {
		t.Errorf("got %q", got)
	}
	parts := []any{map[string]any{"type": "text", "text": "from parts"}}
	if got := messageText(parts); got != "from parts" {
		t.Errorf("got %q", got)
	}
	if got := messageText(42); got != "" {
		t.Errorf("got %q", got)
	}
}
