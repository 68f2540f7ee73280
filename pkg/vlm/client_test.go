package vlm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

var testJPEG = []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10}

func completionJSON(model, content string) string {
	return `{"model":"` + model + `","choices":[{"message":{"content":"` + content + `"}}]}`
}

func testClient(t *testing.T, url string, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{
		WithBaseURL(url),
		WithModel("llava"),
		WithRetry(0, time.Millisecond),
	}, opts...)
	c, err := NewClient(opts...)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClient_AskRequestShape(t *testing.T) {
	var captured struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content []struct {
				Type     string `json:"type"`
				Text     string `json:"text"`
				ImageURL struct {
					URL string `json:"url"`
				} `json:"image_url"`
			} `json:"content"`
		} `json:"messages"`
		MaxTokens int `json:"max_tokens"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path: got %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sekrit" {
			t.Errorf("authorization: got %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(completionJSON("llava", "a sofa")))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, WithAPIKey("sekrit"), WithMaxTokens(123))

	ans, err := c.Ask(context.Background(), "what is below the drone", testJPEG)
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if ans.Text != "a sofa" || ans.Model != "llava" {
		t.Errorf("answer: %+v", ans)
	}

	if captured.Model != "llava" || captured.MaxTokens != 123 {
		t.Errorf("payload: model=%q max_tokens=%d", captured.Model, captured.MaxTokens)
	}
	if len(captured.Messages) != 1 || len(captured.Messages[0].Content) != 2 {
		t.Fatalf("messages: %+v", captured.Messages)
	}
	content := captured.Messages[0].Content
	if content[0].Type != "text" || content[0].Text != "what is below the drone" {
		t.Errorf("text part: %+v", content[0])
	}
	if !strings.HasPrefix(content[1].ImageURL.URL, "data:image/jpeg;base64,") {
		t.Errorf("image part is not a jpeg data url: %q", content[1].ImageURL.URL)
	}
}

func TestClient_AskWithoutFrame(t *testing.T) {
	c := testClient(t, "http://127.0.0.1:1")
	if _, err := c.Ask(context.Background(), "anything", nil); !errors.Is(err, ErrNoFrame) {
		t.Errorf("got %v, want ErrNoFrame", err)
	}
}

func TestClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"message":"model not found","code":"model_not_found"}}`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	_, err := c.Ask(context.Background(), "q", testJPEG)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("got %T (%v), want *APIError", err, err)
	}
	if apiErr.StatusCode != 404 || apiErr.Code != "model_not_found" {
		t.Errorf("api error: %+v", apiErr)
	}
	if apiErr.IsRetryable() {
		t.Error("404 flagged retryable")
	}
}

func TestClient_RetriesThrottleThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"message":"slow down"}}`))
			return
		}
		w.Write([]byte(completionJSON("llava", "ok now")))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, WithRetry(2, time.Millisecond))
	ans, err := c.Ask(context.Background(), "q", testJPEG)
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if ans.Text != "ok now" {
		t.Errorf("answer: %+v", ans)
	}
	if calls.Load() != 2 {
		t.Errorf("calls: got %d, want 2", calls.Load())
	}
}

func TestClient_RetryBudgetExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, WithRetry(2, time.Millisecond))
	_, err := c.Ask(context.Background(), "q", testJPEG)

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 503 {
		t.Fatalf("got %v, want 503 APIError", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls: got %d, want 3", calls.Load())
	}
}

func TestClient_Health(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("path: got %s", r.URL.Path)
		}
		w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	if err := testClient(t, srv.URL).Health(context.Background()); err != nil {
		t.Errorf("health: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	if _, err := NewClient(WithBaseURL("")); err == nil {
		t.Error("empty base url accepted")
	}
	if _, err := NewClient(WithModel("")); err == nil {
		t.Error("empty model accepted")
	}
	if _, err := NewClient(WithTimeout(-time.Second)); err == nil {
		t.Error("negative timeout accepted")
	}
}
