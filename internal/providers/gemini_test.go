package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// tinyPNGB64 is a 1x1 transparent PNG.
const tinyPNGB64 = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

func imageResponseBody(data string) string {
	resp := geminiResponse{
		Candidates: []geminiCandidate{{
			Content: geminiContentResponse{Parts: []geminiPartResponse{
				{Text: "here is your image"},
				{InlineData: &inlineDataResp{MimeType: "image/png", Data: data}},
			}},
		}},
	}
	raw, _ := json.Marshal(resp)
	return string(raw)
}

func textResponseBody(text string) string {
	resp := geminiResponse{
		Candidates: []geminiCandidate{{
			Content: geminiContentResponse{Parts: []geminiPartResponse{{Text: text}}},
		}},
	}
	raw, _ := json.Marshal(resp)
	return string(raw)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*GeminiClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewGeminiClient(testLogger(), GeminiConfig{
		APIKey:     "test-key",
		BaseURL:    server.URL,
		HTTPClient: server.Client(),
		Retry: RetryPolicy{
			MaxAttempts: 1,
			sleep: func(context.Context, time.Duration) error {
				return nil
			},
		},
	})
	return client, server
}

func TestGeminiGenerateReturnsInlineImage(t *testing.T) {
	var gotPath, gotKey string
	var gotReq geminiRequest

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		fmt.Fprint(w, imageResponseBody(tinyPNGB64))
	})

	out, err := client.Generate(context.Background(), "a sunlit kitchen counter", GenerateOptions{AspectRatio: "1:1"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out != tinyPNGB64 {
		t.Fatalf("expected inline image data, got %q", out)
	}

	if !strings.Contains(gotPath, ":generateContent") {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotKey != "test-key" {
		t.Fatalf("expected api key header, got %q", gotKey)
	}
	if gotReq.GenerationConfig == nil || gotReq.GenerationConfig.ImageConfig == nil ||
		gotReq.GenerationConfig.ImageConfig.AspectRatio != "1:1" {
		t.Fatalf("expected aspect ratio in generation config, got %+v", gotReq.GenerationConfig)
	}
}

func TestGeminiTranslates429IntoRateLimitError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"code":429,"message":"quota exceeded","status":"RESOURCE_EXHAUSTED"},"retry_after":6}`)
	})

	_, err := client.generateContent(context.Background(), client.imageModel, geminiRequest{})
	var rle *RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("expected *RateLimitError, got %v", err)
	}
	if rle.RetryAfter != 6*time.Second {
		t.Fatalf("expected retry_after=6s, got %s", rle.RetryAfter)
	}
	if !strings.Contains(rle.Message, "quota exceeded") {
		t.Fatalf("expected provider message, got %q", rle.Message)
	}
}

func TestGeminiFallsBackToRetryAfterHeader(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "11")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, "slow down")
	})

	_, err := client.generateContent(context.Background(), client.imageModel, geminiRequest{})
	var rle *RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("expected *RateLimitError, got %v", err)
	}
	if rle.RetryAfter != 11*time.Second {
		t.Fatalf("expected header-derived 11s, got %s", rle.RetryAfter)
	}
}

func TestGeminiRetriesThrottledGeneration(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"retry_after":2}`)
			return
		}
		fmt.Fprint(w, imageResponseBody(tinyPNGB64))
	}))
	defer server.Close()

	var waits []time.Duration
	client := NewGeminiClient(testLogger(), GeminiConfig{
		APIKey:     "test-key",
		BaseURL:    server.URL,
		HTTPClient: server.Client(),
		Retry: RetryPolicy{
			MaxAttempts:     1,
			RateLimitBuffer: time.Second,
			sleep: func(_ context.Context, d time.Duration) error {
				waits = append(waits, d)
				return nil
			},
		},
	})

	out, err := client.Generate(context.Background(), "prompt", GenerateOptions{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out != tinyPNGB64 {
		t.Fatalf("expected image after retry, got %q", out)
	}
	if len(waits) != 1 || waits[0] != 3*time.Second {
		t.Fatalf("expected one 3s wait (2s retry_after + 1s buffer), got %v", waits)
	}
}

func TestGeminiIsolateProductFetchesAndForwardsImage(t *testing.T) {
	rawPNG, err := base64.StdEncoding.DecodeString(tinyPNGB64)
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/product.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(rawPNG)
	})

	var gotReq geminiRequest
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		fmt.Fprint(w, imageResponseBody(tinyPNGB64))
	})

	client, server := newTestClient(t, mux.ServeHTTP)

	out, err := client.IsolateProduct(context.Background(), server.URL+"/product.png")
	if err != nil {
		t.Fatalf("isolate: %v", err)
	}
	if out != tinyPNGB64 {
		t.Fatalf("expected cutout data, got %q", out)
	}

	if len(gotReq.Contents) != 1 || len(gotReq.Contents[0].Parts) != 2 {
		t.Fatalf("expected prompt + inline image parts, got %+v", gotReq.Contents)
	}
	inline := gotReq.Contents[0].Parts[1].InlineData
	if inline == nil || inline.Data != tinyPNGB64 {
		t.Fatal("expected fetched bytes forwarded as inline data")
	}
	if !strings.Contains(strings.ToLower(gotReq.Contents[0].Parts[0].Text), "transparent") {
		t.Fatalf("expected isolation prompt to demand transparency, got %q", gotReq.Contents[0].Parts[0].Text)
	}
}

func TestGeminiIsolateProductRejectsMarkupBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/product.png", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>404 masquerading as 200</body></html>")
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		t.Error("provider must not be called for a bad fetch")
	})

	client, server := newTestClient(t, mux.ServeHTTP)

	_, err := client.IsolateProduct(context.Background(), server.URL+"/product.png")
	if err == nil || !strings.Contains(err.Error(), "markup") {
		t.Fatalf("expected markup detection error, got %v", err)
	}
}

func TestGeminiPlanSceneReturnsTrimmedDescription(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, textResponseBody("  A marble countertop at golden hour.\n"))
	})

	desc, err := client.PlanScene(context.Background(), SceneBrief{ProductName: "sparkling water"})
	if err != nil {
		t.Fatalf("plan scene: %v", err)
	}
	if desc != "A marble countertop at golden hour." {
		t.Fatalf("expected trimmed description, got %q", desc)
	}
}

func TestGeminiSurfacesAPIErrors(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"code":400,"message":"invalid argument","status":"INVALID_ARGUMENT"}}`)
	})

	_, err := client.Generate(context.Background(), "prompt", GenerateOptions{})
	if err == nil || !strings.Contains(err.Error(), "status=400") {
		t.Fatalf("expected status error, got %v", err)
	}
}
