package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"callsense/internal/jsonstop"
	"callsense/internal/vocab"
)

var streamFragments = []string{"Sure", ": ", `{"disposition"`, `: "BUSY", `, `"ptp_details": {`, `"amount": null}`, `}`, " trailing", " text"}

func TestOllamaStreamsUntilStop(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotModel, _ = body["model"].(string)
		w.Header().Set("Content-Type", "application/x-ndjson")
		enc := json.NewEncoder(w)
		for _, f := range streamFragments {
			_ = enc.Encode(map[string]any{"response": f, "done": false})
		}
		_ = enc.Encode(map[string]any{"response": "", "done": true})
	}))
	defer srv.Close()

	engine := NewOllama(srv.URL, "test-model", 0, nil)
	out, err := engine.Generate(context.Background(), Request{Prompt: "p", MaxNewTokens: 100}, jsonstop.NewController(jsonstop.BraceFlags{}))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if gotModel != "test-model" {
		t.Fatalf("expected model in request, got %q", gotModel)
	}
	want := strings.Join(streamFragments[:7], "")
	if out != want {
		t.Fatalf("expected %q, got %q", want, out)
	}
}

func TestOllamaWithEncoderObservesTokenIDs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		enc := json.NewEncoder(w)
		for _, f := range []string{"{", "a", "}", "b"} {
			_ = enc.Encode(map[string]any{"response": f})
		}
	}))
	defer srv.Close()

	v := vocab.Static{"{", "}", "a", "b"}
	flags, err := jsonstop.Classify(v)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	out, err := NewOllama(srv.URL, "m", 0, v).Generate(context.Background(), Request{Prompt: "p"}, jsonstop.NewController(flags))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out != "{a}" {
		t.Fatalf("expected {a}, got %q", out)
	}
}

func TestOllamaErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()
	if _, err := NewOllama(srv.URL, "m", 0, nil).Generate(context.Background(), Request{Prompt: "p"}, nil); err == nil {
		t.Fatalf("expected error")
	}
}

func TestOpenAIStreamsUntilStop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)
		for i, f := range streamFragments {
			chunk := map[string]any{
				"id":      "chatcmpl-1",
				"object":  "chat.completion.chunk",
				"created": 1,
				"model":   "test-model",
				"choices": []any{map[string]any{
					"index":         0,
					"delta":         map[string]any{"content": f},
					"finish_reason": nil,
				}},
			}
			b, _ := json.Marshal(chunk)
			_, _ = fmt.Fprintf(w, "data: %s\n\n", b)
			if flusher != nil && i%2 == 0 {
				flusher.Flush()
			}
		}
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	engine, err := NewOpenAI("", srv.URL+"/v1/", "test-model", 0, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	out, err := engine.Generate(context.Background(), Request{Prompt: "p", MaxNewTokens: 64}, jsonstop.NewController(jsonstop.BraceFlags{}))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	want := strings.Join(streamFragments[:7], "")
	if out != want {
		t.Fatalf("expected %q, got %q", want, out)
	}
}

func TestNewOpenAIRequiresModel(t *testing.T) {
	if _, err := NewOpenAI("k", "", "", 0, nil); err == nil {
		t.Fatalf("expected error")
	}
}
