package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOllamaEngine_ChatMapsOptions(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		json.NewDecoder(r.Body).Decode(&body)
		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"role": "assistant", "content": "hello from ollama"},
			"done":    true,
		})
	}))
	defer srv.Close()

	e := NewOllamaEngine(srv.URL)
	result, err := e.Chat(context.Background(), "llama3.1", []Message{
		{Role: RoleUser, Content: "hi"},
	}, ChatOptions{JSON: true, Temperature: Temperature(0)})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if result != "hello from ollama" {
		t.Errorf("got %q, want %q", result, "hello from ollama")
	}
	if body["format"] != "json" {
		t.Errorf("format = %v, want json", body["format"])
	}
}

func TestOllamaEngine_SchemaWinsOverJSONFlag(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		json.NewEncoder(w).Encode(map[string]any{"message": map[string]string{"content": "{}"}})
	}))
	defer srv.Close()

	schema := &Schema{Type: "object", Properties: map[string]SchemaProperty{"role": {Type: "string"}}}
	if _, err := NewOllamaEngine(srv.URL).Chat(context.Background(), "m", nil, ChatOptions{JSON: true, Schema: schema}); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	format, ok := body["format"].(map[string]any)
	if !ok || format["type"] != "object" {
		t.Errorf("format = %v, want schema object", body["format"])
	}
}

func TestOllamaEngine_ChatStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		enc := json.NewEncoder(w)
		enc.Encode(map[string]any{"message": map[string]string{"content": "a"}})
		enc.Encode(map[string]any{"message": map[string]string{"content": "b"}, "done": true})
	}))
	defer srv.Close()

	var sb strings.Builder
	err := NewOllamaEngine(srv.URL).ChatStream(context.Background(), "m", nil, ChatOptions{}, func(s string) error {
		sb.WriteString(s)
		return nil
	})
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}
	if sb.String() != "ab" {
		t.Errorf("streamed %q, want ab", sb.String())
	}
}

func TestOllamaEngine_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float32{{0.1, 0.2, 0.3}}})
	}))
	defer srv.Close()

	vec, err := NewOllamaEngine(srv.URL).Embed(context.Background(), "nomic-embed-text", "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("got %d floats, want 3", len(vec))
	}
}

func TestOllamaEngine_PullModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		enc := json.NewEncoder(w)
		enc.Encode(map[string]any{"status": "downloading", "total": 1000, "completed": 500})
		enc.Encode(map[string]any{"status": "success"})
	}))
	defer srv.Close()

	var progress []PullProgress
	err := NewOllamaEngine(srv.URL).PullModel(context.Background(), "llama3.1", func(p PullProgress) {
		progress = append(progress, p)
	})
	if err != nil {
		t.Fatalf("PullModel: %v", err)
	}
	if len(progress) != 2 || progress[0].Completed != 500 {
		t.Errorf("progress = %+v", progress)
	}
}
