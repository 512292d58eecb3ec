package asr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAssemblyAIEngine_Transcribe(t *testing.T) {
	var uploadURL string
	var pollCount int

	mux := http.NewServeMux()
	mux.HandleFunc("/v2/upload", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"upload_url": uploadURL})
	})
	mux.HandleFunc("/v2/transcript", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			json.NewEncoder(w).Encode(map[string]string{"id": "abc123"})
			return
		}
	})
	mux.HandleFunc("/v2/transcript/abc123", func(w http.ResponseWriter, r *http.Request) {
		pollCount++
		status := "processing"
		if pollCount > 1 {
			status = "completed"
		}
		json.NewEncoder(w).Encode(map[string]string{"status": status, "text": "assemblyai transcription"})
	})

	server := httptest.NewServer(mux)
	defer server.Close()
	uploadURL = server.URL + "/uploaded-audio"

	e := &AssemblyAIEngine{apiKey: "test-key"}
	e.uploadURLOverride = server.URL + "/v2/upload"
	e.submitURLOverride = server.URL + "/v2/transcript"
	e.pollURLOverride = server.URL + "/v2/transcript/"

	result, err := e.Transcribe(context.Background(), []float32{0.1, -0.1}, "en")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "assemblyai transcription" {
		t.Errorf("got %q", result)
	}
	if e.Name() != "assemblyai-asr" {
		t.Errorf("expected assemblyai-asr, got %s", e.Name())
	}
}

func TestAssemblyAIEngine_ErrorStatusSurfacesEngineError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/upload", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"upload_url": "x"})
	})
	mux.HandleFunc("/v2/transcript", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "bad1"})
	})
	mux.HandleFunc("/v2/transcript/bad1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": "corrupt audio"})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	e := &AssemblyAIEngine{apiKey: "k"}
	e.uploadURLOverride = server.URL + "/v2/upload"
	e.submitURLOverride = server.URL + "/v2/transcript"
	e.pollURLOverride = server.URL + "/v2/transcript/"

	_, err := e.Transcribe(context.Background(), []float32{0}, "")
	if err == nil || !strings.Contains(err.Error(), "assemblyai transcription failed") {
		t.Fatalf("expected assemblyai failure error, got %v", err)
	}
}
