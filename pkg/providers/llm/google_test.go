package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGoogleLLM_StreamEmitsPartsInOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.RawQuery, "key=test-key") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"hello \"}]}}]}\n\n")
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"from google\"}]}}]}\n\n")
	}))
	defer server.Close()

	l := &GoogleLLM{apiKey: "test-key", url: server.URL, model: "gemini"}

	chunks, errs := l.Stream(context.Background(), "", nil, "hi")

	var got strings.Builder
	for c := range chunks {
		got.WriteString(c.Text)
	}
	if err := <-errs; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.String() != "hello from google" {
		t.Errorf("got %q", got.String())
	}
	if l.Name() != "google-llm" {
		t.Errorf("expected google-llm, got %s", l.Name())
	}
}
