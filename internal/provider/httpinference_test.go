// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pdiddy/ground-extract/internal/httpretry"
	"github.com/pdiddy/ground-extract/pkg/types"
)

func TestHTTPInference_Infer_Success(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.Model != "test-model" {
			t.Fatalf("expected model test-model, got %q", req.Model)
		}
		resp := chatResponse{Content: []chatContentBlock{{Type: "text", Text: `{"extractions":[]}`}}}
		json.NewEncoder(w).Encode(resp)
	}))
	defer ts.Close()

	h := &HTTPInference{BaseURL: ts.URL, APIKey: "key", Model: "test-model", Client: ts.Client()}
	outs, err := h.Infer(context.Background(), []string{"extract this"}, types.InferenceOptions{})
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if len(outs) != 1 || outs[0] != `{"extractions":[]}` {
		t.Fatalf("unexpected output: %+v", outs)
	}
}

func TestHTTPInference_Infer_PreservesOrderAcrossMultiplePrompts(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		echo := req.Messages[0].Content
		json.NewEncoder(w).Encode(chatResponse{Content: []chatContentBlock{{Type: "text", Text: echo}}})
	}))
	defer ts.Close()

	h := &HTTPInference{BaseURL: ts.URL, APIKey: "key", Model: "m", Client: ts.Client()}
	outs, err := h.Infer(context.Background(), []string{"one", "two", "three"}, types.InferenceOptions{})
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if outs[0] != "one" || outs[1] != "two" || outs[2] != "three" {
		t.Fatalf("expected order-preserving outputs, got %+v", outs)
	}
}

func TestHTTPInference_Infer_AuthErrorIsConfigFatal(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	h := &HTTPInference{BaseURL: ts.URL, APIKey: "bad", Model: "m", Client: ts.Client()}
	_, err := h.Infer(context.Background(), []string{"x"}, types.InferenceOptions{})
	if err == nil || !types.IsFatal(err) {
		t.Fatalf("expected a fatal InferenceConfigError, got %v", err)
	}
}

func TestHTTPInference_Infer_ServerErrorIsRetriable(t *testing.T) {
	old := httpretry.RetryBaseDelay
	httpretry.RetryBaseDelay = 0
	defer func() { httpretry.RetryBaseDelay = old }()

	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(chatResponse{Content: []chatContentBlock{{Type: "text", Text: "ok"}}})
	}))
	defer ts.Close()

	h := &HTTPInference{BaseURL: ts.URL, APIKey: "key", Model: "m", Client: ts.Client()}
	outs, err := h.Infer(context.Background(), []string{"x"}, types.InferenceOptions{})
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if outs[0] != "ok" {
		t.Fatalf("expected eventual success, got %+v", outs)
	}
}

func TestStaticSchemaAdapter_FromExamples(t *testing.T) {
	var adapter StaticSchemaAdapter
	examples := []types.ExampleRecord{
		{Text: "Patient takes aspirin.", Extractions: []types.Extraction{{Class: "medication", Text: "aspirin"}}},
	}

	artifact, err := adapter.FromExamples(examples)
	if err != nil {
		t.Fatalf("FromExamples: %v", err)
	}
	if !artifact.RequiresRawOutput() {
		t.Fatalf("expected StaticSchemaAdapter to require raw output")
	}
	cfg := artifact.ToProviderConfig()
	if cfg["few_shot_count"] != 1 {
		t.Fatalf("expected few_shot_count=1, got %+v", cfg["few_shot_count"])
	}
	if _, ok := cfg["few_shot_examples"].(string); !ok {
		t.Fatalf("expected few_shot_examples to be a JSON string, got %+v", cfg["few_shot_examples"])
	}
}
