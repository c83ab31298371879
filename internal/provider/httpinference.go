// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package provider adapts the pipeline's Inference and SchemaAdapter
// capabilities to real external collaborators: an HTTP chat endpoint and a
// conservative schema advertiser. Per SPEC_FULL.md §9 ("polymorphic
// providers" — this package and any others like it live outside the core
// and the core never assumes anything about the model beyond the
// types.Inference interface).
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pdiddy/ground-extract/internal/httpretry"
	"github.com/pdiddy/ground-extract/pkg/types"
)

// HTTPInference calls a configurable chat-completion HTTP endpoint, shaped
// like the Claude Messages API (model, max_tokens, messages in; a list of
// content blocks out). BaseURL, Model, and the auth header are all
// config-driven so the same adapter serves any provider exposing this
// request/response shape. Per SPEC_FULL.md's "HTTP Inference adapter".
type HTTPInference struct {
	BaseURL    string
	APIKey     string
	Model      string
	AuthHeader string // default "x-api-key"
	Client     *http.Client
	MaxRetries int
}

type chatRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	Messages  []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Content []chatContentBlock `json:"content"`
}

type chatContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Infer sends each prompt as an independent request and returns one output
// string per prompt, in order. Per types.Inference: implementations may fan
// out internally but must preserve order — here there is no internal
// fan-out because internal/annotate already calls Infer once per chunk
// with a single-element prompt slice, but Infer still honors the contract
// for batches of any size.
func (h *HTTPInference) Infer(ctx context.Context, prompts []string, opts types.InferenceOptions) ([]string, error) {
	outs := make([]string, len(prompts))
	for i, prompt := range prompts {
		out, err := h.inferOne(ctx, prompt, opts)
		if err != nil {
			return nil, err
		}
		outs[i] = out
	}
	return outs, nil
}

func (h *HTTPInference) inferOne(ctx context.Context, prompt string, opts types.InferenceOptions) (string, error) {
	maxTokens := opts.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	reqBody := chatRequest{
		Model:     h.Model,
		MaxTokens: maxTokens,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", types.NewInferenceConfigError("marshaling inference request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.BaseURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", types.NewInferenceConfigError("creating inference request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(h.authHeader(), h.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	client := h.Client
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}

	resp, err := httpretry.DoWithRetry(ctx, client, req, h.MaxRetries)
	if err != nil {
		return "", types.NewInferenceRuntimeError("calling inference endpoint", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest {
		body, _ := io.ReadAll(resp.Body)
		return "", types.NewInferenceConfigError(fmt.Sprintf("inference endpoint returned %d: %s", resp.StatusCode, body), nil)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", types.NewInferenceRuntimeError(fmt.Sprintf("inference endpoint returned %d: %s", resp.StatusCode, body), nil)
	}

	var cResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cResp); err != nil {
		return "", types.NewInferenceRuntimeError("decoding inference response", err)
	}

	for _, block := range cResp.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}

	return "", types.NewInferenceRuntimeError("inference endpoint returned no text content", nil)
}

func (h *HTTPInference) authHeader() string {
	if h.AuthHeader != "" {
		return h.AuthHeader
	}
	return "x-api-key"
}

// DefaultTimeout is the fallback request timeout when a caller does not
// build its own http.Client. cmd/ground-extract sets this from
// PipelineConfig.RequestTimeoutSeconds instead of relying on it.
const DefaultTimeout = 60 * time.Second
