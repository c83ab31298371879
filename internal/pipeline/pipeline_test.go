// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"testing"

	"github.com/pdiddy/ground-extract/pkg/types"
)

type stubArtifact struct {
	rawOutput bool
}

func (a stubArtifact) ToProviderConfig() map[string]any { return map[string]any{"few_shot_count": 0} }
func (a stubArtifact) RequiresRawOutput() bool          { return a.rawOutput }

type stubSchemaAdapter struct {
	rawOutput bool
	err       error
}

func (s stubSchemaAdapter) FromExamples(_ []types.ExampleRecord) (types.SchemaArtifact, error) {
	if s.err != nil {
		return nil, s.err
	}
	return stubArtifact{rawOutput: s.rawOutput}, nil
}

type stubInference struct {
	calls  *int
	output string
}

func (s stubInference) Infer(_ context.Context, prompts []string, _ types.InferenceOptions) ([]string, error) {
	if s.calls != nil {
		*s.calls++
	}
	outs := make([]string, len(prompts))
	for i := range outs {
		outs[i] = s.output
	}
	return outs, nil
}

type stubCache struct {
	store map[string]string
}

func newStubCache() *stubCache { return &stubCache{store: map[string]string{}} }

func (c *stubCache) key(documentID string, chunkIndex, pass int, prompt string) string {
	return documentID + "\x00" + prompt
}

func (c *stubCache) Get(_ context.Context, documentID string, chunkIndex, pass int, prompt string) (string, bool, error) {
	v, ok := c.store[c.key(documentID, chunkIndex, pass, prompt)]
	return v, ok, nil
}

func (c *stubCache) Put(_ context.Context, documentID string, chunkIndex, pass int, prompt, output string) error {
	c.store[c.key(documentID, chunkIndex, pass, prompt)] = output
	return nil
}

func TestPipeline_Run_HappyPath(t *testing.T) {
	doc := types.Document{ID: "d1", Text: "Patient takes aspirin 500mg daily."}
	p := New(stubInference{output: `{"extractions":[{"medication":"aspirin 500mg"}]}`}, stubSchemaAdapter{rawOutput: true}, types.NewDefaultPipelineConfig(), "Extract medications.")

	out, err := p.Run(context.Background(), doc, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(out.Extractions) != 1 || out.Extractions[0].Class != "medication" {
		t.Fatalf("unexpected extractions: %+v", out.Extractions)
	}
}

func TestPipeline_Run_RejectsInvalidConfig(t *testing.T) {
	cfg := types.NewDefaultPipelineConfig()
	cfg.MaxWorkers = 0
	p := New(stubInference{}, stubSchemaAdapter{}, cfg, "Extract.")

	_, err := p.Run(context.Background(), types.Document{ID: "d1", Text: "x"}, nil)
	if err == nil {
		t.Fatalf("expected an error for max_workers=0")
	}
}

func TestPipeline_Run_RejectsEmptyDocument(t *testing.T) {
	p := New(stubInference{}, stubSchemaAdapter{}, types.NewDefaultPipelineConfig(), "Extract.")

	_, err := p.Run(context.Background(), types.Document{ID: "d1", Text: ""}, nil)
	if err == nil {
		t.Fatalf("expected an error for an empty document")
	}
}

func TestPipeline_Run_AbortsOnFailedValidationAtErrorLevel(t *testing.T) {
	cfg := types.NewDefaultPipelineConfig()
	cfg.ValidationLevel = types.ValidationError
	p := New(stubInference{output: `{"extractions":[]}`}, stubSchemaAdapter{}, cfg, "Extract.")

	examples := []types.ExampleRecord{
		{Text: "Hello world.", Extractions: []types.Extraction{{Class: "entity", Text: "completely unrelated phrase"}}},
	}

	_, err := p.Run(context.Background(), types.Document{ID: "d1", Text: "Patient takes aspirin."}, examples)
	if err == nil {
		t.Fatalf("expected an AlignmentReportError to abort the run")
	}
}

func TestPipeline_Run_WarningLevelDoesNotAbort(t *testing.T) {
	cfg := types.NewDefaultPipelineConfig()
	cfg.ValidationLevel = types.ValidationWarning
	p := New(stubInference{output: `{"extractions":[{"medication":"aspirin"}]}`}, stubSchemaAdapter{}, cfg, "Extract.")

	examples := []types.ExampleRecord{
		{Text: "Hello world.", Extractions: []types.Extraction{{Class: "entity", Text: "completely unrelated phrase"}}},
	}

	_, err := p.Run(context.Background(), types.Document{ID: "d1", Text: "Patient takes aspirin."}, examples)
	if err != nil {
		t.Fatalf("WARNING level should not abort the run: %v", err)
	}
}

func TestPipeline_Run_CacheAvoidsRepeatedInferCalls(t *testing.T) {
	calls := 0
	doc := types.Document{ID: "d1", Text: "Patient takes aspirin 500mg daily."}
	p := New(stubInference{calls: &calls, output: `{"extractions":[{"medication":"aspirin 500mg"}]}`}, stubSchemaAdapter{rawOutput: true}, types.NewDefaultPipelineConfig(), "Extract medications.")
	p.Cache = newStubCache()

	if _, err := p.Run(context.Background(), doc, nil); err != nil {
		t.Fatalf("Run (first): %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 Infer call on first run, got %d", calls)
	}

	if _, err := p.Run(context.Background(), doc, nil); err != nil {
		t.Fatalf("Run (second): %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected the second run to be served entirely from cache, got %d total calls", calls)
	}
}

func TestPipeline_Run_SchemaErrorPropagates(t *testing.T) {
	p := New(stubInference{}, stubSchemaAdapter{err: context.DeadlineExceeded}, types.NewDefaultPipelineConfig(), "Extract.")

	_, err := p.Run(context.Background(), types.Document{ID: "d1", Text: "Patient takes aspirin."}, nil)
	if !types.IsFatal(err) {
		t.Fatalf("expected a fatal SchemaError, got %v", err)
	}
}
