// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline wires the extraction and grounding components together
// into one entry point. Implements spec.md §4.9 (Pipeline, component C9):
// a thin coordinator with no business logic of its own.
package pipeline

import (
	"context"
	"fmt"

	"github.com/pdiddy/ground-extract/internal/align"
	"github.com/pdiddy/ground-extract/internal/annotate"
	"github.com/pdiddy/ground-extract/internal/chunk"
	"github.com/pdiddy/ground-extract/internal/promptbuild"
	"github.com/pdiddy/ground-extract/internal/validate"
	"github.com/pdiddy/ground-extract/pkg/types"
)

// Pipeline bundles the caller-supplied capabilities (Inference,
// SchemaAdapter) with the task instructions and tuning config, and wires
// them through the Chunker, Annotator, and (when enabled) PromptValidator.
type Pipeline struct {
	Infer           types.Inference
	Schema          types.SchemaAdapter
	Config          types.PipelineConfig
	TaskDescription string

	// Cache, when set, lets the Annotator skip redundant Infer calls for
	// unchanged (document, chunk, pass, prompt) combinations. Nil disables
	// caching.
	Cache annotate.ResultCache
}

// New constructs a Pipeline. cfg should already have defaults applied via
// types.NewDefaultPipelineConfig.
func New(infer types.Inference, schema types.SchemaAdapter, cfg types.PipelineConfig, taskDescription string) *Pipeline {
	return &Pipeline{Infer: infer, Schema: schema, Config: cfg, TaskDescription: taskDescription}
}

// Run validates config invariants, optionally pre-flights examples through
// the PromptValidator, chunks the document, derives provider config from
// examples via the SchemaAdapter, and runs the Annotator. Per §4.9.
func (p *Pipeline) Run(ctx context.Context, doc types.Document, examples []types.ExampleRecord) (types.AnnotatedDocument, error) {
	if err := p.Config.Validate(); err != nil {
		return types.AnnotatedDocument{}, err
	}
	if doc.Text == "" {
		return types.AnnotatedDocument{}, types.NewInvalidInputError("document text must not be empty", nil)
	}

	alignOpts := align.Options{
		FuzzyThreshold:  p.Config.FuzzyThreshold,
		LesserThreshold: p.Config.LesserThreshold,
		AcceptLesser:    p.Config.AcceptLesser,
		FuzzySlack:      p.Config.FuzzySlack,
		AttributeSuffix: p.Config.AttributeSuffix,
	}

	if p.Config.ValidationLevel != types.ValidationOff && len(examples) > 0 {
		report := validate.Validate(examples, alignOpts)
		if report.Failed(p.Config.ValidationLevel) {
			return types.AnnotatedDocument{}, types.NewAlignmentReportError(
				"one or more few-shot examples failed to align at the configured validation_level", nil)
		}
	}

	chunks, chunkWarnings, err := chunk.Split(doc, p.Config.MaxCharBuffer, 0)
	if err != nil {
		return types.AnnotatedDocument{}, err
	}

	artifact, err := p.Schema.FromExamples(examples)
	if err != nil {
		return types.AnnotatedDocument{}, types.NewSchemaError("deriving schema artifact from examples", err)
	}

	formatNote := ""
	if artifact.RequiresRawOutput() {
		formatNote = fmt.Sprintf("Respond with a single fenced JSON code block containing an object with one key %q, whose value is a list of extraction objects.", p.Config.WrapperKey)
	}
	builder := promptbuild.New(p.TaskDescription, formatNote, p.Config.WrapperKey, p.Config.ContextWindowChars)

	inferOpts := types.InferenceOptions{
		ProviderConfig: artifact.ToProviderConfig(),
	}

	out, err := annotate.Annotate(ctx, doc, chunks, examples, annotate.Options{
		Infer:     p.Infer,
		Builder:   builder,
		Config:    p.Config,
		AlignOpts: alignOpts,
		InferOpts: inferOpts,
		Cache:     p.Cache,
	})
	if err != nil {
		return types.AnnotatedDocument{}, err
	}

	for _, msg := range chunkWarnings {
		out.Warnings = append(out.Warnings, types.Warning{ChunkIndex: -1, Pass: -1, Message: msg})
	}

	return out, nil
}
