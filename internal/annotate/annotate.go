// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package annotate orchestrates chunking's output through the Inference
// capability and the alignment/merge stages. Implements spec.md §4.7
// (Annotator, component C7).
package annotate

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/pdiddy/ground-extract/internal/align"
	"github.com/pdiddy/ground-extract/internal/merge"
	"github.com/pdiddy/ground-extract/internal/normalize"
	"github.com/pdiddy/ground-extract/internal/promptbuild"
	"github.com/pdiddy/ground-extract/pkg/types"
)

// backoffBase is the base retry delay; tests override this to avoid real
// sleeps.
var backoffBase = 250 * time.Millisecond

// formatReminder is appended to the prompt on every retry whose preceding
// attempt failed with a FormatParseError, per §4.7.
const formatReminder = "\n\nYour previous response could not be parsed as JSON or YAML. Respond with only the requested structured output, no surrounding prose."

// ResultCache is the subset of store.Cache's API the Annotator uses to skip
// redundant Infer calls for a (document, chunk, pass, prompt) already seen
// in a prior run. Declared here, not imported, so internal/annotate never
// depends on internal/store's SQLite driver.
type ResultCache interface {
	Get(ctx context.Context, documentID string, chunkIndex, pass int, prompt string) (output string, ok bool, err error)
	Put(ctx context.Context, documentID string, chunkIndex, pass int, prompt, output string) error
}

// Options bundles the collaborators and tuning knobs an Annotate call needs
// beyond the document and its chunks.
type Options struct {
	Infer      types.Inference
	Builder    *promptbuild.Builder
	Config     types.PipelineConfig
	AlignOpts  align.Options
	InferOpts  types.InferenceOptions
	RandSource *rand.Rand  // nil uses a package-level default
	Cache      ResultCache // nil disables caching
}

// Annotate runs doc's chunks through extraction_passes independent passes,
// bounded to max_workers concurrent inference calls per pass, then merges
// each chunk's per-pass results before concatenating all chunks' merged
// extractions into one AnnotatedDocument. Passes run sequentially; chunks
// within a pass run in parallel (§4.7).
func Annotate(ctx context.Context, doc types.Document, chunks []types.Chunk, examples []types.ExampleRecord, opts Options) (types.AnnotatedDocument, error) {
	out := types.AnnotatedDocument{DocumentID: doc.ID, Text: doc.Text}
	if len(chunks) == 0 {
		return out, nil
	}

	passCount := opts.Config.ExtractionPasses
	if passCount < 1 {
		passCount = 1
	}

	// perChunkPasses[c] accumulates one []types.Extraction per pass, in
	// pass order, for chunk c — merge.Merge's required input shape.
	perChunkPasses := make([][][]types.Extraction, len(chunks))

	for pass := 0; pass < passCount; pass++ {
		results, warnings, err := runPass(ctx, chunks, examples, pass, opts)
		if err != nil {
			return types.AnnotatedDocument{}, err
		}
		out.Warnings = append(out.Warnings, warnings...)
		for c, exts := range results {
			perChunkPasses[c] = append(perChunkPasses[c], exts)
		}
	}

	for _, passes := range perChunkPasses {
		out.Extractions = append(out.Extractions, merge.Merge(passes)...)
	}

	out.SortExtractions()
	return out, nil
}

// runPass fans chunks out across a bounded worker pool for a single pass,
// returning one extraction list per chunk in chunk-index order (the pool
// preserves submission order regardless of completion order) and any
// warnings raised by chunks that exhausted their retries. A fatal error
// (types.IsFatal) from any chunk is returned instead, aborting the run.
func runPass(ctx context.Context, chunks []types.Chunk, examples []types.ExampleRecord, pass int, opts Options) ([][]types.Extraction, []types.Warning, error) {
	type chunkOutcome struct {
		extractions []types.Extraction
		warning     *types.Warning
		fatal       error
	}

	p := pool.NewWithResults[chunkOutcome]().WithMaxGoroutines(maxInt(1, opts.Config.MaxWorkers))

	for i, chunk := range chunks {
		i, chunk := i, chunk
		p.Go(func() chunkOutcome {
			var prevText string
			if i > 0 {
				prevText = chunks[i-1].SanitizedForPrompt
			}
			prompt, err := opts.Builder.Build(examples, chunk.SanitizedForPrompt, prevText)
			if err != nil {
				w := &types.Warning{ChunkIndex: chunk.ChunkIndex, Pass: pass, Message: fmt.Sprintf("building prompt: %v", err)}
				return chunkOutcome{warning: w}
			}

			exts, err := attemptChunk(ctx, chunk, prompt, pass, opts)
			if err != nil {
				if types.IsFatal(err) {
					return chunkOutcome{fatal: err}
				}
				w := &types.Warning{ChunkIndex: chunk.ChunkIndex, Pass: pass, Message: err.Error()}
				return chunkOutcome{warning: w}
			}
			return chunkOutcome{extractions: exts}
		})
	}

	outcomes := p.Wait()

	results := make([][]types.Extraction, len(chunks))
	var warnings []types.Warning
	for i, o := range outcomes {
		if o.fatal != nil {
			return nil, nil, o.fatal
		}
		results[i] = o.extractions
		if o.warning != nil {
			warnings = append(warnings, *o.warning)
		}
	}
	return results, warnings, nil
}

// attemptChunk calls Infer for one chunk's prompt with retry on retriable
// errors, normalizing and aligning the first response that succeeds.
func attemptChunk(ctx context.Context, chunk types.Chunk, prompt string, pass int, opts Options) ([]types.Extraction, error) {
	maxRetries := opts.Config.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, attempt, opts.RandSource); err != nil {
				return nil, err
			}
		}

		attemptPrompt := prompt
		if attempt > 0 && errors.Is(lastErr, types.ErrFormatParse) {
			attemptPrompt = prompt + formatReminder
		}

		output, err := inferOne(ctx, chunk, attemptPrompt, pass, opts)
		if err != nil {
			wrapped := classifyInferenceError(err)
			if !types.IsRetriable(wrapped) {
				return nil, wrapped
			}
			lastErr = wrapped
			continue
		}

		protos, err := normalize.Normalize(output, opts.Config.WrapperKey, opts.Config.AttributeSuffix)
		if err != nil {
			if !types.IsRetriable(err) {
				return nil, err
			}
			lastErr = err
			continue
		}

		return align.Align(protos, tokensOf(chunk), opts.AlignOpts), nil
	}

	return nil, fmt.Errorf("chunk %d pass %d: after %d retries: %w", chunk.ChunkIndex, pass, maxRetries, lastErr)
}

func tokensOf(chunk types.Chunk) []types.TokenSpan {
	return chunk.Tokens
}

// inferOne checks opts.Cache (if any) for a prior result before calling
// opts.Infer, storing a fresh result back into the cache on success. A cache
// read or write error is logged nowhere and simply treated as a miss/no-op —
// the cache is a performance optimization, never a correctness dependency.
func inferOne(ctx context.Context, chunk types.Chunk, prompt string, pass int, opts Options) (string, error) {
	if opts.Cache != nil {
		if cached, ok, err := opts.Cache.Get(ctx, chunk.DocumentID, chunk.ChunkIndex, pass, prompt); err == nil && ok {
			return cached, nil
		}
	}

	outs, err := opts.Infer.Infer(ctx, []string{prompt}, opts.InferOpts)
	if err != nil {
		return "", err
	}
	if len(outs) == 0 {
		return "", types.NewInferenceRuntimeError("inference returned no output for chunk", nil)
	}

	if opts.Cache != nil {
		_ = opts.Cache.Put(ctx, chunk.DocumentID, chunk.ChunkIndex, pass, prompt, outs[0])
	}

	return outs[0], nil
}

// classifyInferenceError wraps a raw Inference error as an
// InferenceRuntimeError unless it is already a classified PipelineError
// (e.g. a caller-supplied Inference implementation that itself returns an
// InferenceConfigError for a fatal, non-retriable misconfiguration).
func classifyInferenceError(err error) error {
	if types.IsFatal(err) || types.IsRetriable(err) {
		return err
	}
	return types.NewInferenceRuntimeError("inference call failed", err)
}

// sleepBackoff waits an exponentially growing, ±20%-jittered delay before
// retry attempt N (250ms base, doubling each attempt), returning early with
// ctx.Err() if the context is cancelled first (§4.7).
func sleepBackoff(ctx context.Context, attempt int, src *rand.Rand) error {
	base := backoffBase << (attempt - 1)
	jitterFrac := 0.8 + 0.4*randFloat(src)
	delay := time.Duration(float64(base) * jitterFrac)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

func randFloat(src *rand.Rand) float64 {
	if src != nil {
		return src.Float64()
	}
	return rand.Float64()
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
