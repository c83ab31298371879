// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "context"

// InferenceOptions carries the per-call tuning knobs passed to Inference,
// plus whatever opaque provider config a SchemaArtifact contributed. Per §6.
type InferenceOptions struct {
	Temperature     float64
	MaxOutputTokens int
	ProviderConfig  map[string]any
}

// Inference is the opaque LLM capability the core consumes. Implementations
// live outside the core (e.g. internal/provider); the core never assumes
// anything about the underlying model beyond this interface. Per §6.
type Inference interface {
	// Infer sends prompts as a batch and returns one candidate output
	// string per prompt, in the same order. Implementations may fan out
	// internally but must preserve order.
	Infer(ctx context.Context, prompts []string, opts InferenceOptions) ([]string, error)
}

// SchemaArtifact is the opaque provider-config blob a SchemaAdapter derives
// from few-shot examples. Per §6.
type SchemaArtifact interface {
	// ToProviderConfig returns the opaque map merged into InferenceOptions.ProviderConfig.
	ToProviderConfig() map[string]any

	// RequiresRawOutput reports whether the FormatNormalizer should expect
	// fenced text (true) because the provider does not enforce the schema
	// natively, or whether the provider already guarantees well-formed
	// structured output (false).
	RequiresRawOutput() bool
}

// SchemaAdapter advertises the extraction schema to a provider. Per §6.
type SchemaAdapter interface {
	FromExamples(examples []ExampleRecord) (SchemaArtifact, error)
}
