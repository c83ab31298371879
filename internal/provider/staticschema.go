// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package provider

import (
	"encoding/json"
	"fmt"

	"github.com/pdiddy/ground-extract/pkg/types"
)

// StaticSchemaAdapter is the default types.SchemaAdapter: it serializes the
// few-shot examples into the opaque provider-config blob and conservatively
// reports RequiresRawOutput() == true, so the FormatNormalizer always
// attempts fence-stripping rather than assuming the provider enforces the
// extraction schema natively.
type StaticSchemaAdapter struct{}

// staticArtifact is the types.SchemaArtifact StaticSchemaAdapter produces.
type staticArtifact struct {
	config map[string]any
}

func (a staticArtifact) ToProviderConfig() map[string]any {
	return a.config
}

func (a staticArtifact) RequiresRawOutput() bool {
	return true
}

// FromExamples marshals examples to JSON and stores it under
// "few_shot_examples" in the artifact's provider config, alongside a count
// for providers that want it without re-parsing the JSON.
func (StaticSchemaAdapter) FromExamples(examples []types.ExampleRecord) (types.SchemaArtifact, error) {
	encoded, err := json.Marshal(examples)
	if err != nil {
		return nil, fmt.Errorf("marshaling few-shot examples: %w", err)
	}

	return staticArtifact{config: map[string]any{
		"few_shot_examples": string(encoded),
		"few_shot_count":    len(examples),
	}}, nil
}
