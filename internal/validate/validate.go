// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package validate runs the Aligner over few-shot examples before any
// inference call, so a badly grounded example is caught at authoring time
// rather than silently degrading extraction quality. Implements spec.md
// §4.8 (PromptValidator, component C8).
package validate

import (
	"fmt"

	"github.com/pdiddy/ground-extract/internal/align"
	"github.com/pdiddy/ground-extract/internal/normalize"
	"github.com/pdiddy/ground-extract/internal/tokenize"
	"github.com/pdiddy/ground-extract/pkg/types"
)

// Validate tokenizes each example's text once, then runs the Aligner for
// each of its extractions against that tokenization (extraction text is
// used as the query directly; examples carry no pre-existing intervals).
func Validate(examples []types.ExampleRecord, opts align.Options) types.ValidationReport {
	var report types.ValidationReport

	for exampleIdx, ex := range examples {
		sourceTokens := tokenize.Tokenize(ex.Text)

		protos := make([]normalize.ProtoExtraction, len(ex.Extractions))
		for i, want := range ex.Extractions {
			protos[i] = normalize.ProtoExtraction{
				Class:      want.Class,
				Text:       want.Text,
				Attributes: want.Attributes,
				GroupIndex: want.GroupIndex,
			}
		}
		// Run the whole example's extraction list through one Align call, not
		// one call per extraction, so an attribute-only extraction can still
		// inherit its span from a sibling class extraction in the same
		// group_index (§4.5).
		aligned := align.Align(protos, sourceTokens, opts)

		for extractionIdx, a := range aligned {
			report.Entries = append(report.Entries, types.ValidationEntry{
				ExampleIndex:    exampleIdx,
				ExtractionIndex: extractionIdx,
				Status:          a.AlignmentStatus,
				Reason:          reasonFor(a.AlignmentStatus, ex.Extractions[extractionIdx]),
			})
		}
	}

	return report
}

func reasonFor(status types.AlignmentStatus, want types.Extraction) string {
	if status == types.Exact {
		return ""
	}
	return fmt.Sprintf("extraction %q (class %q) aligned as %s, not EXACT", want.Text, want.Class, status)
}
