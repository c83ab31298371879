// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package validate

import (
	"testing"

	"github.com/pdiddy/ground-extract/internal/align"
	"github.com/pdiddy/ground-extract/pkg/types"
)

func defaultOpts() align.Options {
	return align.Options{FuzzyThreshold: 0.75, LesserThreshold: 0.5, AcceptLesser: true, FuzzySlack: 0.25, AttributeSuffix: "_attributes"}
}

func TestValidate_ExactExampleReportsOKWithNoReason(t *testing.T) {
	examples := []types.ExampleRecord{
		{
			Text: "Patient takes aspirin 500mg daily.",
			Extractions: []types.Extraction{
				{Class: "medication", Text: "aspirin 500mg"},
			},
		},
	}

	report := Validate(examples, defaultOpts())
	if len(report.Entries) != 1 {
		t.Fatalf("expected one entry, got %+v", report.Entries)
	}
	entry := report.Entries[0]
	if entry.Status != types.Exact || entry.Reason != "" {
		t.Fatalf("expected EXACT with no reason, got %+v", entry)
	}
}

func TestValidate_UnalignedExampleReportsReason(t *testing.T) {
	examples := []types.ExampleRecord{
		{
			Text: "Hello world.",
			Extractions: []types.Extraction{
				{Class: "entity", Text: "completely unrelated phrase"},
			},
		},
	}

	report := Validate(examples, defaultOpts())
	entry := report.Entries[0]
	if entry.Status != types.Unaligned || entry.Reason == "" {
		t.Fatalf("expected UNALIGNED with a reason, got %+v", entry)
	}
}

func TestValidate_AttributeSiblingInheritsParentSpan(t *testing.T) {
	examples := []types.ExampleRecord{
		{
			Text: "Patient takes aspirin 500mg daily.",
			Extractions: []types.Extraction{
				{Class: "medication", Text: "aspirin 500mg", GroupIndex: 0},
				{Class: "medication_attributes", Text: "", GroupIndex: 0, Attributes: map[string]types.AttributeValue{
					"frequency": types.StringValue("daily"),
				}},
			},
		},
	}

	report := Validate(examples, defaultOpts())
	if len(report.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %+v", report.Entries)
	}
	if report.Entries[1].Status != types.Exact {
		t.Fatalf("expected the attribute sibling to inherit EXACT from its parent, got %+v", report.Entries[1])
	}
}

func TestValidate_FailedUsesLevel(t *testing.T) {
	examples := []types.ExampleRecord{
		{
			Text: "Hello world.",
			Extractions: []types.Extraction{
				{Class: "entity", Text: "completely unrelated phrase"},
			},
		},
	}
	report := Validate(examples, defaultOpts())

	if report.Failed(types.ValidationOff) {
		t.Fatalf("OFF level should never fail")
	}
	if report.Failed(types.ValidationWarning) {
		t.Fatalf("WARNING level should never fail")
	}
	if !report.Failed(types.ValidationError) {
		t.Fatalf("ERROR level should fail on an UNALIGNED entry")
	}
}

func TestValidate_MultipleExamplesIndexedCorrectly(t *testing.T) {
	examples := []types.ExampleRecord{
		{Text: "Patient takes aspirin.", Extractions: []types.Extraction{{Class: "medication", Text: "aspirin"}}},
		{Text: "He took ibuprofen.", Extractions: []types.Extraction{{Class: "medication", Text: "ibuprofen"}}},
	}

	report := Validate(examples, defaultOpts())
	if len(report.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %+v", report.Entries)
	}
	if report.Entries[0].ExampleIndex != 0 || report.Entries[1].ExampleIndex != 1 {
		t.Fatalf("expected example indices 0,1, got %d,%d", report.Entries[0].ExampleIndex, report.Entries[1].ExampleIndex)
	}
}
