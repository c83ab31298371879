// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package normalize

import (
	"errors"
	"testing"

	"github.com/pdiddy/ground-extract/pkg/types"
)

func mustOne(t *testing.T, raw string) ProtoExtraction {
	t.Helper()
	out, err := Normalize(raw, "extractions", "_attributes")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected exactly one proto-extraction, got %d: %+v", len(out), out)
	}
	return out[0]
}

func TestNormalize_WrapperObject(t *testing.T) {
	pe := mustOne(t, `{"extractions":[{"medication":"aspirin 500mg","medication_attributes":{"frequency":"daily"}}]}`)
	if pe.Class != "medication" || pe.Text != "aspirin 500mg" {
		t.Fatalf("got %+v", pe)
	}
	freq, ok := pe.Attributes["frequency"]
	if !ok || freq.Str == nil || *freq.Str != "daily" {
		t.Fatalf("expected frequency=daily attribute, got %+v", pe.Attributes)
	}
}

func TestNormalize_BareList(t *testing.T) {
	pe := mustOne(t, `[{"symptom":"headache"}]`)
	if pe.Class != "symptom" || pe.Text != "headache" {
		t.Fatalf("got %+v", pe)
	}
}

func TestNormalize_SingleObjectWrappedAsOneElementList(t *testing.T) {
	pe := mustOne(t, `{"symptom":"nausea"}`)
	if pe.Class != "symptom" || pe.Text != "nausea" {
		t.Fatalf("got %+v", pe)
	}
}

func TestNormalize_ExplicitShape(t *testing.T) {
	pe := mustOne(t, `{"extractions":[{"class":"symptom","text":"nausea","attributes":{"severity":"mild"}}]}`)
	if pe.Class != "symptom" || pe.Text != "nausea" {
		t.Fatalf("got %+v", pe)
	}
	sev, ok := pe.Attributes["severity"]
	if !ok || sev.Str == nil || *sev.Str != "mild" {
		t.Fatalf("expected severity=mild, got %+v", pe.Attributes)
	}
}

func TestNormalize_AttributeOnlyElement(t *testing.T) {
	// The model emits an attribute block as its own standalone list element
	// rather than nesting it beside the class key.
	out, err := Normalize(`{"extractions":[{"medication":"aspirin"},{"medication_attributes":{"route":"oral"}}]}`, "extractions", "_attributes")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected two proto-extractions, got %d: %+v", len(out), out)
	}
	if out[0].Class != "medication" || out[0].Text != "aspirin" {
		t.Fatalf("unexpected first element: %+v", out[0])
	}
	if out[1].Class != "medication_attributes" || out[1].Text != "" {
		t.Fatalf("unexpected second element: %+v", out[1])
	}
	route, ok := out[1].Attributes["route"]
	if !ok || route.Str == nil || *route.Str != "oral" {
		t.Fatalf("expected route=oral, got %+v", out[1].Attributes)
	}
	if out[0].GroupIndex != 0 || out[1].GroupIndex != 1 {
		t.Fatalf("expected group indices 0,1, got %d,%d", out[0].GroupIndex, out[1].GroupIndex)
	}
}

func TestNormalize_ExplicitGroupIndexClustersSiblingElements(t *testing.T) {
	out, err := Normalize(`{"extractions":[
		{"class":"medication","text":"aspirin","group_index":5},
		{"class":"medication_attributes","text":"","attributes":{"route":"oral"},"group_index":5}
	]}`, "extractions", "_attributes")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected two proto-extractions, got %d: %+v", len(out), out)
	}
	if out[0].GroupIndex != 5 || out[1].GroupIndex != 5 {
		t.Fatalf("expected both elements to share group_index 5, got %d,%d", out[0].GroupIndex, out[1].GroupIndex)
	}
}

func TestNormalize_UnknownKeysFoldIntoAttributes(t *testing.T) {
	pe := mustOne(t, `[{"symptom":"headache","duration":"2 days","onset":"sudden"}]`)
	if pe.Class != "symptom" || pe.Text != "headache" {
		t.Fatalf("got %+v", pe)
	}
	if len(pe.Attributes) != 2 {
		t.Fatalf("expected duration and onset folded into attributes, got %+v", pe.Attributes)
	}
}

func TestNormalize_FenceAndThinkBlockStripping(t *testing.T) {
	raw := "<think>let me think</think>\n```json\n{\"extractions\":[{\"x\":\"a\"}]}\n```"
	pe := mustOne(t, raw)
	if pe.Class != "x" || pe.Text != "a" {
		t.Fatalf("got %+v", pe)
	}
}

func TestNormalize_YAMLFallback(t *testing.T) {
	raw := "extractions:\n  - symptom: headache\n    duration: 2 days\n"
	pe := mustOne(t, raw)
	if pe.Class != "symptom" || pe.Text != "headache" {
		t.Fatalf("got %+v", pe)
	}
}

func TestNormalize_YAMLFencedWithLangHint(t *testing.T) {
	raw := "```yaml\nextractions:\n  - symptom: fatigue\n```"
	pe := mustOne(t, raw)
	if pe.Class != "symptom" || pe.Text != "fatigue" {
		t.Fatalf("got %+v", pe)
	}
}

func TestNormalize_UnparseableReturnsFormatParseError(t *testing.T) {
	_, err := Normalize("not json, not yaml: {{{", "extractions", "_attributes")
	if err == nil {
		t.Fatalf("expected an error for unparseable output")
	}
	if !errors.Is(err, types.ErrFormatParse) {
		t.Fatalf("expected a FormatParseError, got %v", err)
	}
}

func TestNormalize_EmptyInputYieldsNoExtractions(t *testing.T) {
	out, err := Normalize("   ", "extractions", "_attributes")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected no extractions for blank input, got %+v", out)
	}
}

func TestNormalize_NumericAndBoolAttributesPreserveType(t *testing.T) {
	pe := mustOne(t, `[{"lab":"glucose","lab_attributes":{"value":120.5,"abnormal":true,"tags":["fasting","am"]}}]`)
	val, ok := pe.Attributes["value"]
	if !ok || val.Num == nil || *val.Num != 120.5 {
		t.Fatalf("expected numeric value attribute, got %+v", pe.Attributes)
	}
	abnormal, ok := pe.Attributes["abnormal"]
	if !ok || abnormal.Bool == nil || *abnormal.Bool != true {
		t.Fatalf("expected bool abnormal attribute, got %+v", pe.Attributes)
	}
	tags, ok := pe.Attributes["tags"]
	if !ok || len(tags.List) != 2 {
		t.Fatalf("expected list tags attribute, got %+v", pe.Attributes)
	}
}
