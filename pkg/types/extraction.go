// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"encoding/json"
	"fmt"
	"sort"
)

// AlignmentStatus is the confidence label of a grounding. Ordering
// (strongest first): EXACT > FUZZY > LESSER > UNALIGNED. Per §3.
type AlignmentStatus int

const (
	Unaligned AlignmentStatus = iota
	Lesser
	Fuzzy
	Exact
)

// String renders the lowercase variant name used in JSON Lines output (§6).
func (s AlignmentStatus) String() string {
	switch s {
	case Exact:
		return "exact"
	case Fuzzy:
		return "fuzzy"
	case Lesser:
		return "lesser"
	default:
		return "unaligned"
	}
}

func (s AlignmentStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *AlignmentStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	switch str {
	case "exact":
		*s = Exact
	case "fuzzy":
		*s = Fuzzy
	case "lesser":
		*s = Lesser
	case "unaligned":
		*s = Unaligned
	default:
		return fmt.Errorf("unknown alignment status %q", str)
	}
	return nil
}

// AttributeValue is the tagged value enum for Extraction.Attributes entries
// (§9 Design Notes): Str | Num | Bool | Null | List<Str>. Exactly one field
// is set; Null is the zero value.
type AttributeValue struct {
	Str     *string  `json:"str,omitempty"`
	Num     *float64 `json:"num,omitempty"`
	Bool    *bool    `json:"bool,omitempty"`
	List    []string `json:"list,omitempty"`
	IsNull  bool     `json:"is_null,omitempty"`
}

// StringValue wraps a string as an AttributeValue.
func StringValue(s string) AttributeValue { return AttributeValue{Str: &s} }

// NumValue wraps a float64 as an AttributeValue.
func NumValue(n float64) AttributeValue { return AttributeValue{Num: &n} }

// BoolValue wraps a bool as an AttributeValue.
func BoolValue(b bool) AttributeValue { return AttributeValue{Bool: &b} }

// ListValue wraps an ordered list of strings as an AttributeValue.
func ListValue(items []string) AttributeValue { return AttributeValue{List: items} }

// NullValue returns the null AttributeValue.
func NullValue() AttributeValue { return AttributeValue{IsNull: true} }

// MarshalJSON renders the AttributeValue as the bare underlying JSON value
// (a string, number, bool, null, or array) rather than the tagged struct,
// so serialized Extractions read naturally per §6.
func (v AttributeValue) MarshalJSON() ([]byte, error) {
	switch {
	case v.Str != nil:
		return json.Marshal(*v.Str)
	case v.Num != nil:
		return json.Marshal(*v.Num)
	case v.Bool != nil:
		return json.Marshal(*v.Bool)
	case v.List != nil:
		return json.Marshal(v.List)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts any bare JSON value and classifies it into the
// tagged union, rejecting shapes that are not one of string, number, bool,
// null, or array-of-strings (§9: "Reject unknown shapes at parse time.").
func (v *AttributeValue) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := attributeValueFromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// AttributeValueFromAny classifies a decoded JSON/YAML value (string,
// float64, YAML int, bool, nil, or []any of strings) into the AttributeValue tagged
// union. Exported for internal/normalize, which builds attribute maps from
// decoded LLM output using the same shape rules as UnmarshalJSON.
func AttributeValueFromAny(raw any) (AttributeValue, error) {
	return attributeValueFromAny(raw)
}

func attributeValueFromAny(raw any) (AttributeValue, error) {
	switch t := raw.(type) {
	case nil:
		return NullValue(), nil
	case string:
		return StringValue(t), nil
	case float64:
		return NumValue(t), nil
	case int:
		return NumValue(float64(t)), nil
	case bool:
		return BoolValue(t), nil
	case []any:
		items := make([]string, 0, len(t))
		for _, el := range t {
			s, ok := el.(string)
			if !ok {
				return AttributeValue{}, fmt.Errorf("attribute list elements must be strings, got %T", el)
			}
			items = append(items, s)
		}
		return ListValue(items), nil
	default:
		return AttributeValue{}, fmt.Errorf("unsupported attribute shape %T", raw)
	}
}

// Extraction is one structured record attributed to a span of source text.
// Per §3.
type Extraction struct {
	Class      string                    `json:"class" yaml:"class"`
	Text       string                    `json:"text" yaml:"text"`
	Attributes map[string]AttributeValue `json:"attributes,omitempty" yaml:"attributes,omitempty"`

	CharInterval    *CharInterval   `json:"char_interval,omitempty" yaml:"char_interval,omitempty"`
	TokenInterval   *TokenInterval  `json:"token_interval,omitempty" yaml:"token_interval,omitempty"`
	AlignmentStatus AlignmentStatus `json:"alignment_status" yaml:"alignment_status"`

	// GroupIndex clusters related extractions emitted together by the model.
	GroupIndex uint32 `json:"group_index" yaml:"group_index"`

	// emissionIndex records the position this extraction occupied in its
	// chunk's model output, used only to break (char_start, char_end) ties
	// when ordering an AnnotatedDocument's extraction list (§3).
	emissionIndex int
}

// EmissionIndex returns the extraction's position in its chunk's model
// output, for ordering ties.
func (e Extraction) EmissionIndex() int { return e.emissionIndex }

// SetEmissionIndex records the extraction's position in its chunk's model
// output. Called once by the Annotator when assembling a chunk's results.
func (e *Extraction) SetEmissionIndex(i int) { e.emissionIndex = i }

// Warning is a structured note attached to an AnnotatedDocument when a
// chunk degrades to an empty extraction list after retries are exhausted
// (§7). The Pipeline also attaches the Chunker's warnings (e.g. an oversized
// token emitted as its own chunk) with ChunkIndex and Pass set to -1.
type Warning struct {
	ChunkIndex int    `json:"chunk_index" yaml:"chunk_index"`
	Pass       int    `json:"pass" yaml:"pass"`
	Message    string `json:"message" yaml:"message"`
}

// AnnotatedDocument is the pipeline's output for one document. Per §3,
// extractions are ordered by (char_start, char_end), ties broken by
// emission order.
type AnnotatedDocument struct {
	DocumentID  string       `json:"document_id" yaml:"document_id"`
	Text        string       `json:"text" yaml:"text"`
	Extractions []Extraction `json:"extractions" yaml:"extractions"`
	Warnings    []Warning    `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// SortExtractions orders d.Extractions per §3's ordering rule. Stable so
// ties fall back to existing relative order (which callers should already
// have set to emission order before calling this).
func (d *AnnotatedDocument) SortExtractions() {
	sort.SliceStable(d.Extractions, func(i, j int) bool {
		a, b := d.Extractions[i], d.Extractions[j]
		ai, bi := charSortKey(a), charSortKey(b)
		if ai.start != bi.start {
			return ai.start < bi.start
		}
		if ai.end != bi.end {
			return ai.end < bi.end
		}
		return a.emissionIndex < b.emissionIndex
	})
}

type sortKey struct{ start, end uint32 }

// charSortKey returns a sort key for an extraction; unaligned extractions
// (no char interval) sort after all aligned ones but preserve relative
// emission order among themselves.
func charSortKey(e Extraction) sortKey {
	if e.CharInterval == nil {
		return sortKey{start: ^uint32(0), end: ^uint32(0)}
	}
	return sortKey{start: e.CharInterval.Start, end: e.CharInterval.End}
}

// ExampleRecord is a (text, extractions) pair used for few-shot prompting
// and the PromptValidator. Extractions carry no intervals — those are
// computed fresh by the Aligner when validating.
type ExampleRecord struct {
	Text        string       `json:"text" yaml:"text"`
	Extractions []Extraction `json:"extractions" yaml:"extractions"`
}

// ValidationEntry is one row of a PromptValidator report (§4.8).
type ValidationEntry struct {
	ExampleIndex    int             `json:"example_idx" yaml:"example_idx"`
	ExtractionIndex int             `json:"extraction_idx" yaml:"extraction_idx"`
	Status          AlignmentStatus `json:"status" yaml:"status"`
	Reason          string          `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// ValidationReport is the full PromptValidator output.
type ValidationReport struct {
	Entries []ValidationEntry `json:"entries" yaml:"entries"`
}

// Failed reports whether, under level, this report should abort the
// pipeline before any inference call (§4.8's level table: ERROR fails on
// UNALIGNED, WARNING and OFF never fail).
func (r ValidationReport) Failed(level ValidationLevel) bool {
	if level != ValidationError {
		return false
	}
	for _, e := range r.Entries {
		if e.Status == Unaligned {
			return true
		}
	}
	return false
}
