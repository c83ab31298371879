// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package normalize turns raw, free-text LLM output into a list of proto
// extractions. Implements spec.md §4.3 (FormatNormalizer, component C3).
package normalize

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/ground-extract/pkg/types"
)

// ProtoExtraction is an Extraction before alignment: it carries a class,
// span text, and attributes, but no char/token interval yet. GroupIndex is
// the zero-based position of the extraction's source list element in the
// parsed model output (§3, §4.3 step 6).
type ProtoExtraction struct {
	Class      string
	Text       string
	Attributes map[string]types.AttributeValue
	GroupIndex uint32
}

// thinkBlockRe strips <think>...</think> reasoning traces some models emit
// ahead of their answer (§4.3 step 1).
var thinkBlockRe = regexp.MustCompile(`(?is)<think>.*?</think>`)

// fenceRe finds the first fenced code block, capturing an optional language
// hint and the body. Non-greedy so a stray second fence later in the text
// doesn't get absorbed.
var fenceRe = regexp.MustCompile("(?s)```([a-zA-Z0-9_+-]*)[ \t]*\r?\n?(.*?)```")

// Normalize parses raw model output into an ordered list of proto
// extractions. wrapperKey names the top-level object key that wraps a list
// of extraction objects (default "extractions", §6); attrSuffix names the
// "{class}_attributes" key suffix convention (default "_attributes", §6).
//
// Accepted shapes (§4.3 step 4-5):
//   - an object {wrapperKey: [...]}
//   - a bare list [...]
//   - a single object, treated as a one-element list
//
// Each list element is either an explicit {class, text, attributes} object,
// or the {class}/{class}_attributes naming convention; unrecognized keys on
// an element are folded into its attributes map.
func Normalize(raw, wrapperKey, attrSuffix string) ([]ProtoExtraction, error) {
	body, langHint := extractFence(stripThink(raw))
	if strings.TrimSpace(body) == "" {
		return nil, nil
	}

	parsed, err := parseBody(body, langHint)
	if err != nil {
		return nil, types.NewFormatParseError("could not parse model output as JSON or YAML", err)
	}

	list, err := extractList(parsed, wrapperKey)
	if err != nil {
		return nil, types.NewFormatParseError(err.Error(), err)
	}

	out := make([]ProtoExtraction, 0, len(list))
	for i, el := range list {
		pe, err := elementToProto(el, attrSuffix)
		if err != nil {
			return nil, types.NewFormatParseError(fmt.Sprintf("list element %d: %v", i, err), err)
		}
		// An element's own "group_index" field, when the model sets one,
		// clusters it with sibling elements sharing the same value (§3); by
		// default each top-level list element gets its own group.
		pe.GroupIndex = uint32(i)
		if obj, ok := el.(map[string]any); ok {
			switch gi := obj["group_index"].(type) {
			case float64: // JSON numbers
				pe.GroupIndex = uint32(gi)
			case int: // YAML integers
				pe.GroupIndex = uint32(gi)
			}
		}
		out = append(out, pe)
	}
	return out, nil
}

func stripThink(raw string) string {
	return thinkBlockRe.ReplaceAllString(raw, "")
}

// extractFence returns the body of the first fenced code block in text (with
// its lowercased language hint), or the trimmed text itself if there is no
// fence.
func extractFence(text string) (body string, langHint string) {
	trimmed := strings.TrimSpace(text)
	m := fenceRe.FindStringSubmatch(trimmed)
	if m == nil {
		return trimmed, ""
	}
	return strings.TrimSpace(m[2]), strings.ToLower(strings.TrimSpace(m[1]))
}

type parseFunc func(string) (any, error)

func parseJSON(s string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	return v, nil
}

func parseYAML(s string) (any, error) {
	var v any
	if err := yaml.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	return v, nil
}

// parseBody tries JSON then YAML, or YAML then JSON when langHint says the
// model declared its fence as yaml/yml (§4.3 step 3-4). Since well-formed
// JSON already parses as YAML, order only matters for yaml-flavored output
// that bare JSON decoding would reject (unquoted keys, block scalars, etc).
func parseBody(body, langHint string) (any, error) {
	order := []parseFunc{parseJSON, parseYAML}
	if langHint == "yaml" || langHint == "yml" {
		order = []parseFunc{parseYAML, parseJSON}
	}

	var firstErr error
	for _, p := range order {
		v, err := p(body)
		if err == nil {
			return v, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

func extractList(parsed any, wrapperKey string) ([]any, error) {
	switch v := parsed.(type) {
	case map[string]any:
		if inner, ok := v[wrapperKey]; ok {
			list, ok := inner.([]any)
			if !ok {
				return nil, fmt.Errorf("wrapper key %q is not a list (got %T)", wrapperKey, inner)
			}
			return list, nil
		}
		return []any{v}, nil
	case []any:
		return v, nil
	default:
		return nil, fmt.Errorf("unsupported top-level output shape %T", parsed)
	}
}

func elementToProto(el any, attrSuffix string) (ProtoExtraction, error) {
	obj, ok := el.(map[string]any)
	if !ok {
		return ProtoExtraction{}, fmt.Errorf("element is not an object: %T", el)
	}

	if classRaw, ok := obj["class"]; ok {
		if class, ok := classRaw.(string); ok {
			text, _ := obj["text"].(string)
			attrs, err := attributesFromMap(obj["attributes"])
			if err != nil {
				return ProtoExtraction{}, err
			}
			for k, v := range obj {
				if k == "class" || k == "text" || k == "attributes" || k == "group_index" {
					continue
				}
				av, err := types.AttributeValueFromAny(v)
				if err != nil {
					return ProtoExtraction{}, fmt.Errorf("key %q: %w", k, err)
				}
				attrs[k] = av
			}
			return ProtoExtraction{Class: class, Text: text, Attributes: attrs}, nil
		}
	}

	return elementFromNamingConvention(obj, attrSuffix)
}

// elementFromNamingConvention handles the {class}/{class}_attributes shape
// (§4.3 step 5). Keys are sorted first so the result is deterministic
// regardless of Go's randomized map iteration order.
func elementFromNamingConvention(obj map[string]any, attrSuffix string) (ProtoExtraction, error) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var classKey string
	for _, k := range keys {
		if strings.HasSuffix(k, attrSuffix) {
			continue
		}
		if _, ok := obj[k].(string); ok {
			classKey = k
			break
		}
	}

	attrs := map[string]types.AttributeValue{}

	if classKey != "" {
		text, _ := obj[classKey].(string)
		attrKey := classKey + attrSuffix
		if err := mergeAttributes(attrs, obj[attrKey]); err != nil {
			return ProtoExtraction{}, err
		}
		for _, k := range keys {
			if k == classKey || k == attrKey || k == "group_index" {
				continue
			}
			av, err := types.AttributeValueFromAny(obj[k])
			if err != nil {
				return ProtoExtraction{}, fmt.Errorf("key %q: %w", k, err)
			}
			attrs[k] = av
		}
		return ProtoExtraction{Class: classKey, Text: text, Attributes: attrs}, nil
	}

	// No standalone class key: this is an attribute-only extraction, emitted
	// by the model as its own list element rather than nested in a sibling
	// (§9, the Aligner's "class ends with the configured suffix" case).
	for _, k := range keys {
		if strings.HasSuffix(k, attrSuffix) {
			if err := mergeAttributes(attrs, obj[k]); err != nil {
				return ProtoExtraction{}, err
			}
			return ProtoExtraction{Class: k, Text: "", Attributes: attrs}, nil
		}
	}

	return ProtoExtraction{}, fmt.Errorf("could not determine a class key in %v", obj)
}

func attributesFromMap(raw any) (map[string]types.AttributeValue, error) {
	attrs := map[string]types.AttributeValue{}
	if err := mergeAttributes(attrs, raw); err != nil {
		return nil, err
	}
	return attrs, nil
}

func mergeAttributes(into map[string]types.AttributeValue, raw any) error {
	if raw == nil {
		return nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return fmt.Errorf("attributes must be an object, got %T", raw)
	}
	for k, v := range m {
		av, err := types.AttributeValueFromAny(v)
		if err != nil {
			return fmt.Errorf("attribute %q: %w", k, err)
		}
		into[k] = av
	}
	return nil
}
