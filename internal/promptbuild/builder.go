// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package promptbuild assembles the prompt sent to the Inference capability
// for one chunk. Implements spec.md §4.4 (PromptBuilder, component C4).
package promptbuild

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/template"

	"github.com/pdiddy/ground-extract/pkg/types"
)

// promptTmpl lays out the fixed sections of the prompt: task description,
// optional format note, few-shot examples, optional trailing context from
// the previous chunk, then the chunk text itself. Per §4.4.
var promptTmpl = template.Must(template.New("extraction").Parse(
	`{{.TaskDescription}}
{{if .FormatNote}}
{{.FormatNote}}
{{end}}
{{range .Examples}}
Input: {{.Text}}
Output: {{.Output}}
{{end}}
{{if .ContextWindow}}
Context from the preceding text:
{{.ContextWindow}}
{{end}}
Text:
{{.ChunkText}}
`))

// Builder holds the prompt parameters that are constant across a pipeline
// run: the task instructions, an optional format reminder (suppressed when
// the provider enforces schema natively, §6's requires_raw_output), the
// wrapper key few-shot outputs are serialized under, and the trailing
// context window size in characters (0 disables it).
type Builder struct {
	TaskDescription    string
	FormatNote         string
	WrapperKey         string
	ContextWindowChars int
}

// New constructs a Builder. formatNote may be empty to suppress the
// format-reminder section entirely.
func New(taskDescription, formatNote, wrapperKey string, contextWindowChars int) *Builder {
	return &Builder{
		TaskDescription:    taskDescription,
		FormatNote:         formatNote,
		WrapperKey:         wrapperKey,
		ContextWindowChars: contextWindowChars,
	}
}

type templateExample struct {
	Text   string
	Output string
}

type templateData struct {
	TaskDescription string
	FormatNote      string
	Examples        []templateExample
	ContextWindow   string
	ChunkText       string
}

// Build renders the prompt for chunkText. examples are the few-shot
// ExampleRecords supplied by the caller. prevChunkText is the previous
// chunk's text within the same document, or "" if this is the first chunk
// or context injection is disabled (§4.4 item e).
func (b *Builder) Build(examples []types.ExampleRecord, chunkText, prevChunkText string) (string, error) {
	tmplExamples := make([]templateExample, 0, len(examples))
	for i, ex := range examples {
		out, err := serializeExample(b.WrapperKey, ex)
		if err != nil {
			return "", fmt.Errorf("serializing example %d: %w", i, err)
		}
		tmplExamples = append(tmplExamples, templateExample{Text: ex.Text, Output: out})
	}

	data := templateData{
		TaskDescription: b.TaskDescription,
		FormatNote:      b.FormatNote,
		Examples:        tmplExamples,
		ChunkText:       chunkText,
	}
	if b.ContextWindowChars > 0 && prevChunkText != "" {
		data.ContextWindow = tailRunes(prevChunkText, b.ContextWindowChars)
	}

	var buf bytes.Buffer
	if err := promptTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("executing prompt template: %w", err)
	}
	return buf.String(), nil
}

// exampleOutput is the wire shape a few-shot example's answer is serialized
// into: the same explicit {class, text, attributes} shape
// internal/normalize accepts, so the model is trained by demonstration on a
// format its own output will be parsed against.
type exampleOutput struct {
	Class      string                           `json:"class"`
	Text       string                           `json:"text"`
	Attributes map[string]types.AttributeValue `json:"attributes,omitempty"`
}

func serializeExample(wrapperKey string, ex types.ExampleRecord) (string, error) {
	outs := make([]exampleOutput, 0, len(ex.Extractions))
	for _, e := range ex.Extractions {
		outs = append(outs, exampleOutput{Class: e.Class, Text: e.Text, Attributes: e.Attributes})
	}
	wrapper := map[string]any{wrapperKey: outs}
	b, err := json.Marshal(wrapper)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// tailRunes returns the last n runes of s, or all of s if it has fewer.
func tailRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}
