// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package tokenize splits document text into stable token spans over byte
// offsets. Implements spec.md §4.1 (Tokenizer, component C1).
package tokenize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/pdiddy/ground-extract/pkg/types"
)

// foldTransform decomposes to NFD, strips combining marks (Unicode category
// Mn — this is the diacritics), then recomposes to NFC. Combined with
// strings.ToLower this approximates "NFKC-fold and strip diacritics" using
// golang.org/x/text, the standard library idiom for this in Go (see e.g.
// https://go.dev/blog/normalization's "practical NFC" discussion).
var foldTransform = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lowercases s and strips diacritics, approximating NFKC folding.
// Exported so the Aligner and PromptValidator can normalize short query
// strings (extraction text) the same way the Tokenizer normalizes source
// tokens.
func Normalize(s string) string {
	folded, _, err := transform.String(foldTransform, s)
	if err != nil {
		// transform.String only errors on malformed input the Remove/NFD
		// transformers cannot recover from; fall back to the raw string
		// rather than losing the token entirely.
		folded = s
	}
	return strings.ToLower(folded)
}

// tokenKind classifies a rune for the maximal-run scan.
type tokenKind int

const (
	kindNone tokenKind = iota
	kindWord
	kindNumber
	kindPunct
)

func classify(r rune) tokenKind {
	switch {
	case unicode.IsSpace(r):
		return kindNone
	case unicode.IsLetter(r):
		return kindWord
	case unicode.IsDigit(r):
		return kindNumber
	default:
		return kindPunct
	}
}

// Tokenize splits text into TokenSpans. Recognized kinds: word (maximal run
// of letters, Unicode letter class included; a digit ends the word and
// starts a number, so "500mg" is "500" then "mg"), number (maximal digit
// run, possibly with a single internal '.' or ','), punctuation (single
// non-space non-word char). Whitespace is not tokenized but counted in
// offsets. Guarantees: deterministic, streamable; char_end_exclusive
// monotone; text[span.start:span.end] yields the original substring
// verbatim. Per §4.1.
func Tokenize(text string) []types.TokenSpan {
	runes := []rune(text)
	// byteOffsets[i] is the byte offset of runes[i] in text; byteOffsets[len(runes)]
	// is len(text). Needed because spec's char offsets are measured over the
	// same text the caller slices with text[start:end], and Go strings are
	// byte-indexed — so "char" here means byte offset into the UTF-8 text,
	// consistent with how every other component slices Document.Text.
	byteOffsets := make([]int, len(runes)+1)
	{
		b := 0
		for i, r := range runes {
			byteOffsets[i] = b
			b += len(string(r))
		}
		byteOffsets[len(runes)] = b
	}

	var spans []types.TokenSpan
	var tokenIndex uint32

	i := 0
	for i < len(runes) {
		kind := classify(runes[i])
		if kind == kindNone {
			i++
			continue
		}

		start := i
		switch kind {
		case kindWord:
			for i < len(runes) && classify(runes[i]) == kindWord {
				i++
			}
		case kindNumber:
			i++
			usedSeparator := false
			for i < len(runes) {
				if classify(runes[i]) == kindNumber {
					i++
					continue
				}
				if !usedSeparator && (runes[i] == '.' || runes[i] == ',') && i+1 < len(runes) && classify(runes[i+1]) == kindNumber {
					usedSeparator = true
					i++
					continue
				}
				break
			}
		case kindPunct:
			i++
		}

		raw := string(runes[start:i])
		spans = append(spans, types.TokenSpan{
			TokenIndex:       tokenIndex,
			CharStart:        uint32(byteOffsets[start]),
			CharEndExclusive: uint32(byteOffsets[i]),
			Normalized:       Normalize(raw),
		})
		tokenIndex++
	}

	return spans
}
