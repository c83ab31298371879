// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package chunk partitions a document into token-aligned chunks bounded by
// a maximum size, respecting word boundaries. Implements spec.md §4.2
// (Chunker, component C2).
package chunk

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pdiddy/ground-extract/internal/tokenize"
	"github.com/pdiddy/ground-extract/pkg/types"
)

// boundaryFraction is the trailing fraction of a chunk's span within which
// a sentence boundary is preferred over the full greedy extent. Per §4.2.
const boundaryFraction = 0.15

// Split partitions doc into chunks no wider than maxChars (and, if
// maxTokens > 0, no more than maxTokens tokens), preferring sentence
// boundaries near the end of each chunk's span. Returns the chunks plus any
// warnings (e.g. a single token wider than maxChars forced into its own
// chunk). Per §4.2: chunks never overlap and never split inside a token.
func Split(doc types.Document, maxChars, maxTokens int) ([]types.Chunk, []string, error) {
	if maxChars <= 0 {
		return nil, nil, types.NewInvalidInputError(fmt.Sprintf("max_chars must be > 0, got %d", maxChars), nil)
	}

	tokens := tokenize.Tokenize(doc.Text)
	if len(tokens) == 0 {
		return nil, nil, nil
	}

	var chunks []types.Chunk
	var warnings []string
	chunkIndex := 0
	i := 0

	for i < len(tokens) {
		start := i
		startChar := int(tokens[start].CharStart)

		// A single token wider than maxChars forms its own chunk.
		if int(tokens[start].CharEndExclusive)-startChar > maxChars {
			warnings = append(warnings, fmt.Sprintf(
				"token %d (%q) is %d chars, exceeding max_char_buffer %d; emitted as its own chunk",
				start, doc.Text[tokens[start].CharStart:tokens[start].CharEndExclusive],
				int(tokens[start].CharEndExclusive)-startChar, maxChars))
			end := start + 1
			chunks = append(chunks, buildChunk(doc, tokens, start, end, chunkIndex))
			chunkIndex++
			i = end
			continue
		}

		j := start
		for j < len(tokens) {
			width := int(tokens[j].CharEndExclusive) - startChar
			if width > maxChars {
				break
			}
			if maxTokens > 0 && (j-start+1) > maxTokens {
				break
			}
			j++
		}

		end := preferSentenceBoundary(doc.Text, tokens, start, j)
		chunks = append(chunks, buildChunk(doc, tokens, start, end, chunkIndex))
		chunkIndex++
		i = end
	}

	return chunks, warnings, nil
}

func buildChunk(doc types.Document, tokens []types.TokenSpan, start, end, chunkIndex int) types.Chunk {
	charStart := tokens[start].CharStart
	charEnd := tokens[end-1].CharEndExclusive
	chunkTokens := make([]types.TokenSpan, end-start)
	copy(chunkTokens, tokens[start:end])
	text := doc.Text[charStart:charEnd]
	return types.Chunk{
		DocumentID:         doc.ID,
		ChunkIndex:         chunkIndex,
		TokenInterval:      types.TokenInterval{Start: uint32(start), End: uint32(end)},
		CharInterval:       types.CharInterval{Start: charStart, End: charEnd},
		Text:               text,
		Tokens:             chunkTokens,
		SanitizedForPrompt: sanitizeForPrompt(text),
	}
}

// sanitizeForPrompt strips NUL bytes and other non-printing control
// characters (besides newline/carriage-return/tab) from a chunk's text
// before it is sent to the model. Text itself stays byte-exact so the
// Aligner keeps matching char offsets against the original document;
// SanitizedForPrompt is only ever read by PromptBuilder.
func sanitizeForPrompt(s string) string {
	if s == "" {
		return s
	}
	s = strings.ReplaceAll(s, "\x00", "")

	r := make([]rune, 0, len(s))
	for _, ch := range s {
		if ch == '\n' || ch == '\r' || ch == '\t' {
			r = append(r, ch)
			continue
		}
		if ch < 0x20 {
			continue
		}
		r = append(r, ch)
	}
	return string(r)
}

// preferSentenceBoundary looks, among token boundaries in (start, fullEnd],
// for the latest one that both falls within the trailing boundaryFraction
// of the chunk's char span and ends a sentence (terminal punctuation
// followed by whitespace or end of text). Falls back to fullEnd when no
// such boundary exists.
func preferSentenceBoundary(text string, tokens []types.TokenSpan, start, fullEnd int) int {
	if fullEnd <= start+1 {
		return fullEnd
	}

	spanStart := int(tokens[start].CharStart)
	spanEnd := int(tokens[fullEnd-1].CharEndExclusive)
	threshold := spanEnd - int(boundaryFraction*float64(spanEnd-spanStart))

	best := -1
	for k := start + 1; k <= fullEnd; k++ {
		tok := tokens[k-1]
		if int(tok.CharEndExclusive) < threshold {
			continue
		}
		raw := text[tok.CharStart:tok.CharEndExclusive]
		if !isSentenceTerminal(raw) {
			continue
		}
		if !followedByWhitespaceOrEnd(text, int(tok.CharEndExclusive)) {
			continue
		}
		best = k
	}
	if best >= 0 {
		return best
	}
	return fullEnd
}

func isSentenceTerminal(tok string) bool {
	return tok == "." || tok == "!" || tok == "?"
}

func followedByWhitespaceOrEnd(text string, pos int) bool {
	if pos >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[pos:])
	return unicode.IsSpace(r)
}
