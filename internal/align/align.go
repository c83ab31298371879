// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package align maps candidate extraction text back onto a char interval of
// its source chunk using a three-tier strategy (exact, fuzzy, lesser).
// Implements spec.md §4.5 (Aligner, component C5) — the heart of the core.
package align

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/pdiddy/ground-extract/internal/normalize"
	"github.com/pdiddy/ground-extract/internal/tokenize"
	"github.com/pdiddy/ground-extract/pkg/types"
)

// dmp is reused across alignment calls; it holds only tunable defaults, not
// per-call state, so a package-level singleton is safe to share (mirrors
// the single reusable diff engine other corpus code keeps around).
var dmp = newDMP()

func newDMP() *diffmatchpatch.DiffMatchPatch {
	d := diffmatchpatch.New()
	d.DiffTimeout = 0
	return d
}

// Options configures the three-tier strategy. Field names mirror the
// PipelineConfig option table in spec.md §6.
type Options struct {
	FuzzyThreshold  float64
	LesserThreshold float64
	AcceptLesser    bool
	FuzzySlack      float64
	AttributeSuffix string
}

// Align assigns char_interval, token_interval, and alignment_status to each
// proto-extraction against sourceTokens (one chunk's TokenSpans), in
// emission order. Attribute extractions (class ends with
// opts.AttributeSuffix, or empty text) never run the matching strategy;
// they inherit their span from the most recent preceding non-attribute
// extraction sharing the same group_index (§4.5).
func Align(protos []normalize.ProtoExtraction, sourceTokens []types.TokenSpan, opts Options) []types.Extraction {
	source := make([]string, len(sourceTokens))
	for i, t := range sourceTokens {
		source[i] = t.Normalized
	}

	out := make([]types.Extraction, len(protos))
	parentByGroup := map[uint32]types.Extraction{}

	for i, p := range protos {
		if isAttributeExtraction(p, opts.AttributeSuffix) {
			out[i] = inheritFromParent(p, i, parentByGroup)
			continue
		}

		query := queryTokensOf(p.Text)
		charInterval, tokenInterval, status := alignOne(query, source, sourceTokens, opts)

		ext := types.Extraction{
			Class:           p.Class,
			Text:            p.Text,
			Attributes:      p.Attributes,
			AlignmentStatus: status,
			GroupIndex:      p.GroupIndex,
		}
		if status != types.Unaligned {
			ci, ti := charInterval, tokenInterval
			ext.CharInterval = &ci
			ext.TokenInterval = &ti
		}
		ext.SetEmissionIndex(i)
		out[i] = ext
		parentByGroup[p.GroupIndex] = ext
	}

	return out
}

func isAttributeExtraction(p normalize.ProtoExtraction, suffix string) bool {
	return p.Text == "" || (suffix != "" && strings.HasSuffix(p.Class, suffix))
}

func inheritFromParent(p normalize.ProtoExtraction, emissionIndex int, byGroup map[uint32]types.Extraction) types.Extraction {
	ext := types.Extraction{
		Class:      p.Class,
		Text:       p.Text,
		Attributes: p.Attributes,
		GroupIndex: p.GroupIndex,
	}
	ext.SetEmissionIndex(emissionIndex)

	parent, ok := byGroup[p.GroupIndex]
	if !ok {
		ext.AlignmentStatus = types.Unaligned
		return ext
	}

	ext.CharInterval = parent.CharInterval
	ext.TokenInterval = parent.TokenInterval
	if parent.AlignmentStatus == types.Exact {
		ext.AlignmentStatus = types.Exact
	} else {
		ext.AlignmentStatus = parent.AlignmentStatus
	}
	return ext
}

func queryTokensOf(text string) []string {
	spans := tokenize.Tokenize(text)
	out := make([]string, len(spans))
	for i, s := range spans {
		out[i] = s.Normalized
	}
	return out
}

// alignOne runs the three-tier strategy for one query against source,
// returning the winning interval and status (UNALIGNED if none tier hits).
func alignOne(query, source []string, sourceTokens []types.TokenSpan, opts Options) (types.CharInterval, types.TokenInterval, types.AlignmentStatus) {
	n := len(query)
	if n == 0 || len(source) == 0 {
		return types.CharInterval{}, types.TokenInterval{}, types.Unaligned
	}

	if start, ok := findExact(query, source); ok {
		ci, ti := spanInterval(sourceTokens, start, start+n)
		return ci, ti, types.Exact
	}

	// FUZZY and LESSER fold a token's single trailing plural "s" so
	// "chairs" and "chair" count as the same unit — both for the Counter
	// prefilter and for LCS-block scoring. EXACT above stays on raw
	// normalized tokens so its "verbatim" guarantee (invariant 3) holds.
	fuzzyQuery := foldTokens(query)
	fuzzySource := foldTokens(source)

	if start, w, ok := findFuzzy(fuzzyQuery, fuzzySource, opts); ok {
		ci, ti := spanInterval(sourceTokens, start, start+w)
		return ci, ti, types.Fuzzy
	}

	if opts.AcceptLesser {
		if start, w, ok := findLesser(fuzzyQuery, fuzzySource, opts); ok {
			ci, ti := spanInterval(sourceTokens, start, start+w)
			return ci, ti, types.Lesser
		}
	}

	return types.CharInterval{}, types.TokenInterval{}, types.Unaligned
}

// findExact finds the smallest-indexed contiguous source position whose
// normalized tokens equal query verbatim (§4.5 tier 1).
func findExact(query, source []string) (int, bool) {
	n := len(query)
	for i := 0; i+n <= len(source); i++ {
		if tokensEqual(source[i:i+n], query) {
			return i, true
		}
	}
	return 0, false
}

func tokensEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// findFuzzy scans windows of size w in [ceil(n*(1-slack)), ceil(n*(1+slack))]
// (clamped to the source length), prefiltering with a cheap Counter
// intersection before scoring survivors with an LCS-block ratio (§4.5
// tier 2).
func findFuzzy(query, source []string, opts Options) (start, size int, ok bool) {
	n := len(query)
	slack := opts.FuzzySlack

	wMin := maxInt(1, ceilRatio(n, 1-slack))
	wMax := minInt(len(source), ceilRatio(n, 1+slack))
	if wMin > wMax {
		return 0, 0, false
	}

	required := ceilRatio(n, opts.FuzzyThreshold)
	queryCounts := counterOf(query)

	bestRatio := -1.0
	bestStart, bestSize := -1, math.MaxInt32

	for w := wMin; w <= wMax; w++ {
		if w > len(source) {
			break
		}
		windowCounts := map[string]int{}
		intersection := 0
		for j := 0; j < w; j++ {
			addToken(source[j], queryCounts, windowCounts, &intersection)
		}

		for s := 0; s+w <= len(source); s++ {
			if s > 0 {
				removeToken(source[s-1], queryCounts, windowCounts, &intersection)
				addToken(source[s+w-1], queryCounts, windowCounts, &intersection)
			}
			if intersection < required {
				continue
			}
			matched := lcsBlockCount(query, source[s:s+w])
			ratio := float64(matched) / float64(n)
			if ratio < opts.FuzzyThreshold {
				continue
			}
			if betterFuzzyCandidate(ratio, w, s, bestRatio, bestSize, bestStart) {
				bestRatio, bestSize, bestStart = ratio, w, s
			}
		}
	}

	if bestStart < 0 {
		return 0, 0, false
	}
	return bestStart, bestSize, true
}

// betterFuzzyCandidate implements the (ratio, -window_size, window_start)
// preference order from §4.5: higher ratio wins; ties prefer the shorter
// window, then the earlier start.
func betterFuzzyCandidate(ratio float64, w, start int, bestRatio float64, bestW, bestStart int) bool {
	if ratio != bestRatio {
		return ratio > bestRatio
	}
	if w != bestW {
		return w < bestW
	}
	return start < bestStart
}

// findLesser searches, in increasing window size, for the shortest source
// window whose subsequence match against query reaches
// ceil(min(n, w)*lesser_threshold) tokens — the case where the extraction
// text is a paraphrased superset of a shorter source span (§4.5 tier 3).
// The required count scales with min(n, w) rather than n alone so a short
// window isn't held to a threshold computed against a much longer query
// (e.g. one real token matching inside a 1-token window is a full 100%
// window match even though the query itself has several tokens).
func findLesser(query, source []string, opts Options) (start, size int, ok bool) {
	n := len(query)
	for w := 1; w <= len(source); w++ {
		required := maxInt(1, ceilRatio(minInt(n, w), opts.LesserThreshold))
		for s := 0; s+w <= len(source); s++ {
			matched := lcsBlockCount(query, source[s:s+w])
			if matched >= required {
				return s, w, true
			}
		}
	}
	return 0, 0, false
}

// fuzzyKey folds a single trailing plural "s" off a normalized token for
// fuzzy/lesser-tier comparisons only (§4.5's own example is the
// chair/chairs singular-plural case). Short tokens and tokens already
// ending in a double "s" are left alone to avoid folding unrelated words.
func fuzzyKey(tok string) string {
	if len(tok) > 3 && strings.HasSuffix(tok, "s") && !strings.HasSuffix(tok, "ss") {
		return tok[:len(tok)-1]
	}
	return tok
}

func foldTokens(toks []string) []string {
	out := make([]string, len(toks))
	for i, t := range toks {
		out[i] = fuzzyKey(t)
	}
	return out
}

// lcsBlockCount returns the number of query tokens that participate in the
// longest common subsequence between query and window, computed by
// rune-encoding each distinct normalized token (one private rune per
// distinct token, shared across both sequences) and summing the lengths of
// the resulting diff's equal runs — the same "replace the manual LCS
// implementation with a battle-tested diff engine" move, applied to token
// streams instead of text lines.
func lcsBlockCount(query, window []string) int {
	if len(query) == 0 || len(window) == 0 {
		return 0
	}
	qRunes, wRunes := encodeTokenPair(query, window)
	diffs := dmp.DiffMain(string(qRunes), string(wRunes), false)
	matched := 0
	for _, d := range diffs {
		if d.Type == diffmatchpatch.DiffEqual {
			matched += utf8.RuneCountInString(d.Text)
		}
	}
	return matched
}

func encodeTokenPair(a, b []string) ([]rune, []rune) {
	index := map[string]rune{}
	var next rune
	encode := func(toks []string) []rune {
		out := make([]rune, len(toks))
		for i, t := range toks {
			r, ok := index[t]
			if !ok {
				r = next
				index[t] = r
				next++
			}
			out[i] = r
		}
		return out
	}
	return encode(a), encode(b)
}

func counterOf(toks []string) map[string]int {
	c := make(map[string]int, len(toks))
	for _, t := range toks {
		c[t]++
	}
	return c
}

// addToken/removeToken maintain a running multiset intersection size as a
// window slides, so the cheap filter stays O(1) amortized per token instead
// of recomputing the intersection from scratch for every window (§4.5's
// stated O(S·n) bound is an upper bound, not a requirement to hit it).
func addToken(t string, queryCounts, windowCounts map[string]int, intersection *int) {
	if windowCounts[t] < queryCounts[t] {
		*intersection++
	}
	windowCounts[t]++
}

func removeToken(t string, queryCounts, windowCounts map[string]int, intersection *int) {
	windowCounts[t]--
	if windowCounts[t] < queryCounts[t] {
		*intersection--
	}
}

func spanInterval(sourceTokens []types.TokenSpan, start, end int) (types.CharInterval, types.TokenInterval) {
	return types.CharInterval{Start: sourceTokens[start].CharStart, End: sourceTokens[end-1].CharEndExclusive},
		types.TokenInterval{Start: uint32(start), End: uint32(end)}
}

func ceilRatio(n int, ratio float64) int {
	return int(math.Ceil(float64(n) * ratio))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
