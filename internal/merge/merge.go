// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package merge combines per-pass alignment results for a single chunk into
// one extraction list. Implements spec.md §4.6 (PassMerger, component C6).
package merge

import "github.com/pdiddy/ground-extract/pkg/types"

// Merge combines passes (one []types.Extraction per inference pass, all
// aligned against the same chunk) into a single list. The first pass is the
// baseline and is always kept in full. For each later pass, an extraction is
// appended only if its char interval does not overlap any already-accepted
// extraction of the same class; extractions of a different class, or with
// no char interval at all, are always appended. Output preserves original
// order within each pass and pass order across passes.
func Merge(passes [][]types.Extraction) []types.Extraction {
	if len(passes) == 0 {
		return nil
	}

	var out []types.Extraction
	out = append(out, passes[0]...)

	for _, pass := range passes[1:] {
		for _, ext := range pass {
			if !overlapsAcceptedSameClass(out, ext) {
				out = append(out, ext)
			}
		}
	}
	return out
}

func overlapsAcceptedSameClass(accepted []types.Extraction, candidate types.Extraction) bool {
	if candidate.CharInterval == nil {
		return false
	}
	for _, a := range accepted {
		if a.Class != candidate.Class || a.CharInterval == nil {
			continue
		}
		if a.CharInterval.Overlaps(*candidate.CharInterval) {
			return true
		}
	}
	return false
}
