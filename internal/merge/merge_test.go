// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package merge

import (
	"testing"

	"github.com/pdiddy/ground-extract/pkg/types"
)

func ci(start, end uint32) *types.CharInterval {
	return &types.CharInterval{Start: start, End: end}
}

func extAt(class string, start, end uint32) types.Extraction {
	return types.Extraction{Class: class, CharInterval: ci(start, end), AlignmentStatus: types.Exact}
}

func TestMerge_S5_MultiPassNonOverlap(t *testing.T) {
	pass1 := []types.Extraction{extAt("X", 0, 5), extAt("X", 10, 15)}
	pass2 := []types.Extraction{extAt("X", 3, 6), extAt("X", 20, 25)}

	out := Merge([][]types.Extraction{pass1, pass2})
	if len(out) != 3 {
		t.Fatalf("expected 3 extractions, got %d: %+v", len(out), out)
	}
	want := [][2]uint32{{0, 5}, {10, 15}, {20, 25}}
	for i, w := range want {
		if out[i].CharInterval.Start != w[0] || out[i].CharInterval.End != w[1] {
			t.Fatalf("extraction %d: expected {%d,%d}, got %+v", i, w[0], w[1], out[i].CharInterval)
		}
	}
}

func TestMerge_DifferentClassesOverlapIsKept(t *testing.T) {
	pass1 := []types.Extraction{extAt("medication", 0, 10)}
	pass2 := []types.Extraction{extAt("symptom", 2, 8)}

	out := Merge([][]types.Extraction{pass1, pass2})
	if len(out) != 2 {
		t.Fatalf("expected both extractions kept (different classes), got %d: %+v", len(out), out)
	}
}

func TestMerge_ExtractionsWithoutIntervalAlwaysAppended(t *testing.T) {
	unaligned := types.Extraction{Class: "entity", AlignmentStatus: types.Unaligned}
	pass1 := []types.Extraction{extAt("entity", 0, 5)}
	pass2 := []types.Extraction{unaligned, unaligned}

	out := Merge([][]types.Extraction{pass1, pass2})
	if len(out) != 3 {
		t.Fatalf("expected 3 extractions (both unaligned always appended), got %d", len(out))
	}
}

func TestMerge_IdempotentSingleton(t *testing.T) {
	// Invariant 5: merging [L] returns L.
	single := []types.Extraction{extAt("X", 0, 5)}
	out := Merge([][]types.Extraction{single})
	if len(out) != 1 || *out[0].CharInterval != *single[0].CharInterval {
		t.Fatalf("expected merge of a single pass to return it unchanged, got %+v", out)
	}
}

func TestMerge_IdempotentRepeatedPass(t *testing.T) {
	// Invariant 5: merging [L, L] returns L.
	l := []types.Extraction{extAt("X", 0, 5), extAt("X", 10, 15)}
	out := Merge([][]types.Extraction{l, l})
	if len(out) != len(l) {
		t.Fatalf("expected merging a pass against itself to drop every duplicate, got %d extractions: %+v", len(out), out)
	}
	for i := range l {
		if *out[i].CharInterval != *l[i].CharInterval {
			t.Fatalf("extraction %d changed: got %+v, want %+v", i, out[i].CharInterval, l[i].CharInterval)
		}
	}
}

func TestMerge_FirstPassOverlapsKeptWhole(t *testing.T) {
	// Invariant 5: merge([L]) == L, even when L itself contains overlapping
	// same-class extractions (e.g. the aligner emitting both "aspirin" and
	// "aspirin 500mg" from a single pass). The overlap filter only applies
	// to passes after the first.
	single := []types.Extraction{extAt("medication", 14, 21), extAt("medication", 14, 27)}
	out := Merge([][]types.Extraction{single})
	if len(out) != len(single) {
		t.Fatalf("expected the first pass kept whole despite internal overlap, got %d extractions: %+v", len(out), out)
	}
	for i := range single {
		if *out[i].CharInterval != *single[i].CharInterval {
			t.Fatalf("extraction %d changed: got %+v, want %+v", i, out[i].CharInterval, single[i].CharInterval)
		}
	}
}

func TestMerge_NoPasses(t *testing.T) {
	out := Merge(nil)
	if len(out) != 0 {
		t.Fatalf("expected no extractions, got %+v", out)
	}
}

func TestMerge_AdjacentIntervalsDoNotOverlap(t *testing.T) {
	// Half-open intervals sharing a boundary point are not considered to overlap.
	pass1 := []types.Extraction{extAt("X", 0, 5)}
	pass2 := []types.Extraction{extAt("X", 5, 10)}

	out := Merge([][]types.Extraction{pass1, pass2})
	if len(out) != 2 {
		t.Fatalf("expected both adjacent-but-non-overlapping extractions kept, got %d", len(out))
	}
}
