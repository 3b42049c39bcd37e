package workflow

import (
	"slices"

	"github.com/bitfantasy/precast/internal/qc/entity"
)

// MergeArrangement orders scheduled pieces by a saved arrangement.
// Saved ids come first in saved order, then scheduled pieces the arrangement
// does not mention, in their scheduled order. Saved ids that are no longer
// scheduled are dropped, so the result is always a permutation of scheduled.
func MergeArrangement(scheduled []entity.Piece, saved []string) []entity.Piece {
	index := make(map[string]int, len(scheduled))
	for i, p := range scheduled {
		if _, dup := index[p.ID]; !dup {
			index[p.ID] = i
		}
	}

	used := make([]bool, len(scheduled))
	out := make([]entity.Piece, 0, len(scheduled))
	for _, id := range saved {
		i, ok := index[id]
		if !ok || used[i] {
			continue
		}
		used[i] = true
		out = append(out, scheduled[i])
	}
	for i, p := range scheduled {
		if !used[i] {
			out = append(out, p)
		}
	}
	return out
}

// MergeIDs is MergeArrangement over bare ids.
func MergeIDs(scheduled, saved []string) []string {
	pieces := make([]entity.Piece, len(scheduled))
	for i, id := range scheduled {
		pieces[i] = entity.Piece{ID: id}
	}
	return PieceIDs(MergeArrangement(pieces, saved))
}

// Move removes the element at src and reinserts it at dst, shifting the
// elements in between. Indices are clamped into range. The input is not modified.
func Move[T any](items []T, src, dst int) []T {
	out := slices.Clone(items)
	n := len(out)
	if n == 0 {
		return out
	}
	src = clamp(src, 0, n-1)
	dst = clamp(dst, 0, n-1)
	if src == dst {
		return out
	}
	item := out[src]
	out = slices.Delete(out, src, src+1)
	return slices.Insert(out, dst, item)
}

// PieceIDs returns the ids of pieces in order.
func PieceIDs(pieces []entity.Piece) []string {
	ids := make([]string, len(pieces))
	for i, p := range pieces {
		ids[i] = p.ID
	}
	return ids
}

func indexOf(pieces []entity.Piece, id string) int {
	return slices.IndexFunc(pieces, func(p entity.Piece) bool { return p.ID == id })
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
