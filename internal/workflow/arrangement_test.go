package workflow

import (
	"math/rand"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestMergeIDs(t *testing.T) {
	tests := []struct {
		name      string
		scheduled []string
		saved     []string
		want      []string
	}{
		{"no saved order", []string{"P1", "P2", "P3"}, nil, []string{"P1", "P2", "P3"}},
		{"full saved order", []string{"P1", "P2", "P3"}, []string{"P2", "P1", "P3"}, []string{"P2", "P1", "P3"}},
		{"new pieces appended in schedule order", []string{"P1", "P2", "P3", "P4"}, []string{"P3", "P1"}, []string{"P3", "P1", "P2", "P4"}},
		{"unscheduled ids dropped", []string{"P1", "P2"}, []string{"P9", "P2", "P1"}, []string{"P2", "P1"}},
		{"duplicates ignored", []string{"P1", "P2"}, []string{"P2", "P2", "P1"}, []string{"P2", "P1"}},
		{"nothing scheduled", nil, []string{"P1"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MergeIDs(tt.scheduled, tt.saved)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("MergeIDs() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMergeIsPermutationOfSchedule(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for round := 0; round < 200; round++ {
		n := r.Intn(12)
		scheduled := make([]string, n)
		for i := range scheduled {
			scheduled[i] = string(rune('A' + i))
		}
		var saved []string
		for _, i := range r.Perm(n + 3) {
			if r.Intn(3) > 0 {
				saved = append(saved, string(rune('A'+i)))
			}
		}

		got := MergeIDs(scheduled, saved)

		sortedGot := slices.Clone(got)
		slices.Sort(sortedGot)
		require.Equal(t, scheduled, append([]string{}, sortedGot...), "not a permutation: %v", got)

		// saved members come first, in saved order
		head := []string{}
		for _, id := range saved {
			if slices.Contains(scheduled, id) && !slices.Contains(head, id) {
				head = append(head, id)
			}
		}
		require.Equal(t, head, append([]string{}, got[:len(head)]...))

		// the rest keep schedule order
		tail := []string{}
		for _, id := range scheduled {
			if !slices.Contains(head, id) {
				tail = append(tail, id)
			}
		}
		require.Equal(t, tail, append([]string{}, got[len(head):]...))
	}
}

func TestMove(t *testing.T) {
	in := []string{"A", "B", "C", "D"}
	require.Equal(t, []string{"B", "C", "A", "D"}, Move(in, 0, 2))
	require.Equal(t, []string{"D", "A", "B", "C"}, Move(in, 3, 0))
	require.Equal(t, []string{"A", "B", "C", "D"}, Move(in, 1, 1))
	require.Equal(t, []string{"B", "C", "D", "A"}, Move(in, -5, 99), "indices are clamped")
	require.Equal(t, []string{"A", "B", "C", "D"}, in, "input must not be modified")
	require.Empty(t, Move([]string{}, 0, 1))
}
