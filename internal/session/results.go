package session

import (
	"sort"
	"strings"
)

// ReconstructText concatenates chunk text ordered by ascending sequence
// number, joined by single spaces. Sequence numbers with no entry (failed or
// still-pending chunks) are skipped. The function is pure and may be called
// at any time, including before all chunks resolve.
func ReconstructText(results map[int]string) string {
	if len(results) == 0 {
		return ""
	}

	seqs := make([]int, 0, len(results))
	for seq := range results {
		seqs = append(seqs, seq)
	}
	sort.Ints(seqs)

	parts := make([]string, 0, len(seqs))
	for _, seq := range seqs {
		if text := strings.TrimSpace(results[seq]); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}
