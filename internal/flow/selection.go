package flow

import (
	"strconv"
	"strings"
)

// parseSelection parses a comma-separated selection against a menu of n
// entries and returns the chosen 1-based indices in input order.
//
// The select-all token short-circuits to every entry regardless of
// co-occurring tokens. Otherwise every token must parse as an integer in
// [1, n]; any failure invalidates the whole input.
func parseSelection(input string, n int) ([]int, bool) {
	tokens := strings.Split(input, ",")
	for i := range tokens {
		tokens[i] = strings.TrimSpace(tokens[i])
	}

	for _, tok := range tokens {
		if tok == selectAllToken {
			all := make([]int, n)
			for i := range all {
				all[i] = i + 1
			}
			return all, true
		}
	}

	var indices []int
	for _, tok := range tokens {
		v, err := strconv.Atoi(tok)
		if err != nil || v < 1 || v > n {
			return nil, false
		}
		indices = append(indices, v)
	}
	if len(indices) == 0 {
		return nil, false
	}
	return indices, true
}

// pick maps 1-based indices to their catalog names, preserving selection
// order.
func pick(names []string, indices []int) []string {
	out := make([]string, len(indices))
	for i, idx := range indices {
		out[i] = names[idx-1]
	}
	return out
}
