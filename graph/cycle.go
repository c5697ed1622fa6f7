package graph

import (
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Cycle is a closed walk of token indices t0..tk,t0.
type Cycle []int

// Hops returns the number of edges in the cycle.
func (c Cycle) Hops() int {
	if len(c) < 2 {
		return 0
	}
	return len(c) - 1
}

// Closed reports whether the walk returns to its first token and visits no
// other token twice.
func (c Cycle) Closed() bool {
	if len(c) < 3 || c[0] != c[len(c)-1] {
		return false
	}
	seen := make(map[int]struct{}, len(c))
	for _, t := range c[:len(c)-1] {
		if _, dup := seen[t]; dup {
			return false
		}
		seen[t] = struct{}{}
	}
	return true
}

// IDs maps the cycle onto token identities.
func (c Cycle) IDs(s *Snapshot) []string {
	out := make([]string, len(c))
	for i, t := range c {
		out[i] = s.tokens[t].ID
	}
	return out
}

// PathKey returns an identity for a closed token path that does not depend on
// which member token the path starts at. A->B->C->A and B->C->A->B share a key;
// the reverse direction does not.
func PathKey(path []string) uint64 {
	n := len(path)
	if n > 1 && path[0] == path[n-1] {
		n--
	}
	if n == 0 {
		return 0
	}
	body := path[:n]

	start := 0
	for i := 1; i < n; i++ {
		if body[i] < body[start] {
			start = i
		}
	}

	var sb strings.Builder
	for i := 0; i < n; i++ {
		sb.WriteString(body[(start+i)%n])
		sb.WriteByte(0)
	}
	return xxhash.Sum64String(sb.String())
}
