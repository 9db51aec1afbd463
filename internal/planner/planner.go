// Package planner batches chunks into question-generation requests.
package planner

import (
	"errors"
	"sort"

	"github.com/dgallion1/docset/internal/chunker"
)

var (
	ErrNoChunks     = errors.New("planner: no chunks")
	ErrInvalidTotal = errors.New("planner: total questions must be at least 1")
)

// Group is one question-generation request unit.
type Group struct {
	ChunkIDs  []string        `json:"chunk_ids"`
	Chunks    []chunker.Chunk `json:"-"`
	Questions int             `json:"questions"`
}

// Plan assigns chunks to groups and spreads total questions across them.
//
// When total >= len(chunks), every chunk gets its own group and the remaining
// budget adds windows of two or three adjacent chunks, spread evenly over the
// document. When total is smaller, the chunks are partitioned into total
// contiguous groups of near-equal size. Counts are split evenly with the
// remainder going to the earliest groups.
//
// Groups hold at most three chunks as long as len(chunks) <= 3*total. Beyond
// that, covering every chunk with at most total groups of at least one
// question each needs larger groups, so the partition grows to
// ceil(len(chunks)/total) chunks per group and no single-chunk groups remain.
// Coverage and the exact question count take precedence over the size cap.
func Plan(chunks []chunker.Chunk, total int) ([]Group, error) {
	if total < 1 {
		return nil, ErrInvalidTotal
	}
	if len(chunks) == 0 {
		return nil, ErrNoChunks
	}

	var ranges []window
	if n := len(chunks); total >= n {
		ranges = withWindows(n, total-n)
	} else {
		ranges = partition(n, total)
	}

	groups := make([]Group, len(ranges))
	base, extra := total/len(ranges), total%len(ranges)
	for i, w := range ranges {
		members := chunks[w.first : w.first+w.size]
		ids := make([]string, len(members))
		for j, c := range members {
			ids[j] = c.ID
		}
		q := base
		if i < extra {
			q++
		}
		groups[i] = Group{ChunkIDs: ids, Chunks: members, Questions: q}
	}
	return groups, nil
}

type window struct {
	first, size int
}

func withWindows(n, budget int) []window {
	out := make([]window, 0, n+budget)
	for i := 0; i < n; i++ {
		out = append(out, window{first: i, size: 1})
	}
	m := min(budget, n-1)
	for k := 0; k < m; k++ {
		first := k * (n - 1) / m
		size := 2
		if k%2 == 1 && first+3 <= n {
			size = 3
		}
		out = append(out, window{first: first, size: size})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].first != out[j].first {
			return out[i].first < out[j].first
		}
		return out[i].size < out[j].size
	})
	return out
}

func partition(n, groups int) []window {
	out := make([]window, 0, groups)
	base, extra := n/groups, n%groups
	first := 0
	for i := 0; i < groups; i++ {
		size := base
		if i < extra {
			size++
		}
		out = append(out, window{first: first, size: size})
		first += size
	}
	return out
}
