package match

import (
	"sort"

	"mediadupes/internal/models"
)

// GroupPairs clusters duplicate pairs into connected groups. Groups are
// ordered by their first pair in the input, so sorted input yields the
// most confident group first. Ids inside a group are sorted.
func GroupPairs(pairs []models.DuplicatePair) []models.DuplicateGroup {
	if len(pairs) == 0 {
		return nil
	}

	index := make(map[string]int)
	var ids []string
	indexOf := func(id string) int {
		if i, ok := index[id]; ok {
			return i
		}
		index[id] = len(ids)
		ids = append(ids, id)
		return index[id]
	}
	for _, p := range pairs {
		indexOf(p.IDA)
		indexOf(p.IDB)
	}

	uf := newUnionFind(len(ids))
	for _, p := range pairs {
		uf.union(index[p.IDA], index[p.IDB])
	}

	// Group ids and pairs by root, in order of first appearance
	var order []int
	byRoot := make(map[int]*models.DuplicateGroup)
	for _, p := range pairs {
		root := uf.find(index[p.IDA])
		g, ok := byRoot[root]
		if !ok {
			g = &models.DuplicateGroup{}
			byRoot[root] = g
			order = append(order, root)
		}
		g.Pairs = append(g.Pairs, p)
	}
	for i, id := range ids {
		g := byRoot[uf.find(i)]
		g.IDs = append(g.IDs, id)
	}

	groups := make([]models.DuplicateGroup, 0, len(order))
	for n, root := range order {
		g := byRoot[root]
		g.ID = n + 1
		sort.Strings(g.IDs)
		groups = append(groups, *g)
	}
	return groups
}

// Union-Find data structure for efficient grouping
type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	rank := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &unionFind{parent: parent, rank: rank}
}

func (uf *unionFind) find(x int) int {
	if uf.parent[x] != x {
		uf.parent[x] = uf.find(uf.parent[x]) // Path compression
	}
	return uf.parent[x]
}

func (uf *unionFind) union(x, y int) {
	px, py := uf.find(x), uf.find(y)
	if px == py {
		return
	}
	// Union by rank
	if uf.rank[px] < uf.rank[py] {
		px, py = py, px
	}
	uf.parent[py] = px
	if uf.rank[px] == uf.rank[py] {
		uf.rank[px]++
	}
}
