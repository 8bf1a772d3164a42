package traceability

import (
	"cmp"
	"slices"
	"strings"

	"github.com/wagnerlima/memory-cloud/traceability-mcp/internal/models"
)

// inHierarchy reports whether a node takes part in at least one parent/child
// relationship.
func inHierarchy(n models.RequirementNode) bool {
	return n.HasChildren || n.Depth > 0
}

// Filter drops orphan nodes: roots that have no children.
func Filter(nodes []models.RequirementNode) []models.RequirementNode {
	kept := make([]models.RequirementNode, 0, len(nodes))
	for _, n := range nodes {
		if inHierarchy(n) {
			kept = append(kept, n)
		}
	}
	return kept
}

// Order arranges nodes in pre-order so that every node comes after its
// ancestors and before its descendants. Parent links come from ParentID; Path
// is only used to order siblings. A node whose parent is not in the set starts
// its own subtree.
func Order(nodes []models.RequirementNode) []models.RequirementNode {
	byID := make(map[string][]int, len(nodes))
	for i, n := range nodes {
		byID[n.RequirementID] = append(byID[n.RequirementID], i)
	}

	children := make(map[int][]int, len(nodes))
	var roots []int
	for i := range nodes {
		p, ok := parentIndex(nodes, byID, i)
		if !ok {
			roots = append(roots, i)
			continue
		}
		children[p] = append(children[p], i)
	}

	bySibling := func(a, b int) int { return compareSiblings(nodes[a], nodes[b]) }
	slices.SortStableFunc(roots, bySibling)
	for _, kids := range children {
		slices.SortStableFunc(kids, bySibling)
	}

	out := make([]models.RequirementNode, 0, len(nodes))
	visited := make([]bool, len(nodes))
	var stack []int
	for _, r := range roots {
		stack = append(stack[:0], r)
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if visited[i] {
				continue
			}
			visited[i] = true
			out = append(out, nodes[i])

			kids := children[i]
			for k := len(kids) - 1; k >= 0; k-- {
				if !visited[kids[k]] {
					stack = append(stack, kids[k])
				}
			}
		}
	}

	// Only reachable when upstream data contains a parent cycle.
	if len(out) < len(nodes) {
		var rest []int
		for i := range nodes {
			if !visited[i] {
				rest = append(rest, i)
			}
		}
		slices.SortStableFunc(rest, bySibling)
		for _, i := range rest {
			out = append(out, nodes[i])
		}
	}
	return out
}

// parentIndex finds the row acting as parent of nodes[i]. When the same
// requirement appears more than once, the occurrence one level up wins.
func parentIndex(nodes []models.RequirementNode, byID map[string][]int, i int) (int, bool) {
	n := nodes[i]
	if n.ParentID == "" || n.ParentID == n.RequirementID {
		return 0, false
	}
	candidates := byID[n.ParentID]
	if len(candidates) == 0 {
		return 0, false
	}
	for _, c := range candidates {
		if nodes[c].Depth == n.Depth-1 {
			return c, true
		}
	}
	return candidates[0], true
}

func compareSiblings(a, b models.RequirementNode) int {
	return cmp.Or(
		cmp.Compare(a.Path, b.Path),
		cmp.Compare(a.Title, b.Title),
		cmp.Compare(a.RequirementID, b.RequirementID),
	)
}

// Render produces the ASCII hierarchy view, one line per node.
func Render(nodes []models.RequirementNode) []string {
	lines := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if n.IsRoot() {
			lines = append(lines, "ROOT: "+n.DisplayTitle())
			continue
		}
		lines = append(lines, strings.Repeat("  ", n.Depth)+"+-- "+n.DisplayTitle())
	}
	return lines
}

// Summarize computes hierarchy statistics. all is the fetched set, kept the
// filtered one. QueryTimeMS is left to the caller.
func Summarize(all, kept []models.RequirementNode) Metadata {
	m := Metadata{
		TotalNodes:               len(kept),
		AllNodesIncludingOrphans: len(all),
		OrphanNodes:              len(all) - len(kept),
	}
	for _, n := range kept {
		if n.IsRoot() {
			m.RootNodes++
		} else {
			m.Relationships++
		}
		m.MaxDepth = max(m.MaxDepth, n.Depth)
	}
	return m
}

func relationships(tree []models.RequirementNode) int {
	count := 0
	for _, n := range tree {
		if !n.IsRoot() {
			count++
		}
	}
	return count
}
