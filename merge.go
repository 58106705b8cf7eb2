package hooq

// MergeQueryTrees combines several query definition trees into one.
// Nested maps are merged recursively; when the same path holds a leaf in
// more than one tree, the later tree wins. Inputs are not modified.
func MergeQueryTrees(trees ...QueryTree) QueryTree {
	out := make(QueryTree)
	for _, t := range trees {
		mergeTree(out, t)
	}
	return out
}

// MergeMutationTrees combines several mutation definition trees into one,
// with the same semantics as MergeQueryTrees.
func MergeMutationTrees(trees ...MutationTree) MutationTree {
	out := make(MutationTree)
	for _, t := range trees {
		mergeTree(out, t)
	}
	return out
}

func mergeTree(dst, src map[string]any) {
	for key, node := range src {
		sub, ok := subTree(node)
		if !ok {
			// Leaf (or anything non-tree): later tree wins.
			dst[key] = node
			continue
		}
		existing, ok := subTree(dst[key])
		if !ok {
			existing = make(map[string]any)
		}
		merged := make(map[string]any, len(existing)+len(sub))
		mergeTree(merged, existing)
		mergeTree(merged, sub)
		dst[key] = merged
	}
}

// subTree reports whether node is a nested tree. Definition leaves are
// *Query/*Mutation values, so every map shape counts as a subtree.
func subTree(node any) (map[string]any, bool) {
	switch n := node.(type) {
	case QueryTree:
		return n, true
	case MutationTree:
		return n, true
	case map[string]any:
		return n, true
	}
	return nil, false
}
