// Package tree converts a MatchClause into a rooted DAG over AND/OR
// operators (Build) and flattens that DAG into independent conjunctive
// MatchPaths (Enumerate).
package tree

import "github.com/ovalle15/matchengine-go/internal/match"

// workItem is one pending (parent node id, criterion) pair in the
// tree-builder's LIFO work list.
type workItem struct {
	parent    int
	criterion match.Criterion
}

// Build converts clause into a MatchTree rooted at node 0. An "and"
// operator never creates a node; it appends to the current conjunctive
// context. An "or" operator allocates a new disjunction node. A leaf
// criterion attaches to the current node unless that node is itself a
// disjunction point, in which case it spawns a dedicated child so OR
// alternatives stay distinct.
func Build(clause match.MatchClause) match.Tree {
	t := match.Tree{Nodes: []match.Node{{CriteriaList: nil, IsOr: false}}}

	var stack []workItem
	for _, c := range clause {
		stack = append(stack, workItem{parent: 0, criterion: c})
	}

	nextID := 1
	for len(stack) > 0 {
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for label, value := range item.criterion {
			switch label {
			case "and":
				for _, sub := range asCriteria(value) {
					stack = append(stack, workItem{parent: item.parent, criterion: sub})
				}
			case "or":
				newID := nextID
				nextID++
				t.Nodes = append(t.Nodes, match.Node{IsOr: true})
				t.Nodes[item.parent].Children = append(t.Nodes[item.parent].Children, newID)
				for _, sub := range asCriteria(value) {
					stack = append(stack, workItem{parent: newID, criterion: sub})
				}
			default:
				leaf := match.Leaf{Collection: label, Values: asValues(value)}
				if t.Nodes[item.parent].IsOr {
					newID := nextID
					nextID++
					t.Nodes = append(t.Nodes, match.Node{CriteriaList: []match.Leaf{leaf}})
					t.Nodes[item.parent].Children = append(t.Nodes[item.parent].Children, newID)
				} else {
					t.Nodes[item.parent].CriteriaList = append(t.Nodes[item.parent].CriteriaList, leaf)
				}
			}
		}
	}

	return t
}

func asCriteria(value interface{}) []match.Criterion {
	items, ok := value.([]interface{})
	if !ok {
		return nil
	}
	out := make([]match.Criterion, 0, len(items))
	for _, raw := range items {
		if m, ok := raw.(map[string]interface{}); ok {
			out = append(out, match.Criterion(m))
		}
	}
	return out
}

func asValues(value interface{}) map[string]interface{} {
	m, _ := value.(map[string]interface{})
	return m
}

// Enumerate collects every root-to-leaf walk of t as a MatchPath: the
// concatenation, root-first, of every node's CriteriaList on that walk.
// A tree with only the root yields a single path containing the root's
// (possibly empty) criteria list.
func Enumerate(t match.Tree) []match.Path {
	var paths []match.Path
	var walk func(nodeID int, acc match.Path)
	walk = func(nodeID int, acc match.Path) {
		node := t.Nodes[nodeID]
		acc = append(acc, node.CriteriaList)
		if len(node.Children) == 0 {
			pathCopy := make(match.Path, len(acc))
			copy(pathCopy, acc)
			paths = append(paths, pathCopy)
			return
		}
		for _, child := range node.Children {
			walk(child, acc)
		}
	}
	walk(0, nil)
	return paths
}
