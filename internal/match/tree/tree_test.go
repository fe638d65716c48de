package tree

import (
	"testing"

	"github.com/ovalle15/matchengine-go/internal/match"
)

func genomicLeaf(key, value string) match.Criterion {
	return match.Criterion{"genomic": map[string]interface{}{key: value}}
}

func clinicalLeaf(key, value string) match.Criterion {
	return match.Criterion{"clinical": map[string]interface{}{key: value}}
}

func TestBuild_EmptyClauseYieldsSinglePath(t *testing.T) {
	tr := Build(match.MatchClause{})
	paths := Enumerate(tr)
	if len(paths) != 1 {
		t.Fatalf("expected 1 path for an empty clause, got %d", len(paths))
	}
	if len(paths[0].Flatten()) != 0 {
		t.Fatalf("expected an empty conjunction, got %v", paths[0].Flatten())
	}
}

func TestBuild_SingleLeaf(t *testing.T) {
	clause := match.MatchClause{genomicLeaf("HUGO_SYMBOL", "BRAF")}
	tr := Build(clause)
	paths := Enumerate(tr)
	if len(paths) != 1 {
		t.Fatalf("expected 1 path, got %d", len(paths))
	}
	leaves := paths[0].Flatten()
	if len(leaves) != 1 || leaves[0].Collection != "genomic" || leaves[0].Values["HUGO_SYMBOL"] != "BRAF" {
		t.Fatalf("unexpected leaves: %+v", leaves)
	}
}

func TestBuild_PureConjunction(t *testing.T) {
	clause := match.MatchClause{
		{"and": []interface{}{
			map[string]interface{}{"clinical": map[string]interface{}{"AGE_NUMERICAL": ">=18"}},
			map[string]interface{}{"genomic": map[string]interface{}{"HUGO_SYMBOL": "EGFR"}},
		}},
	}
	tr := Build(clause)
	paths := Enumerate(tr)
	if len(paths) != 1 {
		t.Fatalf("expected 1 path for a pure conjunction, got %d", len(paths))
	}
	leaves := paths[0].Flatten()
	if len(leaves) != 2 {
		t.Fatalf("expected both clinical and genomic fragments present, got %+v", leaves)
	}
}

func TestBuild_Disjunction(t *testing.T) {
	clause := match.MatchClause{
		{"or": []interface{}{
			map[string]interface{}{"genomic": map[string]interface{}{"HUGO_SYMBOL": "BRAF"}},
			map[string]interface{}{"genomic": map[string]interface{}{"HUGO_SYMBOL": "KRAS"}},
		}},
	}
	tr := Build(clause)
	paths := Enumerate(tr)
	if len(paths) != 2 {
		t.Fatalf("expected 2 paths for a 2-way disjunction, got %d", len(paths))
	}
	for _, p := range paths {
		leaves := p.Flatten()
		if len(leaves) != 1 {
			t.Fatalf("expected each disjunct to be a single-gene fragment, got %+v", leaves)
		}
	}
}

func TestBuild_ConjunctionOfDisjunctions(t *testing.T) {
	// {and: [{or: [A, B]}, {clinical: C}]} -> 2 paths, each with 2 leaves.
	clause := match.MatchClause{
		{"and": []interface{}{
			map[string]interface{}{"or": []interface{}{
				map[string]interface{}{"genomic": map[string]interface{}{"HUGO_SYMBOL": "BRAF"}},
				map[string]interface{}{"genomic": map[string]interface{}{"HUGO_SYMBOL": "KRAS"}},
			}},
			map[string]interface{}{"clinical": map[string]interface{}{"AGE_NUMERICAL": ">=18"}},
		}},
	}
	tr := Build(clause)
	paths := Enumerate(tr)
	if len(paths) != 2 {
		t.Fatalf("expected 2 paths, got %d", len(paths))
	}
	for _, p := range paths {
		if len(p.Flatten()) != 2 {
			t.Fatalf("expected each path to carry both the OR leaf and the root clinical leaf, got %+v", p.Flatten())
		}
	}
}

func TestBuild_SingleItemOrStillSpawnsChildNode(t *testing.T) {
	clause := match.MatchClause{
		{"or": []interface{}{
			map[string]interface{}{"genomic": map[string]interface{}{"HUGO_SYMBOL": "BRAF"}},
		}},
	}
	tr := Build(clause)
	paths := Enumerate(tr)
	if len(paths) != 1 {
		t.Fatalf("expected 1 path for a single-item OR, got %d", len(paths))
	}
	if len(tr.Nodes) != 3 {
		t.Fatalf("expected a dedicated child node even for a single-item OR (root + or-node + leaf), got %d nodes", len(tr.Nodes))
	}
}

func TestBuild_LeafUnderOrSpawnsDedicatedChild(t *testing.T) {
	clause := match.MatchClause{
		{"or": []interface{}{
			map[string]interface{}{"genomic": map[string]interface{}{"HUGO_SYMBOL": "BRAF"}},
			map[string]interface{}{"genomic": map[string]interface{}{"HUGO_SYMBOL": "KRAS"}},
		}},
	}
	tr := Build(clause)
	if len(tr.Nodes[0].CriteriaList) != 0 {
		t.Fatalf("root must stay empty when all criteria are under the OR, got %+v", tr.Nodes[0].CriteriaList)
	}
	if len(tr.Nodes) != 4 {
		t.Fatalf("expected root + or-node + 2 leaf children = 4 nodes, got %d", len(tr.Nodes))
	}
}
