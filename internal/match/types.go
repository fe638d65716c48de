// Package match defines the shared data model that flows between the
// clause extractor, tree builder, path enumerator, query translator, and
// query executor: the trial document shape, the clause/tree/path types,
// and the multi-collection query and result types they produce.
package match

// Trial is an opaque, schema-less trial curation document as read from the
// document store. The engine only recognizes the structural keys named in
// the package doc of internal/match/clause.
type Trial map[string]interface{}

// ProtocolNo returns the trial's protocol_no field, or "" if absent.
func (t Trial) ProtocolNo() string {
	s, _ := t["protocol_no"].(string)
	return s
}

// Status returns the trial's status field, or "" if absent.
func (t Trial) Status() string {
	s, _ := t["status"].(string)
	return s
}

// Level is the deepest non-integer ancestor key of a match clause.
type Level string

const (
	LevelStep     Level = "step"
	LevelArm      Level = "arm"
	LevelDose     Level = "dose"
	LevelTopLevel Level = "top-level"
)

// ParentPath records the structural ancestors of a clause: alternating
// key names (string) and list indices (int).
type ParentPath []interface{}

// Criterion is one item of a MatchClause: exactly one of "and", "or",
// "genomic", or "clinical" is set, matching the curation's own shape.
type Criterion map[string]interface{}

// MatchClause is the ordered sequence of criterion items attached to one
// step/arm/dose (or, per the suspended top-level rule, never attached to
// the trial root).
type MatchClause []Criterion

// MatchClauseData bundles one extracted clause with its structural
// provenance and the ambient sibling attributes to stamp onto emitted
// matches.
type MatchClauseData struct {
	Clause     MatchClause
	ParentPath ParentPath
	Level      Level
	Ambient    map[string]interface{}
}

// Leaf is a single clinical/genomic criterion: the collection it targets
// ("clinical" or "genomic") and its curation key/value pairs.
type Leaf struct {
	Collection string
	Values     map[string]interface{}
}

// Node is one vertex of a MatchTree: an ordered list of leaf criteria
// attached at that node (the node's conjunctive context), whether the
// node is a disjunction point, and its children.
type Node struct {
	CriteriaList []Leaf
	IsOr         bool
	Children     []int
}

// Tree is the arena-backed DAG produced by the tree builder: stable
// integer node ids index directly into Nodes, with node 0 as the root.
type Tree struct {
	Nodes []Node
}

// Path is one root-to-leaf walk of a Tree: the concatenation, root-first,
// of every node's CriteriaList along that walk. It represents one
// conjunctive conjunction of the clause's criteria.
type Path [][]Leaf

// Flatten returns every Leaf on the path in root-first order.
func (p Path) Flatten() []Leaf {
	var out []Leaf
	for _, node := range p {
		out = append(out, node...)
	}
	return out
}

// QueryFragment is an AND-combined map of schema keys to query values for
// one collection, e.g. {"HUGO_SYMBOL": "BRAF"} or
// {"_id": {"$in": [...] }}.
type QueryFragment map[string]interface{}

// MultiCollectionQuery groups AND-combined fragments by target
// collection for one path node.
type MultiCollectionQuery map[string][]QueryFragment

// RawQueryResult is the per-path, per-patient execution outcome: the
// source query that produced it, the matching clinical id and document,
// and every genomic document joined to it.
type RawQueryResult struct {
	SourceQuery []MultiCollectionQuery
	ClinicalID  interface{}
	ClinicalDoc map[string]interface{}
	GenomicDocs []map[string]interface{}
}

// TrialMatch is a self-contained explanation of one patient/trial-branch
// hit: the full provenance chain from trial down to raw result.
type TrialMatch struct {
	Trial      Trial
	ClauseData MatchClauseData
	Path       Path
	Query      []MultiCollectionQuery
	Result     RawQueryResult
}
