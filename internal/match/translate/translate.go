// Package translate turns a MatchPath into the list of MultiCollectionQuery
// the query executor runs, one per path node, and grafts the candidate
// clinical-id set onto those queries before execution.
package translate

import (
	"fmt"
	"strings"

	"github.com/ovalle15/matchengine-go/internal/match"
	"github.com/ovalle15/matchengine-go/internal/match/transform"
)

// Context is the configuration the translator needs to resolve a curated
// key to a handler and a target collection to its join/unique fields. It
// is loaded once from the engine's mapping configuration document (spec §6)
// and reused across every trial.
type Context struct {
	// TrialKeyMappings[collection][UPPERCASE_KEY] is the curated mapping
	// entry for that key in that collection.
	TrialKeyMappings map[string]map[string]transform.Mapping
	// CollectionMappings[collection]["join_field"] names the field a
	// non-clinical collection joins to the clinical collection on.
	CollectionMappings map[string]map[string]interface{}
	// PrimaryCollectionUniqueField is the clinical collection's unique id
	// field, used by ID injection.
	PrimaryCollectionUniqueField string
	Registry                     *transform.Registry
}

func (c *Context) mapping(collection, key string) transform.Mapping {
	byKey := c.TrialKeyMappings[collection]
	if byKey == nil {
		return nil
	}
	upper := strings.ToUpper(key)
	for k, v := range byKey {
		if strings.EqualFold(k, upper) {
			return v
		}
	}
	return nil
}

func (c *Context) joinField(collection string) string {
	settings := c.CollectionMappings[collection]
	if settings == nil {
		return ""
	}
	jf, _ := settings["join_field"].(string)
	return jf
}

// Translate converts path into one MultiCollectionQuery per node, per
// spec §4.4. A node whose criteria all resolve to ignored mappings, or
// that carries no criteria at all, produces no entry in the returned
// slice — the caller must not assume len(result) == len(path).
func Translate(path match.Path, ctx *Context) ([]match.MultiCollectionQuery, error) {
	queries := make([]match.MultiCollectionQuery, 0, len(path))
	for _, node := range path {
		q, err := translateNode(node, ctx)
		if err != nil {
			return nil, err
		}
		if len(q) == 0 {
			continue
		}
		queries = append(queries, q)
	}
	return queries, nil
}

// translateNode translates every leaf of a path node into its own query
// fragment, one fragment per criterion, never merged across leaves of the
// same collection, so the executor's per-fragment genomic intersect loop
// and ID injection's per-fragment loop each narrow independently
// (matchengine.py: categories[genomic_or_clinical].append(and_query)
// appends one fragment per criterion, it never merges criteria together).
func translateNode(leaves []match.Leaf, ctx *Context) (match.MultiCollectionQuery, error) {
	perCollection := make(map[string][]match.QueryFragment)

	for _, leaf := range leaves {
		frag := match.QueryFragment{}
		for trialKey, trialValue := range leaf.Values {
			mapping := ctx.mapping(leaf.Collection, trialKey)
			if mapping.Ignore() {
				continue
			}
			handler, err := ctx.Registry.Lookup(mapping.SampleValue())
			if err != nil {
				return nil, fmt.Errorf("translate %s.%s: %w", leaf.Collection, trialKey, err)
			}
			out, err := handler(transform.Args{
				SampleKey:  strings.ToUpper(trialKey),
				TrialValue: trialValue,
				TrialPath:  leaf.Collection,
				TrialKey:   trialKey,
				Options:    mapping,
			})
			if err != nil {
				return nil, fmt.Errorf("translate %s.%s: %w", leaf.Collection, trialKey, err)
			}
			for k, v := range out {
				frag[k] = v
			}
		}
		if len(frag) > 0 {
			perCollection[leaf.Collection] = append(perCollection[leaf.Collection], frag)
		}
	}

	if len(perCollection) == 0 {
		return nil, nil
	}
	q := make(match.MultiCollectionQuery, len(perCollection))
	for collection, frags := range perCollection {
		q[collection] = frags
	}
	return q, nil
}

// InjectIDs grafts the candidate clinical-id set onto every query in
// queries, per spec §4.5. A nil idList disables injection entirely
// (the candidate set is the whole clinical collection). A non-nil but
// empty idList short-circuits: InjectIDs returns (nil, true) and the
// caller must emit no results for this path.
func InjectIDs(queries []match.MultiCollectionQuery, ctx *Context, idList []interface{}) (out []match.MultiCollectionQuery, shortCircuit bool) {
	if idList == nil {
		return queries, false
	}
	if len(idList) == 0 {
		return nil, true
	}

	out = make([]match.MultiCollectionQuery, len(queries))
	for i, q := range queries {
		injected := make(match.MultiCollectionQuery, len(q)+1)
		for collection, frags := range q {
			if collection == "clinical" {
				continue
			}
			jf := ctx.joinField(collection)
			newFrags := make([]match.QueryFragment, len(frags))
			for fi, f := range frags {
				merged := make(match.QueryFragment, len(f)+1)
				for k, v := range f {
					merged[k] = v
				}
				if jf != "" {
					merged[jf] = map[string]interface{}{"$in": idList}
				}
				newFrags[fi] = merged
			}
			injected[collection] = newFrags
		}

		// The clinical id constraint is appended even when a node carries
		// no clinical criteria of its own, so every node's clinical pass
		// (exec.Executor) still has something to run (spec §4.5/§4.6).
		clinicalFrags := make([]match.QueryFragment, len(q["clinical"]), len(q["clinical"])+1)
		copy(clinicalFrags, q["clinical"])
		clinicalFrags = append(clinicalFrags, match.QueryFragment{
			ctx.PrimaryCollectionUniqueField: map[string]interface{}{"$in": idList},
		})
		injected["clinical"] = clinicalFrags

		out[i] = injected
	}
	return out, false
}
