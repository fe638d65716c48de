// Package clause walks a trial curation and extracts every embedded
// "match" clause, together with its structural provenance (ancestor
// path, level, and ambient sibling attributes) and a suspension filter
// that skips closed branches unless matchOnClosed is set.
//
// Keys recognized by the walk: protocol_no, nct_id, status,
// treatment_list, match, step, arm, dose, arm_suspended, level_suspended.
// Everything else is opaque structure the walk recurses into without
// interpreting.
package clause

import (
	"strings"

	"github.com/ovalle15/matchengine-go/internal/match"
)

// workItem is one pending (path, key, value) triple in the depth-first
// work list, mirroring the original traversal's (path, parent_key,
// parent_value) tuple.
type workItem struct {
	path  match.ParentPath
	key   interface{}
	value interface{}
}

// Extract returns every MatchClauseData embedded in trial, skipping
// suspended branches unless matchOnClosed is true. Top-level "match" keys
// are permanently skipped — they are reserved for a future trial-level
// criterion that the engine does not yet support (see DESIGN.md).
func Extract(trial match.Trial, matchOnClosed bool) []match.MatchClauseData {
	var out []match.MatchClauseData

	var stack []workItem
	for k, v := range trial {
		if k == "match" {
			continue
		}
		stack = append(stack, workItem{path: nil, key: k, value: v})
	}

	for len(stack) > 0 {
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch value := item.value.(type) {
		case map[string]interface{}:
			for innerKey, innerValue := range value {
				if innerKey == "match" {
					if suspended(item.path, item.key, value, matchOnClosed) {
						continue
					}
					parentPath := appendPath(item.path, item.key, innerKey)
					level := deepestNonIntLevel(append(appendPath(item.path, item.key), nil))
					clause, ok := toMatchClause(innerValue)
					if !ok {
						continue
					}
					out = append(out, match.MatchClauseData{
						Clause:     clause,
						ParentPath: parentPath,
						Level:      level,
						Ambient:    value,
					})
					continue
				}
				stack = append(stack, workItem{
					path:  appendPath(item.path, item.key),
					key:   innerKey,
					value: innerValue,
				})
			}
		case []interface{}:
			for index, elem := range value {
				stack = append(stack, workItem{
					path:  appendPath(item.path, item.key),
					key:   index,
					value: elem,
				})
			}
		}
	}

	return out
}

func appendPath(path match.ParentPath, keys ...interface{}) match.ParentPath {
	out := make(match.ParentPath, 0, len(path)+len(keys))
	out = append(out, path...)
	out = append(out, keys...)
	return out
}

// deepestNonIntLevel returns the deepest (rightmost) non-integer ancestor
// key in ancestors, falling back to LevelTopLevel if none is found. The
// trailing nil placeholder mirrors appending the "match" keyword itself,
// which this function must skip.
func deepestNonIntLevel(ancestors match.ParentPath) match.Level {
	for i := len(ancestors) - 2; i >= 0; i-- {
		if s, ok := ancestors[i].(string); ok {
			return match.Level(s)
		}
	}
	return match.LevelTopLevel
}

// suspended applies the suspension filter table of spec §4.1. path[-1]
// (the last element of the ancestor path recorded before descending into
// the dict holding "match") identifies whether we are at an arm, dose, or
// step level; owner is that dict.
func suspended(path match.ParentPath, _ interface{}, owner map[string]interface{}, matchOnClosed bool) bool {
	if matchOnClosed {
		return false
	}
	if len(path) == 0 {
		return false
	}
	level, ok := path[len(path)-1].(string)
	if !ok {
		return false
	}
	switch level {
	case "arm":
		return flagSet(owner, "arm_suspended")
	case "dose":
		return flagSet(owner, "level_suspended")
	case "step":
		arms, _ := owner["arm"].([]interface{})
		if len(arms) == 0 {
			return false
		}
		for _, a := range arms {
			armDict, ok := a.(map[string]interface{})
			if !ok || !flagSet(armDict, "arm_suspended") {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func flagSet(owner map[string]interface{}, key string) bool {
	raw, ok := owner[key]
	if !ok {
		return false
	}
	s, ok := raw.(string)
	if !ok {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(s), "y")
}

// toMatchClause coerces a raw "match" value (expected to be a list of
// criterion maps) into a MatchClause. A malformed shape yields ok=false
// so the caller can skip it (CurationMalformed, per spec §7).
func toMatchClause(raw interface{}) (match.MatchClause, bool) {
	items, ok := raw.([]interface{})
	if !ok {
		return nil, false
	}
	clause := make(match.MatchClause, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, false
		}
		clause = append(clause, match.Criterion(m))
	}
	return clause, true
}
