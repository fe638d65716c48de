// Package fake provides an in-memory store.Collection used by the executor,
// worker-pool and diff tests in place of a live mongo deployment, the same role
// mockCancerDiagnosisRepo plays for the oncology domain it was adapted
// from.
package fake

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	"github.com/ovalle15/matchengine-go/internal/store"
)

// Collection is an in-memory stand-in for a real document collection.
// Docs is keyed by the document's "_id" field for direct manipulation in
// tests; Find and FindByIDs evaluate the same operator subset the
// translator and executor ever produce.
type Collection struct {
	Docs    map[interface{}]map[string]interface{}
	indexes map[string]bool

	// FindCalls counts invocations of Find, for assertions on cache and
	// query-executor behavior that must not re-query already-cached ids.
	FindCalls int
}

// New returns an empty Collection.
func New() *Collection {
	return &Collection{
		Docs:    make(map[interface{}]map[string]interface{}),
		indexes: make(map[string]bool),
	}
}

// Put inserts or replaces doc under its "_id" field.
func (c *Collection) Put(doc map[string]interface{}) {
	c.Docs[doc["_id"]] = doc
}

func (c *Collection) Find(_ context.Context, filter map[string]interface{}, projection []string) ([]map[string]interface{}, error) {
	c.FindCalls++

	ids := make([]interface{}, 0, len(c.Docs))
	for id := range c.Docs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return fmt.Sprint(ids[i]) < fmt.Sprint(ids[j]) })

	var out []map[string]interface{}
	for _, id := range ids {
		doc := c.Docs[id]
		if matches(doc, filter) {
			out = append(out, project(doc, projection))
		}
	}
	return out, nil
}

func (c *Collection) FindByIDs(ctx context.Context, ids []interface{}, projection []string) ([]map[string]interface{}, error) {
	return c.Find(ctx, map[string]interface{}{"_id": map[string]interface{}{"$in": ids}}, projection)
}

func (c *Collection) ListIndexes(_ context.Context) ([]string, error) {
	names := make([]string, 0, len(c.indexes))
	for name := range c.indexes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (c *Collection) CreateIndex(_ context.Context, field string) error {
	if c.indexes == nil {
		c.indexes = make(map[string]bool)
	}
	c.indexes[field] = true
	return nil
}

func project(doc map[string]interface{}, fields []string) map[string]interface{} {
	if len(fields) == 0 {
		out := make(map[string]interface{}, len(doc))
		for k, v := range doc {
			out[k] = v
		}
		return out
	}
	out := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		if v, ok := doc[f]; ok {
			out[f] = v
		}
	}
	if v, ok := doc["_id"]; ok {
		out["_id"] = v
	}
	return out
}

func matches(doc map[string]interface{}, filter map[string]interface{}) bool {
	for key, want := range filter {
		if key == "$and" {
			subs, ok := want.([]interface{})
			if !ok {
				return false
			}
			for _, sub := range subs {
				subFilter, ok := sub.(map[string]interface{})
				if !ok || !matches(doc, subFilter) {
					return false
				}
			}
			continue
		}
		if !fieldMatches(doc[key], want) {
			return false
		}
	}
	return true
}

func fieldMatches(got, want interface{}) bool {
	ops, ok := want.(map[string]interface{})
	if !ok {
		return got == want
	}
	for op, operand := range ops {
		switch op {
		case "$in":
			if !containsAny(operand, got) {
				return false
			}
		case "$eq":
			if got != operand {
				return false
			}
		case "$gt", "$gte", "$lt", "$lte":
			if !compare(op, got, operand) {
				return false
			}
		case "$regex":
			pattern, _ := operand.(string)
			s, _ := got.(string)
			re, err := regexp.Compile("(?i)" + pattern)
			if err != nil || !re.MatchString(s) {
				return false
			}
		}
	}
	return true
}

func containsAny(set interface{}, got interface{}) bool {
	items, ok := set.([]interface{})
	if !ok {
		return false
	}
	for _, item := range items {
		if item == got {
			return true
		}
	}
	return false
}

func compare(op string, got, want interface{}) bool {
	a, aok := toFloat(got)
	b, bok := toFloat(want)
	if !aok || !bok {
		return false
	}
	switch op {
	case "$gt":
		return a > b
	case "$gte":
		return a >= b
	case "$lt":
		return a < b
	case "$lte":
		return a <= b
	}
	return false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func (c *Collection) InsertMany(_ context.Context, docs []map[string]interface{}) error {
	for _, d := range docs {
		id := d["_id"]
		if id == nil {
			id = len(c.Docs)
			d["_id"] = id
		}
		c.Docs[id] = d
	}
	return nil
}

func (c *Collection) DisableStale(_ context.Context, protocolNo string, liveHashes []string) error {
	live := make(map[string]bool, len(liveHashes))
	for _, h := range liveHashes {
		live[h] = true
	}
	for _, doc := range c.Docs {
		if doc["protocol_no"] != protocolNo {
			continue
		}
		hash, _ := doc["hash"].(string)
		if !live[hash] {
			doc["is_disabled"] = true
		}
	}
	return nil
}

var _ store.Collection = (*Collection)(nil)
var _ store.MatchStore = (*Collection)(nil)
