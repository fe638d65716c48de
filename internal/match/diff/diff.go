// Package diff turns a batch of TrialMatch records into persisted
// documents and reconciles them against whatever is already stored for
// a protocol, per spec §6's persisted-state contract and the hash-based
// diff original_source/matchengine.py implements in update_trial_matches.
package diff

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/ovalle15/matchengine-go/internal/match"
	"github.com/ovalle15/matchengine-go/internal/store"
)

// excludedTrialFields are stripped from the trial document before its
// remaining fields are stamped onto every match, mirroring
// create_trial_match's field list.
var excludedTrialFields = map[string]bool{
	"treatment_list": true,
	"_summary":       true,
	"status":         true,
	"_id":            true,
}

// Document is one persisted trial_match record: the required fields of
// spec §6 (hash, protocol_no, sample_id, clinical_id, mrn, is_disabled)
// plus whatever clinical/genomic/ambient/trial fields were stamped on.
type Document map[string]interface{}

// BuildDocuments expands one TrialMatch into one persisted Document per
// genomic document it carries, or a single genomic-less Document when
// the path matched on clinical criteria alone.
func BuildDocuments(tm match.TrialMatch) []Document {
	base := Document{}
	for k, v := range tm.Result.ClinicalDoc {
		base[k] = v
	}
	for k, v := range tm.ClauseData.Ambient {
		base[k] = v
	}
	for k, v := range tm.Trial {
		if excludedTrialFields[k] {
			continue
		}
		base[k] = v
	}
	base["protocol_no"] = tm.Trial.ProtocolNo()
	base["sample_id"] = tm.Result.ClinicalDoc["SAMPLE_ID"]
	base["clinical_id"] = tm.Result.ClinicalID
	base["mrn"] = tm.Result.ClinicalDoc["MRN"]
	base["is_disabled"] = false

	if len(tm.Result.GenomicDocs) == 0 {
		doc := cloneDoc(base)
		doc["hash"] = Hash(doc, tm.Path)
		return []Document{doc}
	}

	docs := make([]Document, 0, len(tm.Result.GenomicDocs))
	for _, g := range tm.Result.GenomicDocs {
		doc := cloneDoc(base)
		for k, v := range g {
			if k == "CLINICAL_ID" {
				continue
			}
			doc[k] = v
		}
		doc["hash"] = Hash(doc, tm.Path)
		docs = append(docs, doc)
	}
	return docs
}

func cloneDoc(d Document) Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Hash computes the stable diff key for a document: protocol_no,
// sample_id, clinical_id, and the sorted flattened criteria of path.
func Hash(doc Document, path match.Path) string {
	h := sha256.New()
	fmt.Fprintf(h, "%v|%v|%v|", doc["protocol_no"], doc["sample_id"], doc["clinical_id"])
	for _, c := range sortedCriteria(path) {
		fmt.Fprintf(h, "%s|", c)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func sortedCriteria(path match.Path) []string {
	var out []string
	for _, leaf := range path.Flatten() {
		keys := make([]string, 0, len(leaf.Values))
		for k := range leaf.Values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out = append(out, fmt.Sprintf("%s.%s=%v", leaf.Collection, k, leaf.Values[k]))
		}
	}
	sort.Strings(out)
	return out
}

// Reconcile diff-persists docs against whatever is stored for protocolNo:
// documents whose hash already exists on an enabled stored document are
// left untouched, documents no longer produced are marked is_disabled, and
// every other document (new hash, or a hash stored only on disabled
// documents) is inserted.
func Reconcile(ctx context.Context, matches store.MatchStore, protocolNo string, docs []Document) error {
	hashes := make([]string, 0, len(docs))
	for _, d := range docs {
		if h, ok := d["hash"].(string); ok {
			hashes = append(hashes, h)
		}
	}

	existing, err := matches.Find(ctx, map[string]interface{}{
		"protocol_no": protocolNo,
		"hash":        map[string]interface{}{"$in": toInterfaceSlice(hashes)},
		"is_disabled": false,
	}, []string{"hash"})
	if err != nil {
		return fmt.Errorf("find existing trial matches: %w", err)
	}
	already := make(map[string]bool, len(existing))
	for _, d := range existing {
		if h, ok := d["hash"].(string); ok {
			already[h] = true
		}
	}

	var toInsert []map[string]interface{}
	for _, d := range docs {
		h, _ := d["hash"].(string)
		if already[h] {
			continue
		}
		toInsert = append(toInsert, map[string]interface{}(d))
	}

	if err := matches.DisableStale(ctx, protocolNo, hashes); err != nil {
		return fmt.Errorf("disable stale trial matches: %w", err)
	}
	if err := matches.InsertMany(ctx, toInsert); err != nil {
		return fmt.Errorf("insert trial matches: %w", err)
	}
	return nil
}

func toInterfaceSlice(s []string) []interface{} {
	out := make([]interface{}, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}
