package diff

import (
	"context"
	"testing"

	"github.com/ovalle15/matchengine-go/internal/match"
	"github.com/ovalle15/matchengine-go/internal/store/fake"
)

func sampleMatch() match.TrialMatch {
	return match.TrialMatch{
		Trial: match.Trial{"protocol_no": "10-001", "status": "open", "_summary": "x"},
		ClauseData: match.MatchClauseData{
			Level:   match.LevelArm,
			Ambient: map[string]interface{}{"arm_name": "arm-a"},
		},
		Path: match.Path{
			{{Collection: "clinical", Values: map[string]interface{}{"ONCOTREE_PRIMARY_DIAGNOSIS_NAME": "Melanoma"}}},
		},
		Result: match.RawQueryResult{
			ClinicalID:  "c1",
			ClinicalDoc: map[string]interface{}{"_id": "c1", "SAMPLE_ID": "s1", "MRN": "m1"},
		},
	}
}

func TestBuildDocuments_ClinicalOnlyProducesOneDocument(t *testing.T) {
	tm := sampleMatch()
	docs := BuildDocuments(tm)
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}
	d := docs[0]
	if d["protocol_no"] != "10-001" || d["sample_id"] != "s1" || d["clinical_id"] != "c1" {
		t.Fatalf("missing required fields: %+v", d)
	}
	if d["arm_name"] != "arm-a" {
		t.Fatalf("expected ambient fields stamped on, got %+v", d)
	}
	if _, ok := d["_summary"]; ok {
		t.Fatalf("expected excluded trial field to be dropped, got %+v", d)
	}
	if d["is_disabled"] != false {
		t.Fatalf("expected is_disabled false on a fresh document, got %+v", d)
	}
}

func TestBuildDocuments_OneDocumentPerGenomicHit(t *testing.T) {
	tm := sampleMatch()
	tm.Result.GenomicDocs = []map[string]interface{}{
		{"_id": "g1", "CLINICAL_ID": "c1", "HUGO_SYMBOL": "BRAF"},
		{"_id": "g2", "CLINICAL_ID": "c1", "HUGO_SYMBOL": "KRAS"},
	}
	docs := BuildDocuments(tm)
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	if docs[0]["hash"] == docs[1]["hash"] {
		t.Fatalf("expected distinct genomic hits to hash differently")
	}
	if docs[0]["HUGO_SYMBOL"] != "BRAF" || docs[1]["HUGO_SYMBOL"] != "KRAS" {
		t.Fatalf("expected genomic fields stamped on, got %+v / %+v", docs[0], docs[1])
	}
}

func TestHash_StableAcrossCriterionOrder(t *testing.T) {
	tm := sampleMatch()
	tm.Path = match.Path{
		{
			{Collection: "clinical", Values: map[string]interface{}{"A": 1, "B": 2}},
		},
	}
	doc := Document{"protocol_no": "10-001", "sample_id": "s1", "clinical_id": "c1"}
	h1 := Hash(doc, tm.Path)

	tm.Path = match.Path{
		{
			{Collection: "clinical", Values: map[string]interface{}{"B": 2, "A": 1}},
		},
	}
	h2 := Hash(doc, tm.Path)

	if h1 != h2 {
		t.Fatalf("expected hash to be stable under map iteration order, got %s vs %s", h1, h2)
	}
}

func TestHash_DiffersOnDifferentCriteria(t *testing.T) {
	doc := Document{"protocol_no": "10-001", "sample_id": "s1", "clinical_id": "c1"}
	pathA := match.Path{{{Collection: "clinical", Values: map[string]interface{}{"A": 1}}}}
	pathB := match.Path{{{Collection: "clinical", Values: map[string]interface{}{"A": 2}}}}
	if Hash(doc, pathA) == Hash(doc, pathB) {
		t.Fatalf("expected different criteria to produce different hashes")
	}
}

func TestReconcile_InsertsNewAndDisablesStale(t *testing.T) {
	matches := fake.New()
	matches.Put(map[string]interface{}{
		"_id": "existing", "protocol_no": "10-001", "hash": "stale-hash", "is_disabled": false,
	})

	newDocs := []Document{
		{"protocol_no": "10-001", "sample_id": "s1", "clinical_id": "c1", "hash": "fresh-hash"},
	}

	if err := Reconcile(context.Background(), matches, "10-001", newDocs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if matches.Docs["existing"]["is_disabled"] != true {
		t.Fatalf("expected the stale document to be disabled, got %+v", matches.Docs["existing"])
	}

	var found bool
	for _, d := range matches.Docs {
		if d["hash"] == "fresh-hash" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected the new document to be inserted")
	}
}

func TestReconcile_LeavesMatchingHashUntouched(t *testing.T) {
	matches := fake.New()
	matches.Put(map[string]interface{}{
		"_id": "existing", "protocol_no": "10-001", "hash": "same-hash", "is_disabled": false, "marker": "original",
	})

	newDocs := []Document{
		{"protocol_no": "10-001", "sample_id": "s1", "clinical_id": "c1", "hash": "same-hash", "marker": "rebuilt"},
	}

	if err := Reconcile(context.Background(), matches, "10-001", newDocs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if matches.Docs["existing"]["marker"] != "original" {
		t.Fatalf("expected the untouched document to survive reconcile unchanged, got %+v", matches.Docs["existing"])
	}
	if matches.Docs["existing"]["is_disabled"] != false {
		t.Fatalf("expected a still-live hash to stay enabled, got %+v", matches.Docs["existing"])
	}
}
