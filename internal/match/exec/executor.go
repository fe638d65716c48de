// Package exec runs translated, id-injected queries against the
// document store (spec §4.6) and feeds a bounded worker pool that
// drives one path at a time (spec §4.8).
package exec

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	"github.com/ovalle15/matchengine-go/internal/match"
	"github.com/ovalle15/matchengine-go/internal/match/cache"
	"github.com/ovalle15/matchengine-go/internal/matcherr"
	"github.com/ovalle15/matchengine-go/internal/store"
)

// mongo server error codes that can never be resolved by retrying: the
// collection/namespace is gone, or the credentials can't see it. Per spec
// §7, these escalate immediately rather than consuming the pool's one
// DBTransient retry.
const (
	mongoCodeUnauthorized       = 13
	mongoCodeAuthenticationFail = 18
	mongoCodeNamespaceNotFound  = 26
)

var clinicalProjection = []string{"SAMPLE_ID", "MRN", "ONCOTREE_PRIMARY_DIAGNOSIS_NAME", "VITAL_STATUS", "FIRST_LAST"}

var genomicProjection = []string{"SAMPLE_ID", "CLINICAL_ID", "VARIANT_CATEGORY", "WILDTYPE", "TIER",
	"TRUE_HUGO_SYMBOL", "TRUE_PROTEIN_CHANGE", "CNV_CALL", "TRUE_VARIANT_CLASSIFICATION", "MMR_STATUS"}

// Executor runs the clinical-first, genomic-narrowing query plan of
// spec §4.6 for one translated MatchPath.
type Executor struct {
	Clinical store.Collection
	Genomic  store.Collection
	Cache    *cache.Cache
	// JoinField names the field genomic documents carry their owning
	// clinical document's id under (spec §6: "CLINICAL_ID").
	JoinField string
	// ExtraClinicalProjection and ExtraGenomicProjection extend the
	// minimum projections of spec §4.6 with fields named in the
	// configuration document (clinical_projection/genomic_projection).
	ExtraClinicalProjection []string
	ExtraGenomicProjection  []string
}

func (e *Executor) clinicalProjectionFields() []string {
	return append(append([]string{}, clinicalProjection...), e.ExtraClinicalProjection...)
}

func (e *Executor) genomicProjectionFields() []string {
	return append(append([]string{}, genomicProjection...), e.ExtraGenomicProjection...)
}

func (e *Executor) joinField() string {
	if e.JoinField != "" {
		return e.JoinField
	}
	return "CLINICAL_ID"
}

// Run executes queries, one MultiCollectionQuery per path node
// (semantically ANDed across nodes), and returns one RawQueryResult per
// surviving clinical id. A nil, nil return means the path produced no
// matches — not an error.
func (e *Executor) Run(ctx context.Context, queries []match.MultiCollectionQuery) ([]match.RawQueryResult, error) {
	clinicalIDs := make(map[interface{}]struct{})
	genomicByClinical := make(map[interface{}]map[interface{}]struct{})

	for _, node := range queries {
		if err := ctx.Err(); err != nil {
			return nil, matcherr.New(matcherr.Cancelled, "query executor", err)
		}

		newIDs, err := e.executeClinical(ctx, node)
		if err != nil {
			return nil, err
		}
		if len(newIDs) == 0 {
			return nil, nil
		}
		for _, id := range newIDs {
			clinicalIDs[id] = struct{}{}
		}

		for collection, fragments := range node {
			if collection == "clinical" {
				continue
			}
			for _, frag := range fragments {
				survivors, err := e.executeGenomicFragment(ctx, collection, frag, clinicalIDs, genomicByClinical)
				if err != nil {
					return nil, err
				}
				intersect(clinicalIDs, survivors)
				if len(clinicalIDs) == 0 {
					return nil, nil
				}
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, matcherr.New(matcherr.Cancelled, "query executor", err)
	}

	// A path with no genomic fragments still emits its clinical matches,
	// with an empty genomic list (spec §4.6 edge cases).
	for id := range clinicalIDs {
		if _, ok := genomicByClinical[id]; !ok {
			genomicByClinical[id] = make(map[interface{}]struct{})
		}
	}

	if err := e.hydrate(ctx, clinicalIDs, genomicByClinical); err != nil {
		return nil, err
	}

	results := make([]match.RawQueryResult, 0, len(genomicByClinical))
	for clinicalID, genomicIDs := range genomicByClinical {
		if _, ok := clinicalIDs[clinicalID]; !ok {
			continue
		}
		clinicalDoc, _ := e.Cache.Get("clinical", clinicalID)
		docs := make([]map[string]interface{}, 0, len(genomicIDs))
		for gid := range genomicIDs {
			if doc, ok := e.Cache.Get("genomic", gid); ok {
				docs = append(docs, doc)
			}
		}
		results = append(results, match.RawQueryResult{
			SourceQuery: queries,
			ClinicalID:  clinicalID,
			ClinicalDoc: clinicalDoc,
			GenomicDocs: docs,
		})
	}
	return results, nil
}

func (e *Executor) executeClinical(ctx context.Context, node match.MultiCollectionQuery) ([]interface{}, error) {
	fragments, ok := node["clinical"]
	if !ok {
		return nil, nil
	}
	filter := andAll(fragments)
	docs, err := e.Clinical.Find(ctx, filter, []string{"_id"})
	if err != nil {
		return nil, wrapDBError(err, "clinical query")
	}
	ids := make([]interface{}, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d["_id"])
	}
	return ids, nil
}

func (e *Executor) executeGenomicFragment(
	ctx context.Context,
	collection string,
	frag match.QueryFragment,
	clinicalIDs map[interface{}]struct{},
	genomicByClinical map[interface{}]map[interface{}]struct{},
) (map[interface{}]struct{}, error) {
	joinField := e.joinField()
	ids := make([]interface{}, 0, len(clinicalIDs))
	for id := range clinicalIDs {
		ids = append(ids, id)
	}

	filter := make(map[string]interface{}, len(frag)+1)
	for k, v := range frag {
		filter[k] = v
	}
	// The running clinical-id set always supersedes whatever join
	// constraint the fragment already carried (from ID injection's
	// prefilter set), per spec §4.6 step 3.
	filter[joinField] = map[string]interface{}{"$in": ids}

	docs, err := e.Genomic.Find(ctx, filter, []string{"_id", joinField})
	if err != nil {
		return nil, wrapDBError(err, fmt.Sprintf("genomic query on %s", collection))
	}

	survivors := make(map[interface{}]struct{})
	for _, d := range docs {
		cid := d[joinField]
		gid := d["_id"]
		if genomicByClinical[cid] == nil {
			genomicByClinical[cid] = make(map[interface{}]struct{})
		}
		genomicByClinical[cid][gid] = struct{}{}
		survivors[cid] = struct{}{}
	}
	return survivors, nil
}

func (e *Executor) hydrate(ctx context.Context, clinicalIDs map[interface{}]struct{}, genomicByClinical map[interface{}]map[interface{}]struct{}) error {
	var needClinical []interface{}
	for id := range clinicalIDs {
		if _, ok := e.Cache.Get("clinical", id); !ok {
			needClinical = append(needClinical, id)
		}
	}
	var needGenomic []interface{}
	for _, genomicIDs := range genomicByClinical {
		for gid := range genomicIDs {
			if _, ok := e.Cache.Get("genomic", gid); !ok {
				needGenomic = append(needGenomic, gid)
			}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	if len(needClinical) > 0 {
		g.Go(func() error {
			docs, err := e.Clinical.FindByIDs(gctx, needClinical, e.clinicalProjectionFields())
			if err != nil {
				return wrapDBError(err, "clinical hydration")
			}
			for _, d := range docs {
				e.Cache.PutIfAbsent("clinical", d["_id"], d)
			}
			return nil
		})
	}
	if len(needGenomic) > 0 {
		g.Go(func() error {
			docs, err := e.Genomic.FindByIDs(gctx, needGenomic, e.genomicProjectionFields())
			if err != nil {
				return wrapDBError(err, "genomic hydration")
			}
			for _, d := range docs {
				e.Cache.PutIfAbsent("genomic", d["_id"], d)
			}
			return nil
		})
	}
	return g.Wait()
}

func andAll(fragments []match.QueryFragment) map[string]interface{} {
	if len(fragments) == 1 {
		return fragments[0]
	}
	and := make([]interface{}, len(fragments))
	for i, f := range fragments {
		and[i] = map[string]interface{}(f)
	}
	return map[string]interface{}{"$and": and}
}

func intersect(set map[interface{}]struct{}, with map[interface{}]struct{}) {
	for id := range set {
		if _, ok := with[id]; !ok {
			delete(set, id)
		}
	}
}

func wrapDBError(err error, context string) error {
	if isFatalDBError(err) {
		return matcherr.New(matcherr.DBFatal, context, err)
	}
	return matcherr.New(matcherr.DBTransient, context, err)
}

// isFatalDBError reports whether err reflects an auth/permission failure or
// a missing collection, conditions no retry can fix, as opposed to a
// network blip or timeout, which DBTransient's one retry may clear.
func isFatalDBError(err error) bool {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		switch cmdErr.Code {
		case mongoCodeUnauthorized, mongoCodeAuthenticationFail, mongoCodeNamespaceNotFound:
			return true
		}
		return cmdErr.HasErrorLabel("Unauthorized")
	}
	return false
}
