package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ovalle15/matchengine-go/internal/config"
	"github.com/ovalle15/matchengine-go/internal/match"
	"github.com/ovalle15/matchengine-go/internal/match/cache"
	"github.com/ovalle15/matchengine-go/internal/match/clause"
	"github.com/ovalle15/matchengine-go/internal/match/diff"
	"github.com/ovalle15/matchengine-go/internal/match/exec"
	"github.com/ovalle15/matchengine-go/internal/match/transform"
	"github.com/ovalle15/matchengine-go/internal/match/translate"
	"github.com/ovalle15/matchengine-go/internal/match/tree"
	"github.com/ovalle15/matchengine-go/internal/matcherr"
	"github.com/ovalle15/matchengine-go/internal/store"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "matchengine",
		Short: "Clinical trial eligibility match engine",
	}

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(reindexCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func runCmd() *cobra.Command {
	var trials []string
	var samples []string
	var matchOnClosed bool
	var matchOnDeceased bool
	var workers int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one matching pass and persist the resulting trial matches",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("match-on-closed") {
				cfg.MatchOnClosed = matchOnClosed
			}
			if cmd.Flags().Changed("match-on-deceased-patients") {
				cfg.MatchOnDeceased = matchOnDeceased
			}
			if cmd.Flags().Changed("workers") {
				cfg.Workers = workers
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runMatch(cmd.Context(), cfg, trials, samples)
		},
	}

	cmd.Flags().StringSliceVar(&trials, "trials", nil, "restrict to these protocol_no values (default: all)")
	cmd.Flags().StringSliceVar(&samples, "samples", nil, "restrict to these sample_id values (default: all live patients)")
	cmd.Flags().BoolVar(&matchOnClosed, "match-on-closed", false, "include closed trials and suspended steps/arms/doses")
	cmd.Flags().BoolVar(&matchOnDeceased, "match-on-deceased-patients", false, "include deceased patients when no explicit samples are given")
	cmd.Flags().IntVar(&workers, "workers", 0, "worker pool size (default: 5 * CPU count)")

	return cmd
}

func reindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Create the document-store indexes the engine and diff step rely on",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runReindex(cmd.Context(), cfg)
		},
	}
}

// mappingDocument is the on-disk shape of the MAPPINGS_FILE configuration
// document named in spec §6.
type mappingDocument struct {
	TrialProjection              []string                                 `json:"trial_projection"`
	ClinicalProjection           []string                                 `json:"clinical_projection"`
	GenomicProjection            []string                                 `json:"genomic_projection"`
	TrialKeyMappings             map[string]map[string]transform.Mapping  `json:"trial_key_mappings"`
	CollectionMappings           map[string]map[string]interface{}        `json:"collection_mappings"`
	PrimaryCollectionUniqueField string                                   `json:"primary_collection_unique_field"`
}

func loadMappings(path string) (*mappingDocument, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mappings file: %w", err)
	}
	defer f.Close()

	var doc mappingDocument
	if err := json.NewDecoder(f).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode mappings file: %w", err)
	}
	if doc.PrimaryCollectionUniqueField == "" {
		doc.PrimaryCollectionUniqueField = "_id"
	}
	return &doc, nil
}

func runMatch(ctx context.Context, cfg *config.Config, trialFilter, sampleFilter []string) error {
	runID := uuid.New()
	logger := newLogger(cfg).With().Str("run_id", runID.String()).Logger()

	mappings, err := loadMappings(cfg.MappingsFile)
	if err != nil {
		return err
	}

	db, err := store.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		return err
	}
	defer db.Close(ctx)
	logger.Info().Msg("connected to document store")

	trialCollection := db.Collection("trial")
	matchCollection := db.MatchCollection("trial_match")

	trialFilterQuery := map[string]interface{}{}
	if len(trialFilter) > 0 {
		trialFilterQuery["protocol_no"] = map[string]interface{}{"$in": toAny(trialFilter)}
	}
	if !cfg.MatchOnClosed {
		// Trials are keyed open/closed by the literal status string "open to
		// accrual" (case-insensitive, whitespace-trimmed), per the original
		// matchengine's status.lower().strip() not in {"open to accrual"} gate.
		trialFilterQuery["status"] = map[string]interface{}{"$regex": "^\\s*open to accrual\\s*$", "$options": "i"}
	}

	rawTrials, err := trialCollection.Find(ctx, trialFilterQuery, mappings.TrialProjection)
	if err != nil {
		return fmt.Errorf("load trials: %w", err)
	}

	translateCtx := &translate.Context{
		TrialKeyMappings:             mappings.TrialKeyMappings,
		CollectionMappings:           mappings.CollectionMappings,
		PrimaryCollectionUniqueField: mappings.PrimaryCollectionUniqueField,
		Registry:                     transform.NewRegistry(),
	}

	joinField, _ := translateCtx.CollectionMappings["genomic"]["join_field"].(string)
	if joinField == "" {
		joinField = "CLINICAL_ID"
	}
	executor := &exec.Executor{
		Clinical:                db.Collection("clinical"),
		Genomic:                 db.Collection("genomic"),
		Cache:                   cache.New(),
		JoinField:               joinField,
		ExtraClinicalProjection: mappings.ClinicalProjection,
		ExtraGenomicProjection:  mappings.GenomicProjection,
	}
	pool := &exec.Pool{Executor: executor, Workers: cfg.Workers}

	idFilter, err := candidateClinicalIDs(ctx, executor.Clinical, sampleFilter, cfg.MatchOnDeceased)
	if err != nil {
		return fmt.Errorf("resolve candidate patients: %w", err)
	}

	byProtocol := make(map[string][]diff.Document)

	for _, rawTrial := range rawTrials {
		t := match.Trial(rawTrial)
		protocolNo := t.ProtocolNo()

		clauses := clause.Extract(t, cfg.MatchOnClosed)
		var tasks []exec.Task
	clauseLoop:
		for _, cd := range clauses {
			tr := tree.Build(cd.Clause)
			paths := tree.Enumerate(tr)
			for _, p := range paths {
				queries, err := translate.Translate(p, translateCtx)
				if err != nil {
					if matcherr.Is(err, matcherr.UnmappedHandler) {
						logger.Error().Err(err).Str("protocol_no", protocolNo).Msg("unmapped handler, skipping remaining paths of trial")
						break clauseLoop
					}
					logger.Error().Err(err).Str("protocol_no", protocolNo).Msg("translate failed, skipping path")
					continue
				}
				queries, shortCircuit := translate.InjectIDs(queries, translateCtx, idFilter)
				if shortCircuit {
					continue
				}
				tasks = append(tasks, exec.Task{Trial: t, ClauseData: cd, Path: p, Queries: queries})
			}
		}

		outcomes, err := pool.Run(ctx, tasks)
		if err != nil {
			logger.Error().Err(err).Str("protocol_no", protocolNo).Msg("fatal error matching trial")
			continue
		}

		var docs []diff.Document
		for _, outcome := range outcomes {
			if outcome.Err != nil {
				logger.Warn().Err(outcome.Err).Str("protocol_no", protocolNo).Msg("path failed, skipping")
				continue
			}
			for _, result := range outcome.Results {
				tm := match.TrialMatch{
					Trial:      outcome.Task.Trial,
					ClauseData: outcome.Task.ClauseData,
					Path:       outcome.Task.Path,
					Query:      outcome.Task.Queries,
					Result:     result,
				}
				docs = append(docs, diff.BuildDocuments(tm)...)
			}
		}
		byProtocol[protocolNo] = append(byProtocol[protocolNo], docs...)
	}

	for protocolNo, docs := range byProtocol {
		if err := diff.Reconcile(ctx, matchCollection, protocolNo, docs); err != nil {
			logger.Error().Err(err).Str("protocol_no", protocolNo).Msg("reconcile failed")
			return err
		}
		logger.Info().Str("protocol_no", protocolNo).Int("matches", len(docs)).Msg("reconciled trial matches")
	}

	return nil
}

func runReindex(ctx context.Context, cfg *config.Config) error {
	logger := newLogger(cfg)

	db, err := store.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		return err
	}
	defer db.Close(ctx)

	matches := db.MatchCollection("trial_match")
	for _, field := range []string{"hash", "mrn", "sample_id", "clinical_id", "protocol_no"} {
		if err := matches.CreateIndex(ctx, field); err != nil {
			return fmt.Errorf("create index on trial_match.%s: %w", field, err)
		}
		logger.Info().Str("field", field).Msg("ensured index on trial_match")
	}
	return nil
}

// candidateClinicalIDs resolves the CLI's -samples/--match-on-deceased-patients
// flags to the initial clinical id set ID injection narrows queries to. A
// nil result (no -samples and deceased patients included) disables injection
// entirely: every patient, alive or deceased, is a candidate.
func candidateClinicalIDs(ctx context.Context, clinical store.Collection, sampleFilter []string, matchOnDeceased bool) ([]interface{}, error) {
	if len(sampleFilter) == 0 && matchOnDeceased {
		return nil, nil
	}

	filter := map[string]interface{}{}
	if len(sampleFilter) > 0 {
		// An explicit sample list selects by SAMPLE_ID alone, regardless of
		// vital status, per the original get_clinical_ids_from_sample_ids.
		filter["SAMPLE_ID"] = map[string]interface{}{"$in": toAny(sampleFilter)}
	} else if !matchOnDeceased {
		filter["VITAL_STATUS"] = map[string]interface{}{"$in": []interface{}{"alive"}}
	}

	docs, err := clinical.Find(ctx, filter, []string{"_id"})
	if err != nil {
		return nil, err
	}
	ids := make([]interface{}, len(docs))
	for i, d := range docs {
		ids[i] = d["_id"]
	}
	return ids, nil
}

func toAny(s []string) []interface{} {
	out := make([]interface{}, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}
