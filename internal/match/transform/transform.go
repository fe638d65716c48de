// Package transform is the key transformer of spec §4.1/§4.4: a
// table-driven function set that, given a curation key and value, returns
// query fragments in the schema of a target collection. Handlers are pure
// — no I/O — and are looked up in a registry keyed by the "sample_value"
// name configured per trial key in the collection mapping document.
package transform

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ovalle15/matchengine-go/internal/matcherr"
)

// Args bundles everything a Handler needs to translate one (trial_key,
// trial_value) pair into a query fragment.
type Args struct {
	SampleKey  string
	TrialValue interface{}
	ParentPath []interface{}
	TrialPath  string // "genomic" or "clinical"
	TrialKey   string
	Options    map[string]interface{} // the rest of the mapping entry
}

// Handler maps one curation key/value pair to a fragment of the target
// collection's query document.
type Handler func(Args) (map[string]interface{}, error)

// Mapping is one entry of the configuration document's
// trial_key_mappings[collection][KEY] map: the handler name, an optional
// ignore flag, and any handler-specific options.
type Mapping map[string]interface{}

func (m Mapping) SampleValue() string {
	if m == nil {
		return "nomap"
	}
	if v, ok := m["sample_value"].(string); ok && v != "" {
		return v
	}
	return "nomap"
}

func (m Mapping) Ignore() bool {
	if m == nil {
		return false
	}
	v, _ := m["ignore"].(bool)
	return v
}

// Registry is the closed set of named handlers the translator may invoke.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry returns a Registry pre-populated with the engine's built-in
// handlers: nomap (the default identity mapping), age_range_to_date_query,
// tier_calc, mmr_status_calc, wildcard_regex, and molecular_calc.
func NewRegistry() *Registry {
	r := &Registry{handlers: make(map[string]Handler)}
	r.Register("nomap", Nomap)
	r.Register("age_range_to_date_query", AgeRangeToDateQuery)
	r.Register("tier_calc", TierCalc)
	r.Register("mmr_status_calc", MMRStatusCalc)
	r.Register("wildcard_regex", WildcardRegex)
	r.Register("molecular_calc", MolecularCalc)
	return r
}

// Register adds or overrides a named handler.
func (r *Registry) Register(name string, h Handler) {
	r.handlers[name] = h
}

// Lookup resolves a handler by name. A missing name yields an
// UnmappedHandler error (spec §7).
func (r *Registry) Lookup(name string) (Handler, error) {
	h, ok := r.handlers[name]
	if !ok {
		return nil, matcherr.New(matcherr.UnmappedHandler, name, nil)
	}
	return h, nil
}

// Nomap is the default handler: pass the value through unchanged under
// the uppercased sample key.
func Nomap(a Args) (map[string]interface{}, error) {
	return map[string]interface{}{a.SampleKey: a.TrialValue}, nil
}

var comparisonRE = regexp.MustCompile(`^\s*(>=|<=|>|<|=)?\s*(-?\d+(?:\.\d+)?)\s*$`)

func parseComparison(raw interface{}) (op string, num float64, err error) {
	s, ok := raw.(string)
	if !ok {
		if f, ok := raw.(float64); ok {
			return "=", f, nil
		}
		return "", 0, fmt.Errorf("comparison value must be a string or number, got %T", raw)
	}
	m := comparisonRE.FindStringSubmatch(s)
	if m == nil {
		return "", 0, fmt.Errorf("unrecognized comparison %q", s)
	}
	op = m[1]
	if op == "" {
		op = "="
	}
	num, err = strconv.ParseFloat(m[2], 64)
	return op, num, err
}

// AgeRangeToDateQuery translates a curated age comparison (e.g. ">=18")
// into a birth-date range query. Age and birth date move in opposite
// directions, so the comparator inverts: "at least N years old" becomes
// "born on or before today minus N years".
func AgeRangeToDateQuery(a Args) (map[string]interface{}, error) {
	op, years, err := parseComparison(a.TrialValue)
	if err != nil {
		return nil, fmt.Errorf("age_range_to_date_query: %w", err)
	}
	cutoff := time.Now().UTC().AddDate(-int(years), 0, 0)

	inverted := map[string]string{">=": "$lte", ">": "$lt", "<=": "$gte", "<": "$gt", "=": "$eq"}
	mongoOp, ok := inverted[op]
	if !ok {
		return nil, fmt.Errorf("age_range_to_date_query: unsupported operator %q", op)
	}
	return map[string]interface{}{
		"BIRTH_DATE": map[string]interface{}{mongoOp: cutoff},
	}, nil
}

// TierCalc translates a curated numeric tier comparison (e.g. "<=2") into
// a TIER query fragment.
func TierCalc(a Args) (map[string]interface{}, error) {
	op, tier, err := parseComparison(a.TrialValue)
	if err != nil {
		return nil, fmt.Errorf("tier_calc: %w", err)
	}
	ops := map[string]string{">=": "$gte", ">": "$gt", "<=": "$lte", "<": "$lt", "=": "$eq"}
	mongoOp, ok := ops[op]
	if !ok {
		return nil, fmt.Errorf("tier_calc: unsupported operator %q", op)
	}
	return map[string]interface{}{
		"TIER": map[string]interface{}{mongoOp: int(tier)},
	}, nil
}

// mmrSynonyms canonicalizes the handful of MSI/MMR spellings curation
// authors use into the values stored in MMR_STATUS.
var mmrSynonyms = map[string]string{
	"msi-h":       "MSI-H",
	"msi high":    "MSI-H",
	"deficient":   "Deficient (MMR-D)",
	"mmr-d":       "Deficient (MMR-D)",
	"proficient":  "Proficient (MMR-P)",
	"mmr-p":       "Proficient (MMR-P)",
	"msi-l":       "MSI-L",
	"mss":         "MSS",
}

// MMRStatusCalc canonicalizes a curated MMR/MSI synonym to the value
// stored in the genomic collection's MMR_STATUS field.
func MMRStatusCalc(a Args) (map[string]interface{}, error) {
	raw, ok := a.TrialValue.(string)
	if !ok {
		return nil, fmt.Errorf("mmr_status_calc: expected a string, got %T", a.TrialValue)
	}
	canon, ok := mmrSynonyms[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		canon = raw
	}
	return map[string]interface{}{"MMR_STATUS": canon}, nil
}

// WildcardRegex builds a case-insensitive regex fragment from a curated
// value that may contain "*" wildcards, for free-text fields such as gene
// lists curated loosely (e.g. "BRAF*").
func WildcardRegex(a Args) (map[string]interface{}, error) {
	raw, ok := a.TrialValue.(string)
	if !ok {
		return nil, fmt.Errorf("wildcard_regex: expected a string, got %T", a.TrialValue)
	}
	pattern := "^" + regexp.QuoteMeta(raw) + "$"
	pattern = strings.ReplaceAll(pattern, regexp.QuoteMeta("*"), ".*")
	return map[string]interface{}{
		a.SampleKey: map[string]interface{}{"$regex": pattern, "$options": "i"},
	}, nil
}

// MolecularCalc handles the negated-wildtype framing of a gene criterion:
// a trial key prefixed "wt_" (e.g. "wt_genes") curates genes the patient
// must NOT have mutated, so WILDTYPE is asserted true for that gene;
// otherwise the curation is a positive mutation requirement and WILDTYPE
// is asserted false.
func MolecularCalc(a Args) (map[string]interface{}, error) {
	gene, ok := a.TrialValue.(string)
	if !ok {
		return nil, fmt.Errorf("molecular_calc: expected a gene string, got %T", a.TrialValue)
	}
	wildtype := strings.HasPrefix(strings.ToLower(a.TrialKey), "wt_")
	return map[string]interface{}{
		"TRUE_HUGO_SYMBOL": gene,
		"WILDTYPE":         wildtype,
	}, nil
}
