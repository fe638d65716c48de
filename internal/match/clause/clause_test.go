package clause

import (
	"testing"

	"github.com/ovalle15/matchengine-go/internal/match"
)

func sampleTrial() match.Trial {
	return match.Trial{
		"protocol_no": "00-001",
		"status":      "open to accrual",
		"match":       []interface{}{map[string]interface{}{"clinical": map[string]interface{}{"AGE_NUMERICAL": ">=18"}}},
		"treatment_list": map[string]interface{}{
			"step": []interface{}{
				map[string]interface{}{
					"arm": []interface{}{
						map[string]interface{}{
							"arm_suspended": "n",
							"arm_code":      "A",
							"dose": []interface{}{
								map[string]interface{}{
									"level_suspended": "n",
									"level_label":     "10mg",
									"match": []interface{}{
										map[string]interface{}{"genomic": map[string]interface{}{"HUGO_SYMBOL": "BRAF"}},
									},
								},
							},
						},
						map[string]interface{}{
							"arm_suspended": "y",
							"arm_code":      "B",
							"match": []interface{}{
								map[string]interface{}{"genomic": map[string]interface{}{"HUGO_SYMBOL": "KRAS"}},
							},
						},
					},
				},
			},
		},
	}
}

func TestExtract_SkipsTopLevelMatch(t *testing.T) {
	trial := sampleTrial()
	clauses := Extract(trial, false)

	for _, c := range clauses {
		if len(c.ParentPath) == 2 && c.ParentPath[0] == "match" {
			t.Fatal("top-level match clause must never be emitted")
		}
	}
}

func TestExtract_SuspendedArmSkippedByDefault(t *testing.T) {
	trial := sampleTrial()
	clauses := Extract(trial, false)

	for _, c := range clauses {
		if c.Ambient["arm_code"] == "B" {
			t.Fatal("suspended arm B must not be emitted when matchOnClosed is false")
		}
	}

	found := false
	for _, c := range clauses {
		if c.Ambient["level_label"] == "10mg" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected the non-suspended dose-level clause under arm A")
	}
}

func TestExtract_MatchOnClosedIncludesSuspendedArm(t *testing.T) {
	trial := sampleTrial()
	clauses := Extract(trial, true)

	found := false
	for _, c := range clauses {
		if c.Ambient["arm_code"] == "B" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected suspended arm B to be emitted when matchOnClosed is true")
	}
}

func TestExtract_Level(t *testing.T) {
	trial := sampleTrial()
	clauses := Extract(trial, true)

	var doseLevel, armLevel bool
	for _, c := range clauses {
		switch c.Level {
		case match.LevelDose:
			doseLevel = true
		case match.LevelArm:
			armLevel = true
		}
	}
	if !doseLevel {
		t.Error("expected one clause at dose level")
	}
	if !armLevel {
		t.Error("expected one clause at arm level (suspended arm B's direct match)")
	}
}

func TestExtract_StepSuspensionAggregatesArms(t *testing.T) {
	trial := match.Trial{
		"protocol_no": "00-002",
		"status":      "open to accrual",
		"treatment_list": map[string]interface{}{
			"step": []interface{}{
				map[string]interface{}{
					"match": []interface{}{
						map[string]interface{}{"clinical": map[string]interface{}{"AGE_NUMERICAL": ">=18"}},
					},
					"arm": []interface{}{
						map[string]interface{}{"arm_suspended": "y"},
						map[string]interface{}{"arm_suspended": "y"},
					},
				},
			},
		},
	}

	if clauses := Extract(trial, false); len(clauses) != 0 {
		t.Fatalf("expected step clause to be skipped when every arm is suspended, got %d clauses", len(clauses))
	}
	if clauses := Extract(trial, true); len(clauses) != 1 {
		t.Fatalf("expected step clause to be emitted with matchOnClosed, got %d", len(clauses))
	}
}

func TestExtract_DefaultsMissingSuspensionFlagToNo(t *testing.T) {
	trial := match.Trial{
		"protocol_no": "00-003",
		"status":      "open to accrual",
		"treatment_list": map[string]interface{}{
			"step": []interface{}{
				map[string]interface{}{
					"arm": []interface{}{
						map[string]interface{}{
							"match": []interface{}{
								map[string]interface{}{"genomic": map[string]interface{}{"HUGO_SYMBOL": "EGFR"}},
							},
						},
					},
				},
			},
		},
	}

	if clauses := Extract(trial, false); len(clauses) != 1 {
		t.Fatalf("expected clause to be emitted when arm_suspended is absent, got %d", len(clauses))
	}
}
