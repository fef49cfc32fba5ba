package audit

import (
	"errors"
	"time"

	"github.com/danielpatrickdp/adaptive-state/policy-guard/internal/guard"
)

// ErrNotFound is returned by Get for an unknown entry ID.
var ErrNotFound = errors.New("audit entry not found")

// #region entry
// Entry is one recorded evaluation.
type Entry struct {
	ID           string            `json:"id"`
	AgentName    string            `json:"agent_name,omitempty"`
	Goal         string            `json:"goal"`
	Mood         float64           `json:"mood"`
	Verdict      guard.Verdict     `json:"verdict"`
	Fired        []FiredConstraint `json:"fired"`
	SnapshotJSON string            `json:"snapshot_json,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// FiredConstraint records which constraint fired and on what value.
type FiredConstraint struct {
	Name     string  `json:"name"`
	Observed float64 `json:"observed"`
}

// FiredFrom converts guard findings to their recorded form.
func FiredFrom(findings []guard.Finding) []FiredConstraint {
	out := make([]FiredConstraint, 0, len(findings))
	for _, f := range findings {
		out = append(out, FiredConstraint{Name: f.Constraint, Observed: f.Observed})
	}
	return out
}

// #endregion entry

// #region summary
// Summary aggregates all recorded evaluations.
type Summary struct {
	Count            int            `json:"count"`
	Rejected         int            `json:"rejected"`
	AvgMood          float64        `json:"avg_mood"`
	GoalCounts       map[string]int `json:"goal_counts"`
	ConstraintCounts map[string]int `json:"constraint_counts"`
}

// #endregion summary
