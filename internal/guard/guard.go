package guard

// #region defaults
// Constraint names, in evaluation order.
const (
	NameEmpathyFloor      = "empathy-floor"
	NameDirectnessCeiling = "directness-ceiling"
	NameMoodFloor         = "mood-floor"
)

// DefaultConstraints returns the standard rule table in evaluation order.
func DefaultConstraints() []Constraint {
	return []Constraint{
		TraitFloor(NameEmpathyFloor, "empathy", 0.4, 0.45,
			"Empathy too low (%.2f). Suggest increasing."),
		TraitCeiling(NameDirectnessCeiling, "directness", 0.9, 0.85,
			"Directness too high (%.2f). Suggest decreasing."),
		MoodFloor(NameMoodFloor, -0.7,
			"Mood very low (%.2f). Consider softening strategies."),
	}
}

// #endregion defaults

// #region guard
// Guard evaluates agent state snapshots against an ordered constraint table.
// A Guard is immutable and safe for concurrent use.
type Guard struct {
	constraints []Constraint
}

// New creates a guard over the given constraints. With no arguments the
// default table is used.
func New(constraints ...Constraint) *Guard {
	if len(constraints) == 0 {
		constraints = DefaultConstraints()
	}
	cs := make([]Constraint, len(constraints))
	copy(cs, constraints)
	return &Guard{constraints: cs}
}

// Constraints returns a copy of the rule table.
func (g *Guard) Constraints() []Constraint {
	cs := make([]Constraint, len(g.constraints))
	copy(cs, g.constraints)
	return cs
}

// Findings runs every constraint in table order and returns the ones that fired.
// Every constraint is checked regardless of earlier results.
func (g *Guard) Findings(s State) []Finding {
	var out []Finding
	for _, c := range g.constraints {
		v, fired := c.Check(s)
		if !fired {
			continue
		}
		f := Finding{
			Constraint: c.Name,
			Observed:   v,
			Warning:    c.Message(v),
		}
		if c.Adjust != nil {
			adj := *c.Adjust
			f.Adjust = &adj
		}
		out = append(out, f)
	}
	return out
}

// Evaluate returns the verdict for one snapshot.
func (g *Guard) Evaluate(s State) Verdict {
	return NewVerdict(g.Findings(s))
}

// #endregion guard

var defaultGuard = New()

// Evaluate runs the default constraint table.
func Evaluate(s State) Verdict {
	return defaultGuard.Evaluate(s)
}
