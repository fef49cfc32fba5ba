package guard

import "fmt"

// #region state
// State is the part of an agent snapshot the guard reads.
type State struct {
	Mood   float64
	Traits map[string]float64
}

// Trait looks up a trait. A missing trait is reported as absent, never as zero.
func (s State) Trait(name string) (float64, bool) {
	v, ok := s.Traits[name]
	return v, ok
}

// #endregion state

// #region constraint
// Adjustment is a suggested replacement value for one trait.
type Adjustment struct {
	Trait string
	Value float64
}

// Constraint is one named rule. Check returns the observed value and whether
// the rule fired; Message renders the warning for that value. Adjust is nil
// when the rule has no corrective value.
type Constraint struct {
	Name    string
	Check   func(State) (float64, bool)
	Message func(float64) string
	Adjust  *Adjustment
}

// Finding is a constraint that fired against a snapshot.
type Finding struct {
	Constraint string
	Observed   float64
	Warning    string
	Adjust     *Adjustment
}

// #endregion constraint

// #region verdict
// Verdict is the aggregate result of running every constraint against one snapshot.
type Verdict struct {
	OK                        bool               `json:"ok"`
	Warnings                  []string           `json:"warnings"`
	SuggestedTraitAdjustments map[string]float64 `json:"suggested_trait_adjustments"`
}

// NewVerdict builds a verdict from findings in the order they were produced.
// OK is derived from the warning list.
func NewVerdict(findings []Finding) Verdict {
	v := Verdict{
		Warnings:                  make([]string, 0, len(findings)),
		SuggestedTraitAdjustments: make(map[string]float64),
	}
	for _, f := range findings {
		v.Warnings = append(v.Warnings, f.Warning)
		if f.Adjust != nil {
			v.SuggestedTraitAdjustments[f.Adjust.Trait] = f.Adjust.Value
		}
	}
	v.OK = len(v.Warnings) == 0
	return v
}

// #endregion verdict

// #region constructors
// TraitFloor fires when trait is present and strictly below floor.
func TraitFloor(name, trait string, floor, suggest float64, format string) Constraint {
	return Constraint{
		Name: name,
		Check: func(s State) (float64, bool) {
			v, ok := s.Trait(trait)
			return v, ok && v < floor
		},
		Message: func(v float64) string { return fmt.Sprintf(format, v) },
		Adjust:  &Adjustment{Trait: trait, Value: suggest},
	}
}

// TraitCeiling fires when trait is present and strictly above ceiling.
func TraitCeiling(name, trait string, ceiling, suggest float64, format string) Constraint {
	return Constraint{
		Name: name,
		Check: func(s State) (float64, bool) {
			v, ok := s.Trait(trait)
			return v, ok && v > ceiling
		},
		Message: func(v float64) string { return fmt.Sprintf(format, v) },
		Adjust:  &Adjustment{Trait: trait, Value: suggest},
	}
}

// MoodFloor fires when mood is strictly below floor. It suggests no adjustment.
func MoodFloor(name string, floor float64, format string) Constraint {
	return Constraint{
		Name: name,
		Check: func(s State) (float64, bool) {
			return s.Mood, s.Mood < floor
		},
		Message: func(v float64) string { return fmt.Sprintf(format, v) },
	}
}

// #endregion constructors
