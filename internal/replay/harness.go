// Package replay runs recorded snapshots through the guard and compares the
// verdicts against expectations.
package replay

import (
	"fmt"

	"github.com/danielpatrickdp/adaptive-state/policy-guard/internal/guard"
	"github.com/danielpatrickdp/adaptive-state/policy-guard/internal/snapshot"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// #region types
// CaseResult is the outcome of replaying one fixture case.
type CaseResult struct {
	Name   string
	Passed bool
	Got    guard.Verdict
	Kind   string // input error kind, when the snapshot was rejected
	Diff   string // -want +got, empty when passed
}

// Summary provides aggregate stats from a replay run.
type Summary struct {
	Total  int
	Passed int
	Failed int
}

// #endregion types

// #region replay
// Run evaluates every case with g, in fixture order.
func Run(f *Fixture, g *guard.Guard) []CaseResult {
	results := make([]CaseResult, 0, len(f.Cases))
	for _, c := range f.Cases {
		results = append(results, runCase(c, g))
	}
	return results
}

func runCase(c FixtureCase, g *guard.Guard) CaseResult {
	res := CaseResult{Name: c.Name}

	snap, err := snapshot.Parse(c.Snapshot)
	if err != nil {
		res.Kind = snapshot.Kind(err)
		if c.ExpectError != "" && c.ExpectError == res.Kind {
			res.Passed = true
			return res
		}
		res.Diff = fmt.Sprintf("unexpected input error: %v", err)
		return res
	}
	if c.ExpectError != "" {
		res.Diff = fmt.Sprintf("expected input error %q, snapshot was accepted", c.ExpectError)
		return res
	}

	res.Got = g.Evaluate(snap.State())
	res.Diff = cmp.Diff(*c.Expected, res.Got, cmpopts.EquateEmpty())
	res.Passed = res.Diff == ""
	return res
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []CaseResult) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		if r.Passed {
			s.Passed++
		} else {
			s.Failed++
		}
	}
	return s
}

// #endregion replay
