package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/adaptive-state/policy-guard/internal/guard"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a regression fixture.
type Fixture struct {
	Description string        `json:"description"`
	Cases       []FixtureCase `json:"cases"`
}

// FixtureCase pairs a snapshot document with the verdict it must produce.
// ExpectError names an input error kind instead, for documents that must be
// rejected before evaluation.
type FixtureCase struct {
	Name        string          `json:"name"`
	Snapshot    json.RawMessage `json:"snapshot"`
	Expected    *guard.Verdict  `json:"expected,omitempty"`
	ExpectError string          `json:"expect_error,omitempty"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	for i, c := range f.Cases {
		if (c.Expected == nil) == (c.ExpectError == "") {
			return nil, fmt.Errorf("fixture %s: case %d (%s) needs exactly one of expected or expect_error", path, i, c.Name)
		}
	}
	return &f, nil
}

// #endregion fixture-loader
