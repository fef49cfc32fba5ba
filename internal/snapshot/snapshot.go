// Package snapshot decodes agent state snapshot documents and classifies
// input failures before anything is evaluated.
package snapshot

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"

	"github.com/danielpatrickdp/adaptive-state/policy-guard/internal/guard"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema.json
var schemaJSON []byte

var (
	compiledSchema *gojsonschema.Schema
	compileOnce    sync.Once
	compileErr     error
)

func getSchema() (*gojsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiledSchema, compileErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	})
	return compiledSchema, compileErr
}

// #region load
// Load reads and decodes a snapshot document from path.
func Load(path string) (AgentStateSnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return AgentStateSnapshot{}, fmt.Errorf("%w: %s", ErrInputNotFound, path)
		}
		return AgentStateSnapshot{}, fmt.Errorf("%w: %w", ErrInputNotFound, err)
	}
	snap, err := Parse(data)
	if err != nil {
		return AgentStateSnapshot{}, fmt.Errorf("%s: %w", path, err)
	}
	return snap, nil
}

// Decode reads a whole snapshot document from r.
func Decode(r io.Reader) (AgentStateSnapshot, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return AgentStateSnapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	return Parse(data)
}

// #endregion load

// #region parse
// Parse validates data against the snapshot schema and decodes it.
func Parse(data []byte) (AgentStateSnapshot, error) {
	if !json.Valid(data) {
		return AgentStateSnapshot{}, fmt.Errorf("%w: document is not valid JSON", ErrInputMalformed)
	}

	problems, err := Validate(data)
	if err != nil {
		return AgentStateSnapshot{}, err
	}
	if len(problems) > 0 {
		return AgentStateSnapshot{}, &SchemaError{Problems: problems}
	}

	snap, err := decodeExact(data)
	if err != nil {
		return AgentStateSnapshot{}, fmt.Errorf("%w: %v", ErrInputMalformed, err)
	}
	snap.Raw = append(json.RawMessage(nil), data...)
	return snap, nil
}

// decodeExact decodes the document by exact key. Struct decoding would let a
// differently cased key such as "Mood" stand in for the validated "mood".
func decodeExact(data []byte) (AgentStateSnapshot, error) {
	var snap AgentStateSnapshot
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return snap, err
	}
	if err := pick(top, map[string]any{
		"agent_name":      &snap.AgentName,
		"identity_reason": &snap.IdentityReason,
		"user_input":      &snap.UserInput,
		"perception":      &snap.Perception,
		"goal":            &snap.Goal,
		"plan":            &snap.Plan,
		"reply":           &snap.Reply,
	}); err != nil {
		return snap, err
	}

	var state map[string]json.RawMessage
	if err := json.Unmarshal(top["state_snapshot"], &state); err != nil {
		return snap, fmt.Errorf("state_snapshot: %w", err)
	}
	err := pick(state, map[string]any{
		"mood":   &snap.StateSnapshot.Mood,
		"traits": &snap.StateSnapshot.Traits,
	})
	return snap, err
}

func pick(fields map[string]json.RawMessage, dst map[string]any) error {
	for key, ptr := range dst {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, ptr); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}

// Validate checks raw JSON against the snapshot schema and returns the
// violations found. A non-nil error means the schema itself could not be used.
func Validate(data []byte) ([]string, error) {
	schema, err := getSchema()
	if err != nil {
		return nil, fmt.Errorf("compiling snapshot schema: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInputMalformed, err)
	}
	if result.Valid() {
		return nil, nil
	}
	problems := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		problems = append(problems, e.String())
	}
	return problems, nil
}

// #endregion parse

// State projects the fields the guard reads.
func (s AgentStateSnapshot) State() guard.State {
	return guard.State{
		Mood:   s.StateSnapshot.Mood,
		Traits: s.StateSnapshot.Traits,
	}
}

// Document returns the snapshot as a JSON document, preferring the bytes it
// was decoded from.
func (s AgentStateSnapshot) Document() ([]byte, error) {
	if len(s.Raw) > 0 {
		return s.Raw, nil
	}
	if s.StateSnapshot.Traits == nil {
		s.StateSnapshot.Traits = map[string]float64{}
	}
	return json.Marshal(s)
}
