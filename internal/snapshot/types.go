package snapshot

import (
	"encoding/json"
	"errors"
	"strings"
)

// #region errors
// Input error classes. Every decode failure matches exactly one of these via errors.Is.
var (
	ErrInputNotFound  = errors.New("input not found")
	ErrInputMalformed = errors.New("input malformed")
	ErrSchemaMismatch = errors.New("schema mismatch")
)

// SchemaError lists the schema violations found in a document.
type SchemaError struct {
	Problems []string
}

func (e *SchemaError) Error() string {
	return "schema mismatch: " + strings.Join(e.Problems, "; ")
}

func (e *SchemaError) Unwrap() error { return ErrSchemaMismatch }

// Kind returns a stable label for an input error, or "" for other errors.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrInputNotFound):
		return "input_not_found"
	case errors.Is(err, ErrInputMalformed):
		return "input_malformed"
	case errors.Is(err, ErrSchemaMismatch):
		return "schema_mismatch"
	}
	return ""
}

// #endregion errors

// #region snapshot
// StateSnapshot holds the values the guard evaluates.
type StateSnapshot struct {
	Mood   float64            `json:"mood"`
	Traits map[string]float64 `json:"traits"`
}

// AgentStateSnapshot is one capture of the agent's state plus the
// contextual fields of the turn that produced it.
type AgentStateSnapshot struct {
	AgentName      Text            `json:"agent_name,omitempty"`
	IdentityReason Text            `json:"identity_reason,omitempty"`
	UserInput      Text            `json:"user_input,omitempty"`
	Perception     json.RawMessage `json:"perception,omitempty"`
	Goal           Text            `json:"goal,omitempty"`
	Plan           json.RawMessage `json:"plan,omitempty"`
	Reply          Text            `json:"reply,omitempty"`
	StateSnapshot  StateSnapshot   `json:"state_snapshot"`

	// Raw is the document as received.
	Raw json.RawMessage `json:"-"`
}

// Text is a contextual field that is normally a JSON string. Any other JSON
// value is kept as its literal text.
type Text string

// UnmarshalJSON accepts any JSON value; strings are unquoted.
func (t *Text) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = Text(s)
		return nil
	}
	*t = Text(b)
	return nil
}

// #endregion snapshot
