package snapshot

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danielpatrickdp/adaptive-state/policy-guard/internal/guard"
	"github.com/google/go-cmp/cmp"
)

const fullDoc = `{
	"agent_name": "astryx",
	"identity_reason": "default persona",
	"user_input": "hello there",
	"perception": {"sentiment": -0.2, "tokens": ["hello", "there"]},
	"goal": "comfort",
	"plan": ["acknowledge", "reassure"],
	"reply": "Hi! How are you?",
	"state_snapshot": {"mood": -0.9, "traits": {"empathy": 0.2, "directness": 0.95}}
}`

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snapshot.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestParseFullDocument(t *testing.T) {
	snap, err := Parse([]byte(fullDoc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.AgentName != "astryx" || snap.Goal != "comfort" {
		t.Errorf("contextual fields not carried: %+v", snap)
	}
	if !strings.Contains(string(snap.Perception), "sentiment") {
		t.Errorf("perception not carried verbatim: %s", snap.Perception)
	}

	want := guard.State{Mood: -0.9, Traits: map[string]float64{"empathy": 0.2, "directness": 0.95}}
	if diff := cmp.Diff(want, snap.State()); diff != "" {
		t.Fatalf("state mismatch (-want +got):\n%s", diff)
	}
	if string(snap.Raw) != fullDoc {
		t.Error("expected raw document to be retained")
	}
}

func TestParseMinimalDocument(t *testing.T) {
	snap, err := Parse([]byte(`{"state_snapshot": {"mood": 0.1, "traits": {}}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.StateSnapshot.Mood != 0.1 || len(snap.StateSnapshot.Traits) != 0 {
		t.Fatalf("unexpected state: %+v", snap.StateSnapshot)
	}
}

func TestParseNonStringContextIsOpaque(t *testing.T) {
	snap, err := Parse([]byte(`{"goal": 42, "reply": null, "state_snapshot": {"mood": 0, "traits": {}}}`))
	if err != nil {
		t.Fatalf("contextual fields must not be validated: %v", err)
	}
	if snap.Goal != "42" {
		t.Errorf("expected goal carried as literal text, got %q", snap.Goal)
	}
	if snap.Reply != "" {
		t.Errorf("expected empty reply for null, got %q", snap.Reply)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"empty", ``, ErrInputMalformed},
		{"truncated", `{"state_snapshot": {"mood": 0.1`, ErrInputMalformed},
		{"not an object", `[1, 2, 3]`, ErrSchemaMismatch},
		{"missing state_snapshot", `{"goal": "x"}`, ErrSchemaMismatch},
		{"missing mood", `{"state_snapshot": {"traits": {}}}`, ErrSchemaMismatch},
		{"missing traits", `{"state_snapshot": {"mood": 0}}`, ErrSchemaMismatch},
		{"string mood", `{"state_snapshot": {"mood": "low", "traits": {}}}`, ErrSchemaMismatch},
		{"null traits", `{"state_snapshot": {"mood": 0, "traits": null}}`, ErrSchemaMismatch},
		{"string trait", `{"state_snapshot": {"mood": 0, "traits": {"empathy": "high"}}}`, ErrSchemaMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestSchemaErrorListsProblems(t *testing.T) {
	_, err := Parse([]byte(`{"state_snapshot": {"mood": "low"}}`))

	var se *SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("expected *SchemaError, got %T: %v", err, err)
	}
	if len(se.Problems) < 2 {
		t.Fatalf("expected mood type and missing traits problems, got %v", se.Problems)
	}
}

func TestLoad(t *testing.T) {
	path := writeFile(t, fullDoc)

	snap, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.StateSnapshot.Mood != -0.9 {
		t.Fatalf("expected mood -0.9, got %v", snap.StateSnapshot.Mood)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if !errors.Is(err, ErrInputNotFound) {
		t.Fatalf("expected ErrInputNotFound, got %v", err)
	}
	if Kind(err) != "input_not_found" {
		t.Fatalf("unexpected kind %q", Kind(err))
	}
}

func TestLoadDirectory(t *testing.T) {
	_, err := Load(t.TempDir())
	if !errors.Is(err, ErrInputNotFound) {
		t.Fatalf("expected unreadable input to be ErrInputNotFound, got %v", err)
	}
}

func TestLoadMalformedKeepsPath(t *testing.T) {
	path := writeFile(t, `{not json`)

	_, err := Load(path)
	if !errors.Is(err, ErrInputMalformed) {
		t.Fatalf("expected ErrInputMalformed, got %v", err)
	}
	if !strings.Contains(err.Error(), path) {
		t.Errorf("expected error to name %s: %v", path, err)
	}
}

func TestDecode(t *testing.T) {
	snap, err := Decode(strings.NewReader(`{"state_snapshot": {"mood": 0.3, "traits": {"empathy": 0.5}}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.StateSnapshot.Traits["empathy"] != 0.5 {
		t.Fatalf("unexpected traits: %v", snap.StateSnapshot.Traits)
	}
}

func TestKind(t *testing.T) {
	if Kind(&SchemaError{}) != "schema_mismatch" {
		t.Error("expected schema_mismatch")
	}
	if Kind(errors.New("other")) != "" {
		t.Error("expected empty kind for unrelated error")
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	snap := AgentStateSnapshot{Goal: "explore", StateSnapshot: StateSnapshot{Mood: 0.2}}

	doc, err := snap.Document()
	if err != nil {
		t.Fatalf("document: %v", err)
	}
	back, err := Parse(doc)
	if err != nil {
		t.Fatalf("re-parse %s: %v", doc, err)
	}
	if back.Goal != "explore" || back.StateSnapshot.Mood != 0.2 {
		t.Fatalf("round trip lost fields: %+v", back)
	}
}

func TestParseIgnoresCaseVariantKeys(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want guard.State
	}{
		{
			name: "mood",
			doc:  `{"state_snapshot": {"mood": -0.9, "Mood": 0.5, "traits": {"empathy": 0.2}}}`,
			want: guard.State{Mood: -0.9, Traits: map[string]float64{"empathy": 0.2}},
		},
		{
			name: "traits",
			doc:  `{"state_snapshot": {"mood": 0, "traits": {"empathy": 0.9}, "Traits": {"empathy": 0.1}}}`,
			want: guard.State{Mood: 0, Traits: map[string]float64{"empathy": 0.9}},
		},
		{
			name: "state_snapshot",
			doc:  `{"state_snapshot": {"mood": 0.2, "traits": {"empathy": 0.6}}, "STATE_SNAPSHOT": {"mood": "x", "traits": {}}}`,
			want: guard.State{Mood: 0.2, Traits: map[string]float64{"empathy": 0.6}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, err := Parse([]byte(tt.doc))
			if err != nil {
				t.Fatalf("unexpected error (kind %q): %v", Kind(err), err)
			}
			if diff := cmp.Diff(tt.want, snap.State()); diff != "" {
				t.Fatalf("state mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCaseVariantMoodDoesNotMaskFloor(t *testing.T) {
	snap, err := Parse([]byte(`{"state_snapshot": {"mood": -0.9, "Mood": 0.5, "traits": {"empathy": 0.2}}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := guard.Evaluate(snap.State())

	want := []string{
		"Empathy too low (0.20). Suggest increasing.",
		"Mood very low (-0.90). Consider softening strategies.",
	}
	if diff := cmp.Diff(want, got.Warnings); diff != "" {
		t.Fatalf("warnings mismatch (-want +got):\n%s", diff)
	}
}

func TestParseIgnoresCaseVariantContext(t *testing.T) {
	snap, err := Parse([]byte(`{"goal": "comfort", "Goal": "inform", "state_snapshot": {"mood": 0, "traits": {}}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Goal != "comfort" {
		t.Fatalf("expected goal from exact key, got %q", snap.Goal)
	}
}
