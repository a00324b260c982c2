package chat

import (
	"strings"
	"testing"
)

func TestSelectModel(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ModelFast},
		{"short", "Build a data processing pipeline", ModelFast},
		{"at complexity threshold", strings.Repeat("a", 70), ModelFast},
		{"above complexity threshold", strings.Repeat("a", 75), ModelReasoningLatest},
		{"at security threshold", strings.Repeat("a", 80), ModelReasoningLatest},
		{"above security threshold", strings.Repeat("a", 81), ModelReasoning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SelectModel(Complexity(tt.input)); got != tt.want {
				t.Errorf("SelectModel(len=%d) = %q, want %q", len(tt.input), got, tt.want)
			}
		})
	}
}

func TestComplexityCountsCharactersNotBytes(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  float64
	}{
		{"ascii", strings.Repeat("a", 50), 0.5},
		{"two-byte runes", strings.Repeat("é", 50), 0.5},
		{"three-byte runes", strings.Repeat("データ", 10), 0.3},
		{"astral runes count twice", strings.Repeat("🤖", 10), 0.2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Complexity(tt.input); got != tt.want {
				t.Errorf("Complexity = %v, want %v", got, tt.want)
			}
		})
	}

	// 40 runes of three bytes each stay under the threshold.
	if got := SelectModel(Complexity(strings.Repeat("処", 40))); got != ModelFast {
		t.Errorf("SelectModel = %q, want %q", got, ModelFast)
	}
}

func TestSuggestedWorkflowEdgesReferenceNodes(t *testing.T) {
	wf := SuggestedWorkflow()
	ids := make(map[string]bool, len(wf.Nodes))
	for _, n := range wf.Nodes {
		ids[n.ID] = true
	}
	for _, e := range wf.Edges {
		if !ids[e.Source] || !ids[e.Target] {
			t.Errorf("edge %s->%s references unknown node", e.Source, e.Target)
		}
	}
}
