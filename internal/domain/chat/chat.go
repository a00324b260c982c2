// Package chat defines the intent-analysis model behind the agent chat.
package chat

import (
	"time"
	"unicode/utf16"
)

// Model identifiers the analysis can recommend.
const (
	ModelFast            = "gpt-4o-mini"
	ModelReasoning       = "o1"
	ModelReasoningLatest = "o3-mini"
)

// Model-selection thresholds on the complexity score.
const (
	ComplexityThreshold = 0.7
	SecurityThreshold   = 0.8
)

// Message is a single chat message.
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Sender    string    `json:"sender"` // "user" | "agent"
	Timestamp time.Time `json:"timestamp"`
	Analysis  *Analysis `json:"analysis,omitempty"`
}

// Node is a workflow step suggested by the analysis.
type Node struct {
	ID          string `json:"id"`
	Type        string `json:"type"` // "agent" | "processor" | "data"
	Label       string `json:"label"`
	Description string `json:"description"`
}

// Edge connects two workflow nodes by id.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Workflow is a suggested node graph for the workflow builder.
type Workflow struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Analysis is the outcome of analyzing a chat prompt.
type Analysis struct {
	Model      string   `json:"model"`
	Complexity float64  `json:"complexity"`
	Confidence float64  `json:"confidence"`
	Workflow   Workflow `json:"workflow"`
}

// Complexity scores a prompt by length: 100 characters score 1.0. Length is
// counted in UTF-16 code units, as the dashboard's text inputs count it.
func Complexity(input string) float64 {
	return float64(len(utf16.Encode([]rune(input)))) / 100
}

// SelectModel picks the model for a complexity score.
func SelectModel(complexity float64) string {
	switch {
	case complexity > SecurityThreshold:
		return ModelReasoning
	case complexity > ComplexityThreshold:
		return ModelReasoningLatest
	default:
		return ModelFast
	}
}

// SuggestedWorkflow returns the three-step scrape, process, store pipeline.
func SuggestedWorkflow() Workflow {
	return Workflow{
		Nodes: []Node{
			{ID: "1", Type: "agent", Label: "Web Scraper", Description: "Scrapes web content"},
			{ID: "2", Type: "processor", Label: "Data Processor", Description: "Processes data"},
			{ID: "3", Type: "data", Label: "Storage", Description: "Stores results"},
		},
		Edges: []Edge{
			{Source: "1", Target: "2"},
			{Source: "2", Target: "3"},
		},
	}
}
