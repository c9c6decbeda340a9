package domain

import "time"

type ThinkingType string
type ThoughtLevel string

const (
	ThinkingAnalysis       ThinkingType = "analysis"
	ThinkingPlanning       ThinkingType = "planning"
	ThinkingReflection     ThinkingType = "reflection"
	ThinkingDecision       ThinkingType = "decision"
	ThinkingLearning       ThinkingType = "learning"
	ThinkingProblemSolving ThinkingType = "problem_solving"

	LevelSurface ThoughtLevel = "surface"
	LevelDeep    ThoughtLevel = "deep"
	LevelMeta    ThoughtLevel = "meta"
)

// Thought is one reasoning pass produced by a worker or the reflection
// loop, kept in the thinking history for later synthesis.
type Thought struct {
	ID        string         `json:"id"`
	Worker    string         `json:"worker"`
	Type      ThinkingType   `json:"type"`
	Level     ThoughtLevel   `json:"level"`
	Prompt    string         `json:"prompt"`
	Content   string         `json:"content"`
	Context   map[string]any `json:"context,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
