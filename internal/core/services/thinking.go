package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/manthysbr/flowpilot/internal/core/domain"
	"github.com/manthysbr/flowpilot/internal/core/ports"
)

const thinkingHistoryCap = 500

// ThinkingService produces structured reasoning passes via the LLM and
// keeps a bounded history of thoughts for the reflection loop. A nil
// LLM provider degrades to canned responses so workers keep running
// without a model attached.
type ThinkingService struct {
	logger *slog.Logger
	llm    ports.LLMProvider

	mu      sync.Mutex
	history []domain.Thought
}

func NewThinkingService(logger *slog.Logger, llm ports.LLMProvider) *ThinkingService {
	return &ThinkingService{
		logger:  logger,
		llm:     llm,
		history: make([]domain.Thought, 0, thinkingHistoryCap),
	}
}

var promptFrames = map[domain.ThinkingType]string{
	domain.ThinkingAnalysis:       "Analyze the following situation and identify the key factors:",
	domain.ThinkingPlanning:       "Plan the steps required to handle:",
	domain.ThinkingReflection:     "Reflect on what happened and what could improve:",
	domain.ThinkingDecision:       "Decide between the available options for:",
	domain.ThinkingLearning:       "Extract lessons from:",
	domain.ThinkingProblemSolving: "Work through this problem step by step:",
}

var levelFrames = map[domain.ThoughtLevel]string{
	domain.LevelSurface: "Give a short, direct answer.",
	domain.LevelDeep:    "Consider second-order effects and edge cases.",
	domain.LevelMeta:    "Also examine the reasoning process itself.",
}

// Think runs one reasoning pass and stores the resulting thought.
func (s *ThinkingService) Think(ctx context.Context, worker string, kind domain.ThinkingType, level domain.ThoughtLevel, subject string, extra map[string]any) (domain.Thought, error) {
	frame, ok := promptFrames[kind]
	if !ok {
		frame = promptFrames[domain.ThinkingAnalysis]
		kind = domain.ThinkingAnalysis
	}
	levelHint, ok := levelFrames[level]
	if !ok {
		levelHint = levelFrames[domain.LevelSurface]
		level = domain.LevelSurface
	}

	prompt := fmt.Sprintf("%s\n%s\n%s", frame, subject, levelHint)

	content := fmt.Sprintf("[%s/%s] %s", kind, level, subject)
	if s.llm != nil {
		generated, err := s.llm.GenerateText(ctx, prompt)
		if err != nil {
			s.logger.Warn("thinking generation failed, keeping placeholder", "worker", worker, "error", err)
		} else {
			content = generated
		}
	}

	thought := domain.Thought{
		ID:        uuid.NewString(),
		Worker:    worker,
		Type:      kind,
		Level:     level,
		Prompt:    prompt,
		Content:   content,
		Context:   extra,
		CreatedAt: time.Now(),
	}
	s.append(thought)
	return thought, nil
}

// Record is a fire-and-forget Think used inside worker execution paths
// where a thinking failure must never fail the task.
func (s *ThinkingService) Record(ctx context.Context, worker string, kind domain.ThinkingType, level domain.ThoughtLevel, subject string, extra map[string]any) {
	if _, err := s.Think(ctx, worker, kind, level, subject, extra); err != nil {
		s.logger.Debug("thought discarded", "worker", worker, "error", err)
	}
}

// Collaborate runs a reflection pass for each participant and then a
// synthesis pass over their combined output.
func (s *ThinkingService) Collaborate(ctx context.Context, participants []string, topic string) (string, error) {
	var contributions []string
	for _, p := range participants {
		thought, err := s.Think(ctx, p, domain.ThinkingReflection, domain.LevelDeep, topic, nil)
		if err != nil {
			continue
		}
		contributions = append(contributions, fmt.Sprintf("%s: %s", p, thought.Content))
	}
	if len(contributions) == 0 {
		return "", fmt.Errorf("no participants produced a thought")
	}

	subject := fmt.Sprintf("Synthesize these perspectives on %q:\n%s", topic, strings.Join(contributions, "\n"))
	synthesis, err := s.Think(ctx, "synthesis", domain.ThinkingReflection, domain.LevelMeta, subject, nil)
	if err != nil {
		return "", err
	}
	return synthesis.Content, nil
}

// History returns up to limit thoughts, newest first. A worker filter
// of "" matches everything.
func (s *ThinkingService) History(worker string, limit int) []domain.Thought {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}
	out := make([]domain.Thought, 0, limit)
	for i := len(s.history) - 1; i >= 0 && len(out) < limit; i-- {
		if worker == "" || s.history[i].Worker == worker {
			out = append(out, s.history[i])
		}
	}
	return out
}

func (s *ThinkingService) append(t domain.Thought) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) >= thinkingHistoryCap {
		s.history = s.history[1:]
	}
	s.history = append(s.history, t)
}
