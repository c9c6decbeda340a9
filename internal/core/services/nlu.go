package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/manthysbr/flowpilot/internal/core/domain"
	"github.com/manthysbr/flowpilot/internal/core/ports"
)

const classifyPrompt = `You are an intent classifier for a workflow automation assistant.
Classify the user message into one of these intents:
search_templates, import_template, get_workflows, activate_workflow, monitor_system.

Respond with JSON only, no prose:
{"intent": "<name>", "confidence": 0.0-1.0, "params": {}}

User message: %s`

// NLUService turns free-form chat messages into actionable intents.
type NLUService struct {
	logger *slog.Logger
	llm    ports.LLMProvider
}

func NewNLUService(logger *slog.Logger, llm ports.LLMProvider) *NLUService {
	return &NLUService{logger: logger, llm: llm}
}

var knownIntents = map[string]bool{
	domain.IntentSearchTemplates:  true,
	domain.IntentImportTemplate:   true,
	domain.IntentListWorkflows:    true,
	domain.IntentActivateWorkflow: true,
	domain.IntentMonitorSystem:    true,
}

// Classify asks the model to label the message. Anything unparseable
// or unrecognized becomes the unknown intent instead of an error so the
// chat surface can always respond.
func (s *NLUService) Classify(ctx context.Context, message string) domain.Intent {
	unknown := domain.Intent{Name: domain.IntentUnknown, Confidence: 0}

	if s.llm == nil || strings.TrimSpace(message) == "" {
		return unknown
	}

	raw, err := s.llm.GenerateText(ctx, fmt.Sprintf(classifyPrompt, message))
	if err != nil {
		s.logger.Warn("intent classification failed", "error", err)
		return unknown
	}

	payload := extractJSON(raw)
	if payload == "" {
		s.logger.Debug("no JSON in classifier output", "raw_len", len(raw))
		return unknown
	}

	var intent domain.Intent
	if err := json.Unmarshal([]byte(payload), &intent); err != nil {
		s.logger.Debug("classifier output not valid JSON", "error", err)
		return unknown
	}

	if !knownIntents[intent.Name] {
		return unknown
	}
	if intent.Confidence < 0 || intent.Confidence > 1 {
		intent.Confidence = 0.5
	}
	return intent
}

// extractJSON pulls the first JSON object out of model output that may
// be wrapped in prose or markdown fences.
func extractJSON(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}
