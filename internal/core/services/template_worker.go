package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/manthysbr/flowpilot/internal/core/domain"
	"github.com/manthysbr/flowpilot/internal/core/ports"
)

// TemplateWorker handles catalog operations: searching, analyzing,
// recommending and categorizing workflow templates.
type TemplateWorker struct {
	*BaseWorker
	catalog *TemplateService
}

func NewTemplateWorker(logger *slog.Logger, catalog *TemplateService, thinking *ThinkingService) *TemplateWorker {
	w := &TemplateWorker{
		BaseWorker: newBaseWorker("template-worker", "template", logger, thinking),
		catalog:    catalog,
	}
	w.register("search_templates", w.search)
	w.register("analyze_template", w.analyze)
	w.register("recommend_templates", w.recommend)
	w.register("categorize_templates", w.categorize)
	return w
}

func (w *TemplateWorker) search(ctx context.Context, task *domain.Task) (map[string]any, error) {
	filter := domain.TemplateFilter{
		Query:      stringParam(task.Payload, "query"),
		Category:   stringParam(task.Payload, "category"),
		Complexity: stringParam(task.Payload, "complexity"),
		Limit:      intParam(task.Payload, "limit", 20),
	}

	templates, err := w.catalog.Search(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("searching templates: %w", err)
	}

	return map[string]any{
		"templates": templates,
		"count":     len(templates),
		"query":     filter.Query,
	}, nil
}

func (w *TemplateWorker) analyze(ctx context.Context, task *domain.Task) (map[string]any, error) {
	id := domain.TemplateID(stringParam(task.Payload, "template_id"))
	if id == "" {
		return nil, fmt.Errorf("analyze_template requires template_id")
	}

	tmpl, err := w.catalog.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading template %s: %w", id, err)
	}

	analysis := analyzeWorkflowJSON(tmpl.JSONContent)
	analysis["template_id"] = string(tmpl.ID)
	analysis["name"] = tmpl.Name
	analysis["category"] = tmpl.Category
	return analysis, nil
}

// analyzeWorkflowJSON inspects a workflow definition and scores its
// complexity on a 0..1 scale from node count, connection count and the
// variety of node types.
func analyzeWorkflowJSON(raw string) map[string]any {
	var def struct {
		Nodes []struct {
			Type string `json:"type"`
		} `json:"nodes"`
		Connections map[string]any `json:"connections"`
	}
	if err := json.Unmarshal([]byte(raw), &def); err != nil {
		return map[string]any{
			"valid": false,
			"error": "invalid workflow JSON",
		}
	}

	types := make(map[string]int)
	for _, n := range def.Nodes {
		types[n.Type]++
	}

	score := float64(len(def.Nodes))*0.1 +
		float64(len(def.Connections))*0.2 +
		float64(len(types))*0.15
	if score > 1.0 {
		score = 1.0
	}

	level := "low"
	switch {
	case score > 0.7:
		level = "high"
	case score > 0.4:
		level = "medium"
	}

	return map[string]any{
		"valid":            true,
		"node_count":       len(def.Nodes),
		"connection_count": len(def.Connections),
		"node_types":       len(types),
		"complexity_score": score,
		"complexity":       level,
	}
}

// ScoredTemplate pairs a template with its recommendation score.
type ScoredTemplate struct {
	Template domain.Template `json:"template"`
	Score    float64         `json:"score"`
}

func (w *TemplateWorker) recommend(ctx context.Context, task *domain.Task) (map[string]any, error) {
	prefCategory := stringParam(task.Payload, "category")
	prefComplexity := stringParam(task.Payload, "complexity")

	templates, err := w.catalog.Search(ctx, domain.TemplateFilter{Limit: 200})
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}

	var picks []ScoredTemplate
	for _, t := range templates {
		score := 0.5
		if prefCategory != "" && strings.EqualFold(t.Category, prefCategory) {
			score += 0.3
		}
		if prefComplexity != "" && strings.EqualFold(t.Complexity, prefComplexity) {
			score += 0.2
		}
		if t.DownloadCount > 100 {
			score += 0.1
		}
		if score > 0.5 {
			picks = append(picks, ScoredTemplate{Template: t, Score: score})
		}
	}

	sort.Slice(picks, func(i, j int) bool { return picks[i].Score > picks[j].Score })
	if len(picks) > 10 {
		picks = picks[:10]
	}

	return map[string]any{
		"recommendations": picks,
		"count":           len(picks),
	}, nil
}

func (w *TemplateWorker) categorize(ctx context.Context, task *domain.Task) (map[string]any, error) {
	counts, err := w.catalog.Categories(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}

	total := 0
	for _, c := range counts {
		total += c.Count
	}

	return map[string]any{
		"categories": counts,
		"total":      total,
	}, nil
}

// stringParam reads an optional string from a task payload.
func stringParam(payload map[string]any, key string) string {
	if payload == nil {
		return ""
	}
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}

// intParam reads an optional int from a task payload, tolerating the
// float64 that JSON decoding produces.
func intParam(payload map[string]any, key string, def int) int {
	if payload == nil {
		return def
	}
	switch v := payload[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return def
	}
}

var _ ports.Worker = (*TemplateWorker)(nil)
