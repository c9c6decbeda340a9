package domain

// Intent is the result of classifying a free-form user message into an
// actionable operation plus extracted parameters.
type Intent struct {
	Name       string         `json:"intent"`
	Confidence float64        `json:"confidence"`
	Params     map[string]any `json:"params,omitempty"`
}

// Known intent names. Classification falls back to IntentUnknown when
// the model output cannot be parsed or names something unrecognized.
const (
	IntentSearchTemplates  = "search_templates"
	IntentImportTemplate   = "import_template"
	IntentListWorkflows    = "get_workflows"
	IntentActivateWorkflow = "activate_workflow"
	IntentMonitorSystem    = "monitor_system"
	IntentUnknown          = "unknown"
)
