package domain

// ProviderConfig holds configuration for all AI providers
type ProviderConfig struct {
	LLM   LLMProviderConfig   `json:"llm"`
	Voice VoiceProviderConfig `json:"voice"`
}

// LLMProviderConfig configures the LLM provider
type LLMProviderConfig struct {
	Mode         string `json:"mode"`          // "local", "ollama" or "remote"
	LocalURL     string `json:"local_url"`     // "http://localhost:11434/v1"
	RemoteURL    string `json:"remote_url"`    // "https://api.openai.com/v1"
	APIKey       string `json:"api_key"`       // Encrypted in storage
	DefaultModel string `json:"default_model"` // "gemma3:12b" or "gpt-4"
}

// VoiceProviderConfig configures transcription and speech synthesis
type VoiceProviderConfig struct {
	Mode     string `json:"mode"` // "remote" only for now
	URL      string `json:"url"`  // "https://api.openai.com/v1"
	APIKey   string `json:"api_key"`
	STTModel string `json:"stt_model"` // "whisper-1"
	TTSModel string `json:"tts_model"` // "tts-1"
	TTSVoice string `json:"tts_voice"` // "alloy"
}

// OrchestratorConfig tunes the task orchestration layer
type OrchestratorConfig struct {
	QueueCapacity      int `json:"queue_capacity"`
	MaxConcurrent      int `json:"max_concurrent"`
	HistoryCapacity    int `json:"history_capacity"`
	PollIntervalMS     int `json:"poll_interval_ms"`
	HealthIntervalSec  int `json:"health_interval_sec"`
	IdleWarnThresholdS int `json:"idle_warn_threshold_sec"`
	ReflectIntervalSec int `json:"reflect_interval_sec"`
}

// AppConfig is the main application configuration
type AppConfig struct {
	Providers    ProviderConfig     `json:"providers"`
	Orchestrator OrchestratorConfig `json:"orchestrator"`
	DefaultN8N   string             `json:"default_n8n_url"`
}

// DefaultConfig returns safe defaults
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Providers: ProviderConfig{
			LLM: LLMProviderConfig{
				Mode:         "local",
				LocalURL:     "http://localhost:11434/v1",
				DefaultModel: "gemma3:12b",
			},
			Voice: VoiceProviderConfig{
				Mode:     "remote",
				URL:      "https://api.openai.com/v1",
				STTModel: "whisper-1",
				TTSModel: "tts-1",
				TTSVoice: "alloy",
			},
		},
		Orchestrator: OrchestratorConfig{
			QueueCapacity:      256,
			MaxConcurrent:      8,
			HistoryCapacity:    1000,
			PollIntervalMS:     100,
			HealthIntervalSec:  60,
			IdleWarnThresholdS: 3600,
			ReflectIntervalSec: 600,
		},
		DefaultN8N: "http://localhost:5678",
	}
}
