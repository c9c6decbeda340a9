package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/manthysbr/flowpilot/internal/core/domain"
	"github.com/manthysbr/flowpilot/internal/core/ports"
)

// VoiceProvider implements transcription and speech synthesis against
// the OpenAI audio endpoints (Whisper and TTS).
type VoiceProvider struct {
	client   *http.Client
	baseURL  string
	apiKey   string
	sttModel string
	ttsModel string
	ttsVoice string
}

func NewVoiceProvider(cfg domain.VoiceProviderConfig) *VoiceProvider {
	sttModel := cfg.STTModel
	if sttModel == "" {
		sttModel = "whisper-1"
	}
	ttsModel := cfg.TTSModel
	if ttsModel == "" {
		ttsModel = "tts-1"
	}
	ttsVoice := cfg.TTSVoice
	if ttsVoice == "" {
		ttsVoice = "alloy"
	}

	return &VoiceProvider{
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
		baseURL:  strings.TrimRight(cfg.URL, "/"),
		apiKey:   cfg.APIKey,
		sttModel: sttModel,
		ttsModel: ttsModel,
		ttsVoice: ttsVoice,
	}
}

// Transcribe sends audio to the transcription endpoint and returns the
// recognized text.
func (p *VoiceProvider) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return "", fmt.Errorf("failed to copy audio: %w", err)
	}
	if err := writer.WriteField("model", p.sttModel); err != nil {
		return "", fmt.Errorf("failed to write model field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call transcription API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		raw, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("transcription API returned status %d: %s", resp.StatusCode, string(raw))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return result.Text, nil
}

// Synthesize turns text into audio bytes (mp3).
func (p *VoiceProvider) Synthesize(ctx context.Context, text string) ([]byte, error) {
	payload := map[string]any{
		"model": p.ttsModel,
		"voice": p.ttsVoice,
		"input": text,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/audio/speech", bytes.NewReader(payloadBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call speech API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("speech API returned status %d: %s", resp.StatusCode, string(raw))
	}

	return io.ReadAll(resp.Body)
}

var _ ports.VoiceProvider = (*VoiceProvider)(nil)
