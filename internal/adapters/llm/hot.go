package llm

import (
	"context"
	"io"
	"sync"

	"github.com/manthysbr/flowpilot/internal/core/ports"
)

// HotProvider wraps the active LLM provider behind a lock so settings
// updates can swap it in without restarting the process.
type HotProvider struct {
	mu    sync.RWMutex
	inner ports.LLMProvider
}

func NewHotProvider(inner ports.LLMProvider) *HotProvider {
	return &HotProvider{inner: inner}
}

func (h *HotProvider) Set(inner ports.LLMProvider) {
	h.mu.Lock()
	h.inner = inner
	h.mu.Unlock()
}

func (h *HotProvider) GenerateText(ctx context.Context, prompt string) (string, error) {
	h.mu.RLock()
	inner := h.inner
	h.mu.RUnlock()
	return inner.GenerateText(ctx, prompt)
}

var _ ports.LLMProvider = (*HotProvider)(nil)

// HotVoice is the same swap wrapper for the voice provider.
type HotVoice struct {
	mu    sync.RWMutex
	inner ports.VoiceProvider
}

func NewHotVoice(inner ports.VoiceProvider) *HotVoice {
	return &HotVoice{inner: inner}
}

func (h *HotVoice) Set(inner ports.VoiceProvider) {
	h.mu.Lock()
	h.inner = inner
	h.mu.Unlock()
}

func (h *HotVoice) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	h.mu.RLock()
	inner := h.inner
	h.mu.RUnlock()
	return inner.Transcribe(ctx, audio, filename)
}

func (h *HotVoice) Synthesize(ctx context.Context, text string) ([]byte, error) {
	h.mu.RLock()
	inner := h.inner
	h.mu.RUnlock()
	return inner.Synthesize(ctx, text)
}

var _ ports.VoiceProvider = (*HotVoice)(nil)
