package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// mmsVariants maps wire language names to per-language MMS TTS model
// suffixes.
var mmsVariants = map[string]string{
	"kikuyu":  "kik",
	"english": "eng",
	"swahili": "swh",
}

// HFTranscriber runs speech recognition through the Hugging Face Inference
// API. The API returns no confidence score, so a fixed one is reported.
type HFTranscriber struct {
	baseURL string
	model   string
	token   string
	client  *http.Client
}

func NewHFTranscriber(token, baseURL, model string) *HFTranscriber {
	return &HFTranscriber{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		token:   token,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

func (h *HFTranscriber) Transcribe(ctx context.Context, audioPath, language string) (Transcription, error) {
	audio, err := os.ReadFile(audioPath)
	if err != nil {
		return Transcription{}, fmt.Errorf("read audio: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s", h.baseURL, h.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(audio))
	if err != nil {
		return Transcription{}, err
	}
	req.Header.Set("Authorization", "Bearer "+h.token)
	req.Header.Set("Content-Type", "audio/wav")

	resp, err := h.client.Do(req)
	if err != nil {
		return Transcription{}, fmt.Errorf("hf asr: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Transcription{}, fmt.Errorf("hf asr: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var decoded struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Transcription{}, fmt.Errorf("hf asr: decode response: %w", err)
	}
	return Transcription{Text: strings.TrimSpace(decoded.Text), Confidence: 0.95}, nil
}

// HFSynthesizer renders speech through MMS TTS models on the Hugging Face
// Inference API, one model per language. Output is written to a temp file
// under mediaDir; the caller removes it.
type HFSynthesizer struct {
	baseURL  string
	model    string
	token    string
	mediaDir string
	client   *http.Client
}

func NewHFSynthesizer(token, baseURL, model, mediaDir string) *HFSynthesizer {
	return &HFSynthesizer{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		model:    model,
		token:    token,
		mediaDir: mediaDir,
		client:   &http.Client{Timeout: 120 * time.Second},
	}
}

func (h *HFSynthesizer) modelFor(language string) string {
	if v, ok := mmsVariants[language]; ok {
		return h.model + "-" + v
	}
	return h.model
}

func (h *HFSynthesizer) Synthesize(ctx context.Context, text, language string) (string, error) {
	body, err := json.Marshal(map[string]string{"inputs": text})
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/models/%s", h.baseURL, h.modelFor(language))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+h.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("hf tts: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("hf tts: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	out, err := os.CreateTemp(h.mediaDir, "tts_*.wav")
	if err != nil {
		return "", fmt.Errorf("hf tts: create output: %w", err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		_ = out.Close()
		_ = os.Remove(out.Name())
		return "", fmt.Errorf("hf tts: write output: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(out.Name())
		return "", err
	}
	return out.Name(), nil
}
