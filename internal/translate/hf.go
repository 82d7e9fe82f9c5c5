package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// nllbCodes maps the language names used on the wire to NLLB's BCP-47-ish
// codes. Unknown languages fall through untranslated and the API rejects
// them.
var nllbCodes = map[string]string{
	"kikuyu":  "kik_Latn",
	"english": "eng_Latn",
	"swahili": "swh_Latn",
}

// HFTranslator calls a translation model hosted on the Hugging Face
// Inference API. Better quality for low-resource languages than the LLM
// path; the API reports no confidence, so a fixed one is used.
type HFTranslator struct {
	baseURL   string
	model     string
	token     string
	client    *http.Client
	available bool
}

func NewHFTranslator(token, baseURL, model string) *HFTranslator {
	return &HFTranslator{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		model:     model,
		token:     token,
		client:    &http.Client{Timeout: 60 * time.Second},
		available: strings.TrimSpace(token) != "",
	}
}

func (h *HFTranslator) Available() bool { return h.available }

type hfTranslationReq struct {
	Inputs     string            `json:"inputs"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

type hfTranslationResp struct {
	TranslationText string `json:"translation_text"`
	GeneratedText   string `json:"generated_text"`
}

func (h *HFTranslator) Translate(ctx context.Context, text, sourceLang, targetLang string) (Translation, error) {
	if !h.available {
		return Translation{}, fmt.Errorf("hf: %w", ErrNoTranslators)
	}

	params := map[string]string{}
	if src, ok := nllbCodes[sourceLang]; ok {
		params["src_lang"] = src
	}
	if tgt, ok := nllbCodes[targetLang]; ok {
		params["tgt_lang"] = tgt
	}

	body, err := json.Marshal(hfTranslationReq{Inputs: text, Parameters: params})
	if err != nil {
		return Translation{}, err
	}

	url := fmt.Sprintf("%s/models/%s", h.baseURL, h.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Translation{}, err
	}
	req.Header.Set("Authorization", "Bearer "+h.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return Translation{}, fmt.Errorf("hf: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Translation{}, fmt.Errorf("hf: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var decoded []hfTranslationResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Translation{}, fmt.Errorf("hf: decode response: %w", err)
	}
	if len(decoded) == 0 {
		return Translation{}, fmt.Errorf("hf: empty response")
	}

	out := decoded[0].TranslationText
	if out == "" {
		out = decoded[0].GeneratedText
	}
	return Translation{Text: strings.TrimSpace(out), Confidence: 0.92}, nil
}
