package translate

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Service identifiers used to tag routed results.
const (
	ServiceGroq = "groq"
	ServiceHF   = "hf"
)

// GroqTranslator translates through Groq's OpenAI-compatible chat
// completions API. Fast, rate-limited free tier; no confidence scores, so
// a fixed one is reported.
type GroqTranslator struct {
	client    *openai.Client
	model     string
	available bool
}

func NewGroqTranslator(apiKey, baseURL, model string) *GroqTranslator {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &GroqTranslator{
		client:    openai.NewClientWithConfig(cfg),
		model:     model,
		available: strings.TrimSpace(apiKey) != "",
	}
}

func (g *GroqTranslator) Available() bool { return g.available }

func (g *GroqTranslator) Translate(ctx context.Context, text, sourceLang, targetLang string) (Translation, error) {
	if !g.available {
		return Translation{}, fmt.Errorf("groq: %w", ErrNoTranslators)
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt(sourceLang, targetLang)},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		// Low temperature keeps translations consistent across calls.
		Temperature: 0.1,
		MaxTokens:   1024,
	})
	if err != nil {
		return Translation{}, fmt.Errorf("groq: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Translation{}, fmt.Errorf("groq: empty completion")
	}

	return Translation{
		Text:       cleanTranslation(resp.Choices[0].Message.Content),
		Confidence: 0.90,
	}, nil
}

func systemPrompt(sourceLang, targetLang string) string {
	return fmt.Sprintf(
		"You are a professional translator. Translate the user's message from %s to %s. "+
			"Respond with only the translated text, no explanations, no quotes, no markdown.",
		sourceLang, targetLang)
}

// cleanTranslation strips decoration the model sometimes adds despite the
// prompt: surrounding quotes, code fences, and a "Translation:" prefix.
func cleanTranslation(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"Translation:", "translation:"} {
		s = strings.TrimSpace(strings.TrimPrefix(s, prefix))
	}
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			s = s[1 : len(s)-1]
		}
	}
	return strings.TrimSpace(s)
}
