package translate

import (
	"context"
	"strings"
	"time"
)

// StubTranslator returns deterministic translations for demo mode and
// tests. Dictionary hits are returned verbatim; anything else gets a
// "[lang]" prefix so callers can see the routing happened.
type StubTranslator struct {
	// Dictionary maps targetLang -> sourceText -> translatedText.
	Dictionary map[string]map[string]string
	// Delay simulates provider latency.
	Delay time.Duration
	// Err, when set, fails every call. Used to exercise fallback paths.
	Err error
	// Offline, when true, reports the backend as unavailable.
	Offline bool
}

// DefaultStubDictionary covers the demo phrase set.
func DefaultStubDictionary() map[string]map[string]string {
	return map[string]map[string]string{
		"english": {
			"Wĩ mwega?":     "How are you?",
			"Nĩ wega mũno":  "I'm very well",
			"Habari yako?":  "How are you?",
			"Mzuri sana":    "Very well",
		},
		"kikuyu": {
			"How are you?":  "Wĩ mwega?",
			"I'm very well": "Nĩ wega mũno",
		},
		"swahili": {
			"How are you?":  "Habari yako?",
			"Very well":     "Mzuri sana",
		},
	}
}

func (s *StubTranslator) Available() bool { return !s.Offline }

func (s *StubTranslator) Translate(ctx context.Context, text, sourceLang, targetLang string) (Translation, error) {
	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return Translation{}, ctx.Err()
		}
	}
	if s.Err != nil {
		return Translation{}, s.Err
	}
	if dict, ok := s.Dictionary[targetLang]; ok {
		if out, ok := dict[strings.TrimSpace(text)]; ok {
			return Translation{Text: out, Confidence: 0.95}, nil
		}
	}
	return Translation{Text: "[" + targetLang + "] " + text, Confidence: 0.95}, nil
}
