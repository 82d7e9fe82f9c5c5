package speech

import (
	"context"
	"os"
	"sync"
	"time"
)

// demoPhrases rotate through plausible transcriptions per language so demo
// mode produces varied conversations without any model.
var demoPhrases = map[string][]string{
	"kikuyu": {
		"Wĩ mwega?",
		"Nĩ wega mũno",
		"Rĩĩtwa rĩaku nĩ atĩa?",
	},
	"english": {
		"How are you?",
		"I'm very well",
		"What is your name?",
	},
	"swahili": {
		"Habari yako?",
		"Mzuri sana",
		"Jina lako ni nani?",
	},
}

// StubTranscriber returns canned transcriptions for demo mode and tests.
type StubTranscriber struct {
	// Delay simulates recognition latency.
	Delay time.Duration
	// Err, when set, fails every call.
	Err error
	// Text, when set, is returned verbatim instead of the demo rotation.
	Text string

	mu      sync.Mutex
	counter int
}

func (s *StubTranscriber) Transcribe(ctx context.Context, audioPath, language string) (Transcription, error) {
	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return Transcription{}, ctx.Err()
		}
	}
	if s.Err != nil {
		return Transcription{}, s.Err
	}
	if s.Text != "" {
		return Transcription{Text: s.Text, Confidence: 0.93}, nil
	}

	phrases, ok := demoPhrases[language]
	if !ok {
		phrases = demoPhrases["english"]
	}
	s.mu.Lock()
	phrase := phrases[s.counter%len(phrases)]
	s.counter++
	s.mu.Unlock()

	return Transcription{Text: phrase, Confidence: 0.93}, nil
}

// StubSynthesizer writes a tiny placeholder file where real audio would
// go, preserving the produce-file/consume-file contract of the pipeline.
type StubSynthesizer struct {
	MediaDir string
	Delay    time.Duration
	Err      error
}

func (s *StubSynthesizer) Synthesize(ctx context.Context, text, language string) (string, error) {
	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if s.Err != nil {
		return "", s.Err
	}

	dir := s.MediaDir
	if dir == "" {
		dir = os.TempDir()
	}
	out, err := os.CreateTemp(dir, "tts_stub_*.wav")
	if err != nil {
		return "", err
	}
	// RIFF header only; enough for anything that sniffs the payload.
	if _, err := out.Write([]byte("RIFF\x00\x00\x00\x00WAVE")); err != nil {
		_ = out.Close()
		_ = os.Remove(out.Name())
		return "", err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(out.Name())
		return "", err
	}
	return out.Name(), nil
}
