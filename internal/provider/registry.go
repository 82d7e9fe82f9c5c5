package provider

import (
	"go.uber.org/zap"

	"github.com/lughabridge/lughabridge/internal/config"
	"github.com/lughabridge/lughabridge/internal/speech"
	"github.com/lughabridge/lughabridge/internal/translate"
)

// Registry holds the pipeline's service handles. It is assembled exactly
// once at process start and passed by reference to consumers; there is no
// hidden shared state to reset between tests.
type Registry struct {
	ASR        speech.Transcriber
	Translator *translate.Router
	TTS        speech.Synthesizer
}

// Build selects providers from configuration. Demo mode wires stubs so the
// whole pipeline runs without credentials or models; otherwise Groq and the
// Hugging Face Inference API are registered with the stock affinity rules.
// Construction fails when no translation backend is available.
func Build(cfg config.Config, logger *zap.SugaredLogger) (*Registry, error) {
	if cfg.DemoMode {
		logger.Infow("demo mode: using stub providers")
		router, err := translate.NewRouter([]translate.Candidate{
			{
				Name:       "stub",
				Quality:    1,
				Translator: &translate.StubTranslator{Dictionary: translate.DefaultStubDictionary()},
			},
		}, nil, logger)
		if err != nil {
			return nil, err
		}
		return &Registry{
			ASR:        &speech.StubTranscriber{},
			Translator: router,
			TTS:        &speech.StubSynthesizer{MediaDir: cfg.MediaDir},
		}, nil
	}

	groq := translate.NewGroqTranslator(cfg.GroqAPIKey, cfg.GroqBaseURL, cfg.GroqModel)
	hf := translate.NewHFTranslator(cfg.HFToken, cfg.HFBaseURL, cfg.HFTranslationModel)
	if groq.Available() {
		logger.Infow("groq translator registered", "model", cfg.GroqModel)
	}
	if hf.Available() {
		logger.Infow("hf translator registered", "model", cfg.HFTranslationModel)
	}

	router, err := translate.NewRouter([]translate.Candidate{
		{Name: translate.ServiceGroq, Quality: 1, Translator: groq},
		{Name: translate.ServiceHF, Quality: 2, Translator: hf},
	}, translate.DefaultRules(), logger)
	if err != nil {
		return nil, err
	}

	return &Registry{
		ASR:        speech.NewHFTranscriber(cfg.HFToken, cfg.HFBaseURL, cfg.HFASRModel),
		Translator: router,
		TTS:        speech.NewHFSynthesizer(cfg.HFToken, cfg.HFBaseURL, cfg.HFTTSModel, cfg.MediaDir),
	}, nil
}
