package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr string
	LogLevel string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Room store
	RoomCodeLength  int
	RoomTTL         time.Duration
	MaxRoomMessages int

	SupportedLanguages []string

	// Pipeline
	DemoMode        bool
	PipelineWorkers int
	ProviderTimeout time.Duration
	MediaDir        string

	// Groq (fast translation, OpenAI-compatible API)
	GroqAPIKey  string
	GroqBaseURL string
	GroqModel   string

	// Hugging Face Inference API
	HFToken            string
	HFBaseURL          string
	HFASRModel         string
	HFTranslationModel string
	HFTTSModel         string

	// Optional pipeline outcome journal
	RabbitURL   string
	RabbitQueue string
}

func Load() Config {
	httpAddr := os.Getenv("HTTP_ADDR")
	if httpAddr == "" {
		httpAddr = ":8000"
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "127.0.0.1:6379"
	}

	redisDB := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			redisDB = n
		}
	}

	codeLength := 6
	if v := os.Getenv("ROOM_CODE_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 4 && n <= 12 {
			codeLength = n
		}
	}

	roomTTL := 4 * time.Hour
	if v := os.Getenv("ROOM_EXPIRY_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			roomTTL = time.Duration(n) * time.Hour
		}
	}

	maxMessages := 100
	if v := os.Getenv("MAX_MESSAGES_PER_ROOM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxMessages = n
		}
	}

	langs := []string{"kikuyu", "english", "swahili"}
	if v := os.Getenv("SUPPORTED_LANGUAGES"); v != "" {
		parts := strings.Split(v, ",")
		langs = langs[:0]
		for _, p := range parts {
			if p = strings.TrimSpace(strings.ToLower(p)); p != "" {
				langs = append(langs, p)
			}
		}
	}

	workers := 4
	if v := os.Getenv("PIPELINE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 50 {
			workers = n
		}
	}

	providerTimeout := 30 * time.Second
	if v := os.Getenv("PROVIDER_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			providerTimeout = time.Duration(n) * time.Second
		}
	}

	mediaDir := os.Getenv("MEDIA_DIR")
	if mediaDir == "" {
		mediaDir = os.TempDir()
	}

	groqBaseURL := os.Getenv("GROQ_BASE_URL")
	if groqBaseURL == "" {
		groqBaseURL = "https://api.groq.com/openai/v1"
	}
	groqModel := os.Getenv("GROQ_MODEL")
	if groqModel == "" {
		groqModel = "llama-3.3-70b-versatile"
	}

	hfBaseURL := os.Getenv("HF_BASE_URL")
	if hfBaseURL == "" {
		hfBaseURL = "https://api-inference.huggingface.co"
	}
	hfASRModel := os.Getenv("HF_ASR_MODEL")
	if hfASRModel == "" {
		hfASRModel = "openai/whisper-large-v3"
	}
	hfTranslationModel := os.Getenv("HF_TRANSLATION_MODEL")
	if hfTranslationModel == "" {
		hfTranslationModel = "facebook/nllb-200-distilled-600M"
	}
	hfTTSModel := os.Getenv("HF_TTS_MODEL")
	if hfTTSModel == "" {
		hfTTSModel = "facebook/mms-tts"
	}

	rabbitQueue := os.Getenv("RABBIT_QUEUE")
	if rabbitQueue == "" {
		rabbitQueue = "pipeline_outcomes"
	}

	return Config{
		HTTPAddr: httpAddr,
		LogLevel: os.Getenv("LOG_LEVEL"),

		RedisAddr:     redisAddr,
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       redisDB,

		RoomCodeLength:  codeLength,
		RoomTTL:         roomTTL,
		MaxRoomMessages: maxMessages,

		SupportedLanguages: langs,

		DemoMode:        os.Getenv("DEMO_MODE") == "true",
		PipelineWorkers: workers,
		ProviderTimeout: providerTimeout,
		MediaDir:        mediaDir,

		GroqAPIKey:  os.Getenv("GROQ_API_KEY"),
		GroqBaseURL: groqBaseURL,
		GroqModel:   groqModel,

		HFToken:            os.Getenv("HF_TOKEN"),
		HFBaseURL:          hfBaseURL,
		HFASRModel:         hfASRModel,
		HFTranslationModel: hfTranslationModel,
		HFTTSModel:         hfTTSModel,

		RabbitURL:   os.Getenv("RABBIT_URL"),
		RabbitQueue: rabbitQueue,
	}
}

// IsSupported reports whether lang is in the configured language set.
func (c Config) IsSupported(lang string) bool {
	for _, l := range c.SupportedLanguages {
		if l == lang {
			return true
		}
	}
	return false
}
