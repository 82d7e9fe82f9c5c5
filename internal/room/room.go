package room

import "time"

// SchemaVersion is stored with every room record so readers can detect
// layout drift in long-lived redis instances.
const SchemaVersion = 1

// Room is an ephemeral, code-identified chat room pairing two languages.
// It lives only in redis and expires automatically.
type Room struct {
	SchemaVersion int       `json:"schema_version"`
	Code          string    `json:"code"`
	SourceLang    string    `json:"source_lang"`
	TargetLang    string    `json:"target_lang"`
	Participants  int       `json:"participants"`
	Messages      []Message `json:"messages"`
	CreatedAt     time.Time `json:"created_at"`
	LastActivity  time.Time `json:"last_activity"`
}

// Message is one translated utterance. Messages are append-only; a room
// keeps at most the configured cap, oldest dropped first.
type Message struct {
	ID                    string    `json:"id"`
	OriginalText          string    `json:"original_text"`
	OriginalLanguage      string    `json:"original_language"`
	TranslatedText        string    `json:"translated_text"`
	TranslatedLanguage    string    `json:"translated_language"`
	STTConfidence         float64   `json:"stt_confidence"`
	TranslationConfidence float64   `json:"translation_confidence"`
	AudioData             string    `json:"audio_data,omitempty"`
	Timestamp             time.Time `json:"timestamp"`
}
