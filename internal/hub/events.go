package hub

import (
	"time"

	"github.com/lughabridge/lughabridge/internal/room"
)

// Inbound event as received from a client. One struct covers every type;
// handlers validate the fields their type requires.
type inboundEvent struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id,omitempty"`
	AudioData string `json:"audio_data,omitempty"`
	Text      string `json:"text,omitempty"`
	Language  string `json:"language,omitempty"`
	IsTyping  bool   `json:"is_typing,omitempty"`
}

const (
	eventVoiceMessage = "voice_message"
	eventTextMessage  = "text_message"
	eventTyping       = "typing"
	eventPing         = "ping"
)

type connectionEstablishedEvent struct {
	Type             string `json:"type"`
	RoomCode         string `json:"room_code"`
	SourceLang       string `json:"source_lang"`
	TargetLang       string `json:"target_lang"`
	ParticipantCount int    `json:"participant_count"`
}

type messageHistoryEvent struct {
	Type     string         `json:"type"`
	Messages []room.Message `json:"messages"`
}

type participantEvent struct {
	Type             string `json:"type"`
	ParticipantCount int    `json:"participant_count"`
}

type typingEvent struct {
	Type     string `json:"type"`
	IsTyping bool   `json:"is_typing"`
}

type processingEvent struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}

type pongEvent struct {
	Type string `json:"type"`
}

type errorEvent struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	MessageID string `json:"message_id,omitempty"`
}

// ProgressEvent reports a pipeline stage transition to the room.
type ProgressEvent struct {
	Type      string  `json:"type"`
	MessageID string  `json:"message_id"`
	Status    string  `json:"status"`
	Progress  float64 `json:"progress"`
}

func NewProgressEvent(messageID, status string, progress float64) ProgressEvent {
	return ProgressEvent{Type: "translation_progress", MessageID: messageID, Status: status, Progress: progress}
}

// ChatMessageEvent carries a completed message; the message fields are
// inlined next to the type tag.
type ChatMessageEvent struct {
	Type string `json:"type"`
	room.Message
}

func NewChatMessageEvent(msg room.Message) ChatMessageEvent {
	return ChatMessageEvent{Type: "chat_message", Message: msg}
}

// TranslationErrorEvent reports a failed pipeline run to the room.
type TranslationErrorEvent struct {
	Type      string    `json:"type"`
	MessageID string    `json:"message_id"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

func NewTranslationErrorEvent(messageID, cause string) TranslationErrorEvent {
	return TranslationErrorEvent{
		Type:      "translation_error",
		MessageID: messageID,
		Error:     cause,
		Timestamp: time.Now().UTC(),
	}
}
