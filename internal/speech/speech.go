package speech

import "context"

// Transcription is the output of one speech recognition call.
type Transcription struct {
	Text       string
	Confidence float64
}

// Transcriber converts recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, language string) (Transcription, error)
}

// Synthesizer renders text as speech and returns the path of the produced
// audio file. The caller owns the file and removes it when done.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, language string) (string, error)
}
