package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/qmuntal/stateless"
	"go.uber.org/zap"

	"github.com/lughabridge/lughabridge/internal/hub"
	"github.com/lughabridge/lughabridge/internal/provider"
	"github.com/lughabridge/lughabridge/internal/room"
)

// Broadcaster fans events out to a room's live connections. Implemented by
// the connection hub; delivery is best effort and never returns an error.
type Broadcaster interface {
	Broadcast(roomCode string, event any)
}

// Journal records terminal pipeline outcomes for offline analysis. A nil
// journal is valid; outcomes are then dropped.
type Journal interface {
	PublishOutcome(ctx context.Context, o Outcome) error
}

// Outcome is the terminal record of one pipeline run.
type Outcome struct {
	RunID     string `json:"run_id"`
	RoomCode  string `json:"room_code"`
	MessageID string `json:"message_id"`
	Kind      string `json:"kind"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

const (
	kindVoice = "voice"
	kindText  = "text"
)

// Pipeline states and triggers. Every non-terminal state may fail straight
// to stateError; voice runs visit every stage, text runs skip transcription
// and synthesis.
const (
	stateQueued       = "queued"
	stateTranscribing = "transcribing"
	stateTranslating  = "translating"
	stateSynthesizing = "synthesizing"
	stateComplete     = "complete"
	stateError        = "error"
)

const (
	triggerTranscribe    = "transcribe"
	triggerTranslate     = "translate"
	triggerSynthesize    = "synthesize"
	triggerCompleteVoice = "complete_voice"
	triggerCompleteText  = "complete_text"
	triggerFail          = "fail"
)

type job struct {
	runID     string
	roomCode  string
	messageID string
	kind      string
	audioData string
	text      string
	language  string
}

// Orchestrator runs the per-message pipeline on a fixed worker pool,
// decoupled from the connections that submit work: a run keeps going after
// its originating connection closes, and there is no mid-run cancellation.
type Orchestrator struct {
	store    *room.Store
	reg      *provider.Registry
	bc       Broadcaster
	journal  Journal
	logger   *zap.SugaredLogger
	timeout  time.Duration
	mediaDir string

	jobs chan job
	wg   sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

func New(store *room.Store, reg *provider.Registry, bc Broadcaster, journal Journal,
	timeout time.Duration, mediaDir string, logger *zap.SugaredLogger) *Orchestrator {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if mediaDir == "" {
		mediaDir = os.TempDir()
	}
	return &Orchestrator{
		store:    store,
		reg:      reg,
		bc:       bc,
		journal:  journal,
		logger:   logger,
		timeout:  timeout,
		mediaDir: mediaDir,
		jobs:     make(chan job, 128),
	}
}

// Start launches the worker pool.
func (o *Orchestrator) Start(workers int) {
	if workers <= 0 {
		workers = 4
	}
	o.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer o.wg.Done()
			for j := range o.jobs {
				o.run(j)
			}
		}()
	}
}

// Stop refuses new work and drains queued runs to completion.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.stopped {
		o.stopped = true
		close(o.jobs)
	}
	o.mu.Unlock()
	o.wg.Wait()
}

// ProcessVoiceMessage queues a full transcribe/translate/synthesize run.
// It reports false when the queue is full or the orchestrator is stopped.
func (o *Orchestrator) ProcessVoiceMessage(roomCode, messageID, audioData, language string) bool {
	return o.enqueue(job{
		roomCode:  roomCode,
		messageID: messageID,
		kind:      kindVoice,
		audioData: audioData,
		language:  language,
	})
}

// ProcessTextMessage queues a translate-only run.
func (o *Orchestrator) ProcessTextMessage(roomCode, messageID, text, language string) bool {
	return o.enqueue(job{
		roomCode:  roomCode,
		messageID: messageID,
		kind:      kindText,
		text:      text,
		language:  language,
	})
}

func (o *Orchestrator) enqueue(j job) bool {
	if j.messageID == "" {
		j.messageID = uuid.NewString()
	}
	j.runID = ulid.Make().String()

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		return false
	}
	select {
	case o.jobs <- j:
		o.logger.Infow("pipeline run queued", "run", j.runID, "room", j.roomCode, "message", j.messageID, "kind", j.kind)
		return true
	default:
		o.logger.Warnw("pipeline queue full", "room", j.roomCode, "message", j.messageID)
		return false
	}
}

// runState accumulates stage outputs while the machine advances.
type runState struct {
	job job

	sourceLang string
	targetLang string

	transcript    string
	sttConfidence float64

	translatedText        string
	translationConfidence float64

	audioB64 string

	// failure holds the internal cause; cause is the client-safe text.
	failure error
	cause   string

	tempFiles []string
}

func (rs *runState) track(path string) {
	rs.tempFiles = append(rs.tempFiles, path)
}

func (rs *runState) cleanup() {
	for _, p := range rs.tempFiles {
		_ = os.Remove(p)
	}
}

// run drives one message through the state machine. Runs operate on a
// fresh background context: they are not tied to any connection and are
// never cancelled mid-flight.
func (o *Orchestrator) run(j job) {
	start := time.Now()
	ctx := context.Background()

	rs := &runState{job: j}
	defer rs.cleanup()

	rm, err := o.store.Get(ctx, j.roomCode)
	if err != nil {
		cause := "internal error"
		if errors.Is(err, room.ErrNotFound) {
			cause = "room no longer exists"
		}
		o.logger.Errorw("pipeline room lookup failed", "run", j.runID, "room", j.roomCode, "error", err)
		o.finishError(ctx, rs, start, err, cause)
		return
	}
	rs.sourceLang, rs.targetLang = resolveTarget(rm, j.language)

	fsm := o.newMachine(rs)

	var first string
	if j.kind == kindVoice {
		first = triggerTranscribe
	} else {
		first = triggerTranslate
	}
	if err := fsm.FireCtx(ctx, first); err != nil {
		o.logger.Errorw("pipeline state machine error", "run", j.runID, "error", err)
	}

	state := fsm.MustState()
	elapsed := time.Since(start)
	if state == stateComplete {
		o.logger.Infow("pipeline run complete", "run", j.runID, "room", j.roomCode, "message", j.messageID, "elapsed", elapsed)
		o.publishOutcome(ctx, Outcome{
			RunID: j.runID, RoomCode: j.roomCode, MessageID: j.messageID,
			Kind: j.kind, Status: "complete", ElapsedMS: elapsed.Milliseconds(),
		})
		return
	}
	o.logger.Warnw("pipeline run failed", "run", j.runID, "room", j.roomCode, "message", j.messageID,
		"state", state, "error", rs.failure)
	o.publishOutcome(ctx, Outcome{
		RunID: j.runID, RoomCode: j.roomCode, MessageID: j.messageID,
		Kind: j.kind, Status: "error", Error: fmt.Sprint(rs.failure), ElapsedMS: elapsed.Milliseconds(),
	})
}

// newMachine wires the per-run state machine. Each stage's OnEntry does
// the work and fires the next trigger; a failure records the cause and
// fires into the error state, which broadcasts it.
func (o *Orchestrator) newMachine(rs *runState) *stateless.StateMachine {
	fsm := stateless.NewStateMachine(stateQueued)

	fsm.Configure(stateQueued).
		Permit(triggerTranscribe, stateTranscribing).
		Permit(triggerTranslate, stateTranslating).
		Permit(triggerFail, stateError)

	fsm.Configure(stateTranscribing).
		OnEntry(func(ctx context.Context, _ ...any) error {
			o.bc.Broadcast(rs.job.roomCode, hub.NewProgressEvent(rs.job.messageID, "transcribing", 0.1))

			audioPath, err := o.decodeAudio(rs)
			if err != nil {
				return o.fail(ctx, fsm, rs, err, "invalid audio payload")
			}
			sctx, cancel := context.WithTimeout(ctx, o.timeout)
			defer cancel()
			tr, err := o.reg.ASR.Transcribe(sctx, audioPath, rs.sourceLang)
			if err != nil {
				return o.fail(ctx, fsm, rs, err, "transcription failed")
			}
			rs.transcript = tr.Text
			rs.sttConfidence = tr.Confidence
			return fsm.FireCtx(ctx, triggerTranslate)
		}).
		Permit(triggerTranslate, stateTranslating).
		Permit(triggerFail, stateError)

	fsm.Configure(stateTranslating).
		OnEntry(func(ctx context.Context, _ ...any) error {
			if rs.job.kind == kindVoice {
				o.bc.Broadcast(rs.job.roomCode, hub.NewProgressEvent(rs.job.messageID, "translating", 0.5))
			} else {
				rs.transcript = rs.job.text
				rs.sttConfidence = 1.0
			}

			sctx, cancel := context.WithTimeout(ctx, o.timeout)
			defer cancel()
			res, err := o.reg.Translator.Translate(sctx, rs.transcript, rs.sourceLang, rs.targetLang)
			if err != nil {
				return o.fail(ctx, fsm, rs, err, "translation failed")
			}
			rs.translatedText = res.Text
			rs.translationConfidence = res.Confidence

			if rs.job.kind == kindVoice {
				return fsm.FireCtx(ctx, triggerSynthesize)
			}
			return fsm.FireCtx(ctx, triggerCompleteText)
		}).
		Permit(triggerSynthesize, stateSynthesizing).
		Permit(triggerCompleteText, stateComplete).
		Permit(triggerFail, stateError)

	fsm.Configure(stateSynthesizing).
		OnEntry(func(ctx context.Context, _ ...any) error {
			o.bc.Broadcast(rs.job.roomCode, hub.NewProgressEvent(rs.job.messageID, "synthesizing", 0.8))

			sctx, cancel := context.WithTimeout(ctx, o.timeout)
			defer cancel()
			audioPath, err := o.reg.TTS.Synthesize(sctx, rs.translatedText, rs.targetLang)
			if err != nil {
				return o.fail(ctx, fsm, rs, err, "speech synthesis failed")
			}
			rs.track(audioPath)
			audio, err := os.ReadFile(audioPath)
			if err != nil {
				return o.fail(ctx, fsm, rs, err, "speech synthesis failed")
			}
			rs.audioB64 = base64.StdEncoding.EncodeToString(audio)
			return fsm.FireCtx(ctx, triggerCompleteVoice)
		}).
		Permit(triggerCompleteVoice, stateComplete).
		Permit(triggerFail, stateError)

	fsm.Configure(stateComplete).
		OnEntry(func(ctx context.Context, _ ...any) error {
			msg := room.Message{
				ID:                    rs.job.messageID,
				OriginalText:          rs.transcript,
				OriginalLanguage:      rs.sourceLang,
				TranslatedText:        rs.translatedText,
				TranslatedLanguage:    rs.targetLang,
				STTConfidence:         rs.sttConfidence,
				TranslationConfidence: rs.translationConfidence,
				AudioData:             rs.audioB64,
				Timestamp:             time.Now().UTC(),
			}
			ok, err := o.store.AddMessage(ctx, rs.job.roomCode, msg)
			if err != nil {
				return o.fail(ctx, fsm, rs, err, "failed to store message")
			}
			if !ok {
				o.logger.Warnw("room vanished before message store", "room", rs.job.roomCode, "message", msg.ID)
			}
			o.bc.Broadcast(rs.job.roomCode, hub.NewChatMessageEvent(msg))
			return nil
		}).
		Permit(triggerFail, stateError)

	fsm.Configure(stateError).
		OnEntry(func(ctx context.Context, _ ...any) error {
			o.bc.Broadcast(rs.job.roomCode, hub.NewTranslationErrorEvent(rs.job.messageID, rs.cause))
			return nil
		})

	return fsm
}

// fail records the cause and transitions into the error state. The client
// sees the stage-level cause, not the raw internal error.
func (o *Orchestrator) fail(ctx context.Context, fsm *stateless.StateMachine, rs *runState, err error, cause string) error {
	rs.failure = fmt.Errorf("%s: %w", cause, err)
	rs.cause = cause
	return fsm.FireCtx(ctx, triggerFail)
}

// finishError covers failures before the machine starts.
func (o *Orchestrator) finishError(ctx context.Context, rs *runState, start time.Time, err error, cause string) {
	o.bc.Broadcast(rs.job.roomCode, hub.NewTranslationErrorEvent(rs.job.messageID, cause))
	o.publishOutcome(ctx, Outcome{
		RunID: rs.job.runID, RoomCode: rs.job.roomCode, MessageID: rs.job.messageID,
		Kind: rs.job.kind, Status: "error", Error: err.Error(),
		ElapsedMS: time.Since(start).Milliseconds(),
	})
}

func (o *Orchestrator) publishOutcome(ctx context.Context, out Outcome) {
	if o.journal == nil {
		return
	}
	if err := o.journal.PublishOutcome(ctx, out); err != nil {
		o.logger.Warnw("outcome journal publish failed", "run", out.RunID, "error", err)
	}
}

// decodeAudio writes the inbound base64 payload to a temp file scoped to
// this run.
func (o *Orchestrator) decodeAudio(rs *runState) (string, error) {
	audio, err := base64.StdEncoding.DecodeString(rs.job.audioData)
	if err != nil {
		return "", fmt.Errorf("decode audio: %w", err)
	}
	f, err := os.CreateTemp(o.mediaDir, "voice_in_*.wav")
	if err != nil {
		return "", err
	}
	rs.track(f.Name())
	if _, err := f.Write(audio); err != nil {
		_ = f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return f.Name(), nil
}

// resolveTarget picks the translation direction: a message in the room's
// source language translates to the target language and vice versa; an
// unexpected language defaults to the room's target.
func resolveTarget(rm *room.Room, language string) (sourceLang, targetLang string) {
	switch language {
	case rm.SourceLang:
		return language, rm.TargetLang
	case rm.TargetLang:
		return language, rm.SourceLang
	default:
		return language, rm.TargetLang
	}
}
