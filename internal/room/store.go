package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	// ErrNotFound means no live room exists for the given code.
	ErrNotFound = errors.New("room not found")
	// ErrGenerationExhausted means a unique code could not be claimed
	// within the attempt budget.
	ErrGenerationExhausted = errors.New("room code space exhausted")
)

const (
	codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// createAttempts bounds code generation; with a 6-character code the
	// space holds 36^6 combinations, so hitting this limit means the
	// store is effectively full.
	createAttempts = 64

	// txRetries bounds optimistic-transaction retries when a WATCHed key
	// changes under a concurrent writer.
	txRetries = 32
)

// Store keeps room records in redis under "room:<CODE>" with a renewable
// expiry. Every mutation runs as an optimistic WATCH/MULTI transaction so
// concurrent writers never lose updates, and every successful mutation
// refreshes last_activity and resets the TTL to the full duration.
type Store struct {
	rdb         *redis.Client
	ttl         time.Duration
	codeLength  int
	maxMessages int
	logger      *zap.SugaredLogger
}

func NewStore(rdb *redis.Client, ttl time.Duration, codeLength, maxMessages int, logger *zap.SugaredLogger) *Store {
	if codeLength <= 0 {
		codeLength = 6
	}
	if maxMessages <= 0 {
		maxMessages = 100
	}
	if ttl <= 0 {
		ttl = 4 * time.Hour
	}
	return &Store{
		rdb:         rdb,
		ttl:         ttl,
		codeLength:  codeLength,
		maxMessages: maxMessages,
		logger:      logger,
	}
}

func (s *Store) key(code string) string { return "room:" + code }

// Ping reports whether the backing Redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) generateCode() string {
	b := make([]byte, s.codeLength)
	for i := range b {
		b[i] = codeCharset[rand.Intn(len(codeCharset))]
	}
	return string(b)
}

// Create claims a fresh code and writes an empty room with the configured
// TTL. SETNX makes the claim atomic, so two concurrent creates can never
// share a code.
func (s *Store) Create(ctx context.Context, sourceLang, targetLang string) (string, error) {
	now := time.Now().UTC()
	for i := 0; i < createAttempts; i++ {
		code := s.generateCode()
		r := Room{
			SchemaVersion: SchemaVersion,
			Code:          code,
			SourceLang:    sourceLang,
			TargetLang:    targetLang,
			Participants:  0,
			Messages:      []Message{},
			CreatedAt:     now,
			LastActivity:  now,
		}
		buf, err := json.Marshal(&r)
		if err != nil {
			return "", err
		}
		claimed, err := s.rdb.SetNX(ctx, s.key(code), buf, s.ttl).Result()
		if err != nil {
			return "", fmt.Errorf("create room: %w", err)
		}
		if claimed {
			s.logger.Infow("room created", "code", code, "source", sourceLang, "target", targetLang)
			return code, nil
		}
	}
	return "", ErrGenerationExhausted
}

// update applies mutate inside an optimistic transaction on the room key,
// refreshing last_activity and the TTL. It retries while a concurrent
// writer invalidates the WATCH.
func (s *Store) update(ctx context.Context, code string, mutate func(*Room)) (*Room, error) {
	key := s.key(code)
	var out *Room

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var r Room
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return fmt.Errorf("decode room %s: %w", code, err)
		}
		mutate(&r)
		r.LastActivity = time.Now().UTC()
		buf, err := json.Marshal(&r)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, buf, s.ttl)
			return nil
		})
		if err == nil {
			out = &r
		}
		return err
	}

	for i := 0; i < txRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("room %s: too much contention: %w", code, redis.TxFailedErr)
}

// Join atomically increments the participant count and returns the updated
// snapshot.
func (s *Store) Join(ctx context.Context, code string) (*Room, error) {
	r, err := s.update(ctx, code, func(r *Room) {
		r.Participants++
	})
	if err != nil {
		return nil, err
	}
	s.logger.Infow("participant joined", "code", code, "participants", r.Participants)
	return r, nil
}

// Leave atomically decrements the participant count (floored at zero).
// When the count reaches zero the room is deleted inside the same
// transaction and deleted=true is returned instead of a snapshot.
func (s *Store) Leave(ctx context.Context, code string) (*Room, bool, error) {
	key := s.key(code)
	var (
		out     *Room
		deleted bool
	)

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var r Room
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return fmt.Errorf("decode room %s: %w", code, err)
		}
		if r.Participants > 0 {
			r.Participants--
		}
		r.LastActivity = time.Now().UTC()

		if r.Participants == 0 {
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			if err == nil {
				deleted = true
				out = nil
			}
			return err
		}

		buf, err := json.Marshal(&r)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, buf, s.ttl)
			return nil
		})
		if err == nil {
			out = &r
			deleted = false
		}
		return err
	}

	for i := 0; i < txRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if err == nil {
			if deleted {
				s.logger.Infow("room deleted, no participants left", "code", code)
			} else {
				s.logger.Infow("participant left", "code", code, "participants", out.Participants)
			}
			return out, deleted, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, false, err
	}
	return nil, false, fmt.Errorf("room %s: too much contention: %w", code, redis.TxFailedErr)
}

// AddMessage appends msg, trims the list to the configured cap from the
// front, and refreshes the TTL. It reports false when the room is absent.
func (s *Store) AddMessage(ctx context.Context, code string, msg Message) (bool, error) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	_, err := s.update(ctx, code, func(r *Room) {
		r.Messages = append(r.Messages, msg)
		if len(r.Messages) > s.maxMessages {
			r.Messages = r.Messages[len(r.Messages)-s.maxMessages:]
		}
	})
	if errors.Is(err, ErrNotFound) {
		s.logger.Warnw("cannot add message, room not found", "code", code)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Messages returns up to limit most recent messages in arrival order.
// limit <= 0 returns all stored messages. An absent room yields an empty
// slice; callers distinguish absence via Exists.
func (s *Store) Messages(ctx context.Context, code string, limit int) ([]Message, error) {
	r, err := s.Get(ctx, code)
	if errors.Is(err, ErrNotFound) {
		return []Message{}, nil
	}
	if err != nil {
		return nil, err
	}
	msgs := r.Messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

// Get returns the current room snapshot or ErrNotFound.
func (s *Store) Get(ctx context.Context, code string) (*Room, error) {
	raw, err := s.rdb.Get(ctx, s.key(code)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var r Room
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, fmt.Errorf("decode room %s: %w", code, err)
	}
	return &r, nil
}

// Exists reports whether a live room exists for code.
func (s *Store) Exists(ctx context.Context, code string) (bool, error) {
	n, err := s.rdb.Exists(ctx, s.key(code)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Delete removes a room immediately, reporting whether it existed.
func (s *Store) Delete(ctx context.Context, code string) (bool, error) {
	n, err := s.rdb.Del(ctx, s.key(code)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ExtendExpiry resets the room's TTL to the full configured duration.
func (s *Store) ExtendExpiry(ctx context.Context, code string) (bool, error) {
	ok, err := s.rdb.Expire(ctx, s.key(code), s.ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// TTL exposes the configured room lifetime for callers that report it.
func (s *Store) TTL() time.Duration { return s.ttl }
