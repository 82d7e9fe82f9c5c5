package room

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T, ttl time.Duration, maxMessages int) (*Store, *miniredis.Miniredis) {
	t.Helper()
	m := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewStore(rdb, ttl, 6, maxMessages, zap.NewNop().Sugar()), m
}

func TestCreateGeneratesUniqueCode(t *testing.T) {
	s, _ := newTestStore(t, time.Hour, 100)
	ctx := context.Background()

	code, err := s.Create(ctx, "kikuyu", "english")
	require.NoError(t, err)
	require.Len(t, code, 6)

	r, err := s.Get(ctx, code)
	require.NoError(t, err)
	require.Equal(t, code, r.Code)
	require.Equal(t, "kikuyu", r.SourceLang)
	require.Equal(t, "english", r.TargetLang)
	require.Equal(t, 0, r.Participants)
	require.Empty(t, r.Messages)
	require.Equal(t, SchemaVersion, r.SchemaVersion)

	seen := map[string]bool{code: true}
	for i := 0; i < 25; i++ {
		c, err := s.Create(ctx, "english", "swahili")
		require.NoError(t, err)
		require.False(t, seen[c], "code %s issued twice", c)
		seen[c] = true
	}
}

func TestJoinLeaveParticipantBounds(t *testing.T) {
	s, _ := newTestStore(t, time.Hour, 100)
	ctx := context.Background()

	code, err := s.Create(ctx, "kikuyu", "english")
	require.NoError(t, err)

	r, err := s.Join(ctx, code)
	require.NoError(t, err)
	require.Equal(t, 1, r.Participants)

	r, err = s.Join(ctx, code)
	require.NoError(t, err)
	require.Equal(t, 2, r.Participants)

	r, deleted, err := s.Leave(ctx, code)
	require.NoError(t, err)
	require.False(t, deleted)
	require.Equal(t, 1, r.Participants)
}

func TestLeaveToZeroDeletesRoom(t *testing.T) {
	s, _ := newTestStore(t, time.Hour, 100)
	ctx := context.Background()

	code, err := s.Create(ctx, "kikuyu", "english")
	require.NoError(t, err)

	_, err = s.Join(ctx, code)
	require.NoError(t, err)

	r, deleted, err := s.Leave(ctx, code)
	require.NoError(t, err)
	require.True(t, deleted)
	require.Nil(t, r)

	exists, err := s.Exists(ctx, code)
	require.NoError(t, err)
	require.False(t, exists)
}

func TestLeaveUnknownRoom(t *testing.T) {
	s, _ := newTestStore(t, time.Hour, 100)

	_, _, err := s.Leave(context.Background(), "NOSUCH")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentJoinsAllReflected(t *testing.T) {
	s, _ := newTestStore(t, time.Hour, 100)
	ctx := context.Background()

	code, err := s.Create(ctx, "kikuyu", "english")
	require.NoError(t, err)

	const joiners = 10
	var wg sync.WaitGroup
	errs := make(chan error, joiners)
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Join(ctx, code)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	r, err := s.Get(ctx, code)
	require.NoError(t, err)
	require.Equal(t, joiners, r.Participants)
}

func TestAddMessageTrimsToCap(t *testing.T) {
	const msgCap = 5
	s, _ := newTestStore(t, time.Hour, msgCap)
	ctx := context.Background()

	code, err := s.Create(ctx, "kikuyu", "english")
	require.NoError(t, err)

	for i := 0; i < msgCap+3; i++ {
		ok, err := s.AddMessage(ctx, code, Message{
			ID:           fmt.Sprintf("msg-%d", i),
			OriginalText: fmt.Sprintf("text %d", i),
		})
		require.NoError(t, err)
		require.True(t, ok)
	}

	msgs, err := s.Messages(ctx, code, 0)
	require.NoError(t, err)
	require.Len(t, msgs, msgCap)
	// The cap most recent, in arrival order.
	for i, m := range msgs {
		require.Equal(t, fmt.Sprintf("msg-%d", i+3), m.ID)
	}
}

func TestAddMessageAbsentRoom(t *testing.T) {
	s, _ := newTestStore(t, time.Hour, 100)

	ok, err := s.AddMessage(context.Background(), "NOSUCH", Message{ID: "m1"})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMessagesLimitAndAbsent(t *testing.T) {
	s, _ := newTestStore(t, time.Hour, 100)
	ctx := context.Background()

	code, err := s.Create(ctx, "kikuyu", "english")
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err := s.AddMessage(ctx, code, Message{ID: fmt.Sprintf("m%d", i)})
		require.NoError(t, err)
	}

	msgs, err := s.Messages(ctx, code, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "m2", msgs[0].ID)
	require.Equal(t, "m3", msgs[1].ID)

	msgs, err = s.Messages(ctx, "NOSUCH", 0)
	require.NoError(t, err)
	require.Empty(t, msgs)
}

func TestMutationsResetTTL(t *testing.T) {
	const ttl = time.Hour
	s, m := newTestStore(t, ttl, 100)
	ctx := context.Background()

	code, err := s.Create(ctx, "kikuyu", "english")
	require.NoError(t, err)
	key := "room:" + code
	require.Equal(t, ttl, m.TTL(key))

	m.FastForward(30 * time.Minute)
	require.Equal(t, 30*time.Minute, m.TTL(key))

	_, err = s.Join(ctx, code)
	require.NoError(t, err)
	require.Equal(t, ttl, m.TTL(key))

	m.FastForward(30 * time.Minute)
	_, err = s.AddMessage(ctx, code, Message{ID: "m1"})
	require.NoError(t, err)
	require.Equal(t, ttl, m.TTL(key))

	m.FastForward(30 * time.Minute)
	ok, err := s.ExtendExpiry(ctx, code)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ttl, m.TTL(key))
}

func TestExpiredRoomIsGone(t *testing.T) {
	s, m := newTestStore(t, time.Hour, 100)
	ctx := context.Background()

	code, err := s.Create(ctx, "kikuyu", "english")
	require.NoError(t, err)

	m.FastForward(2 * time.Hour)

	exists, err := s.Exists(ctx, code)
	require.NoError(t, err)
	require.False(t, exists)

	_, err = s.Get(ctx, code)
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestDelete(t *testing.T) {
	s, _ := newTestStore(t, time.Hour, 100)
	ctx := context.Background()

	code, err := s.Create(ctx, "kikuyu", "english")
	require.NoError(t, err)

	ok, err := s.Delete(ctx, code)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.Delete(ctx, code)
	require.NoError(t, err)
	require.False(t, ok)
}
