package chat

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkup/models"
	"linkup/notify"
)

type stubBackend struct {
	mu           sync.Mutex
	conversation func(ctx context.Context, peerID int64) ([]models.Message, error)
	send         func(ctx context.Context, receiverID int64, content string) (*models.Message, error)
	fetchCalls   int
	sendCalls    int
}

func (s *stubBackend) Conversation(ctx context.Context, peerID int64) ([]models.Message, error) {
	s.mu.Lock()
	s.fetchCalls++
	s.mu.Unlock()
	if s.conversation == nil {
		return nil, nil
	}
	return s.conversation(ctx, peerID)
}

func (s *stubBackend) SendMessage(ctx context.Context, receiverID int64, content string) (*models.Message, error) {
	s.mu.Lock()
	s.sendCalls++
	s.mu.Unlock()
	if s.send == nil {
		return nil, errors.New("unexpected send")
	}
	return s.send(ctx, receiverID, content)
}

func (s *stubBackend) calls() (fetch, send int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetchCalls, s.sendCalls
}

func msg(id int64, sender, receiver int64, at string) models.Message {
	ts, err := time.Parse(time.RFC3339, at)
	if err != nil {
		panic(err)
	}
	return models.Message{
		ID:         id,
		SenderID:   sender,
		ReceiverID: receiver,
		Content:    "m",
		Timestamp:  ts,
		Status:     models.MessageStatusSent,
	}
}

func waitReady(t *testing.T, e *Engine) {
	t.Helper()
	require.Eventually(t, func() bool { return e.State() == StateReady }, time.Second, 5*time.Millisecond)
}

func ids(msgs []models.Message) []int64 {
	out := make([]int64, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestHistoryAndLiveEventsStayOrdered(t *testing.T) {
	backend := &stubBackend{
		conversation: func(context.Context, int64) ([]models.Message, error) {
			return []models.Message{
				msg(2, 7, 1, "2026-01-01T10:01:00Z"),
				msg(1, 1, 7, "2026-01-01T10:00:00Z"),
			}, nil
		},
	}
	e := New(backend, nil, 1)
	e.Select(context.Background(), 7)
	waitReady(t, e)

	// Newest first, then one that arrives late with an earlier timestamp.
	e.HandleLiveEvent(msg(5, 7, 1, "2026-01-01T10:05:00Z"))
	e.HandleLiveEvent(msg(3, 1, 7, "2026-01-01T10:02:00Z"))

	assert.Equal(t, []int64{1, 2, 3, 5}, ids(e.Messages()))
}

func TestTimestampTiesBreakByID(t *testing.T) {
	backend := &stubBackend{}
	e := New(backend, nil, 1)
	e.Select(context.Background(), 7)
	waitReady(t, e)

	e.HandleLiveEvent(msg(9, 7, 1, "2026-01-01T10:00:00Z"))
	e.HandleLiveEvent(msg(4, 1, 7, "2026-01-01T10:00:00Z"))

	assert.Equal(t, []int64{4, 9}, ids(e.Messages()))
}

func TestLiveEventForOtherConversationIgnored(t *testing.T) {
	backend := &stubBackend{}
	e := New(backend, nil, 1)
	e.Select(context.Background(), 7)
	waitReady(t, e)

	var scrolls atomic.Int32
	e.OnScrollToLatest(func() { scrolls.Add(1) })

	e.HandleLiveEvent(msg(1, 9, 1, "2026-01-01T10:00:00Z"))
	e.HandleLiveEvent(msg(2, 1, 9, "2026-01-01T10:00:00Z"))

	assert.Empty(t, e.Messages())
	assert.Zero(t, scrolls.Load())
}

func TestStaleHistoryDiscarded(t *testing.T) {
	releaseA := make(chan struct{})
	var fetchesDone sync.WaitGroup
	fetchesDone.Add(2)

	backend := &stubBackend{}
	backend.conversation = func(_ context.Context, peerID int64) ([]models.Message, error) {
		defer fetchesDone.Done()
		if peerID == 7 {
			<-releaseA
			return []models.Message{msg(1, 7, 1, "2026-01-01T10:00:00Z")}, nil
		}
		return []models.Message{msg(2, 8, 1, "2026-01-01T11:00:00Z")}, nil
	}

	e := New(backend, nil, 1)
	e.Select(context.Background(), 7)
	e.Select(context.Background(), 8)
	waitReady(t, e)

	close(releaseA)
	fetchesDone.Wait()

	assert.Equal(t, int64(8), e.Peer())
	assert.Equal(t, StateReady, e.State())
	assert.Equal(t, []int64{2}, ids(e.Messages()))
}

func TestHistoryFailureEntersErrorState(t *testing.T) {
	queue := notify.NewQueue()
	backend := &stubBackend{
		conversation: func(context.Context, int64) ([]models.Message, error) {
			return nil, errors.New("boom")
		},
	}
	e := New(backend, queue, 1)
	e.Select(context.Background(), 7)

	require.Eventually(t, func() bool { return e.State() == StateError }, time.Second, 5*time.Millisecond)
	assert.Error(t, e.Err())
	assert.Empty(t, e.Messages())
	// History failure is a display state, not a toast.
	assert.Empty(t, queue.Recent())
}

func TestReselectingSamePeerRefetches(t *testing.T) {
	backend := &stubBackend{}
	e := New(backend, nil, 1)
	e.Select(context.Background(), 7)
	waitReady(t, e)
	e.Select(context.Background(), 7)
	waitReady(t, e)

	fetches, _ := backend.calls()
	assert.Equal(t, 2, fetches)
}

func TestSendGuards(t *testing.T) {
	backend := &stubBackend{}
	e := New(backend, nil, 1)

	assert.ErrorIs(t, e.Send(context.Background(), "hi"), ErrNoPeer)
	assert.ErrorIs(t, e.Send(context.Background(), "   "), ErrEmptyContent)

	e.Select(context.Background(), 7)
	waitReady(t, e)
	assert.ErrorIs(t, e.Send(context.Background(), " \t "), ErrEmptyContent)

	_, sends := backend.calls()
	assert.Zero(t, sends)
	assert.Empty(t, e.Messages())
}

func TestSendConfirmationAndLiveEventAppearOnce(t *testing.T) {
	confirmed := msg(10, 1, 7, "2026-01-01T10:00:00Z")
	backend := &stubBackend{
		send: func(context.Context, int64, string) (*models.Message, error) {
			return &confirmed, nil
		},
	}
	e := New(backend, nil, 1)
	e.Select(context.Background(), 7)
	waitReady(t, e)

	require.NoError(t, e.Send(context.Background(), "hello"))
	// The same message also arrives on the live channel.
	e.HandleLiveEvent(confirmed)

	assert.Equal(t, []int64{10}, ids(e.Messages()))
}

func TestSendFailureKeepsListAndNotifies(t *testing.T) {
	queue := notify.NewQueue()
	backend := &stubBackend{
		send: func(context.Context, int64, string) (*models.Message, error) {
			return nil, errors.New("network down")
		},
	}
	e := New(backend, queue, 1)
	e.Select(context.Background(), 7)
	waitReady(t, e)
	e.HandleLiveEvent(msg(1, 7, 1, "2026-01-01T10:00:00Z"))

	err := e.Send(context.Background(), "hello")
	assert.Error(t, err)
	assert.Equal(t, []int64{1}, ids(e.Messages()))

	recent := queue.Recent()
	require.Len(t, recent, 1)
	assert.Equal(t, notify.Warning, recent[0].Kind)
}

func TestLiveEventDuringLoadingIsMerged(t *testing.T) {
	release := make(chan struct{})
	backend := &stubBackend{
		conversation: func(context.Context, int64) ([]models.Message, error) {
			<-release
			return []models.Message{
				msg(1, 1, 7, "2026-01-01T10:00:00Z"),
				msg(2, 7, 1, "2026-01-01T10:01:00Z"),
			}, nil
		},
	}
	e := New(backend, nil, 1)
	e.Select(context.Background(), 7)

	// Arrives while the fetch is in flight: one already in the snapshot,
	// one newer than it.
	e.HandleLiveEvent(msg(2, 7, 1, "2026-01-01T10:01:00Z"))
	e.HandleLiveEvent(msg(3, 7, 1, "2026-01-01T10:02:00Z"))
	assert.Empty(t, e.Messages())

	close(release)
	waitReady(t, e)

	assert.Equal(t, []int64{1, 2, 3}, ids(e.Messages()))
}

func TestScrollSignalFiresOnAcceptedMessages(t *testing.T) {
	backend := &stubBackend{
		conversation: func(context.Context, int64) ([]models.Message, error) {
			return []models.Message{msg(1, 7, 1, "2026-01-01T10:00:00Z")}, nil
		},
	}
	e := New(backend, nil, 1)

	var scrolls atomic.Int32
	e.OnScrollToLatest(func() { scrolls.Add(1) })

	e.Select(context.Background(), 7)
	waitReady(t, e)
	require.EqualValues(t, 1, scrolls.Load())

	e.HandleLiveEvent(msg(2, 7, 1, "2026-01-01T10:01:00Z"))
	assert.EqualValues(t, 2, scrolls.Load())

	// Duplicates and foreign messages stay silent.
	e.HandleLiveEvent(msg(2, 7, 1, "2026-01-01T10:01:00Z"))
	e.HandleLiveEvent(msg(3, 9, 1, "2026-01-01T10:02:00Z"))
	assert.EqualValues(t, 2, scrolls.Load())
}

func TestHistoryDuplicatesDropped(t *testing.T) {
	backend := &stubBackend{
		conversation: func(context.Context, int64) ([]models.Message, error) {
			return []models.Message{
				msg(1, 1, 7, "2026-01-01T10:00:00Z"),
				msg(1, 1, 7, "2026-01-01T10:00:00Z"),
				msg(2, 7, 1, "2026-01-01T10:01:00Z"),
			}, nil
		},
	}
	e := New(backend, nil, 1)
	e.Select(context.Background(), 7)
	waitReady(t, e)

	assert.Equal(t, []int64{1, 2}, ids(e.Messages()))
}
