// Package chat keeps the message list for the selected conversation in
// sync across its three sources: the history fetch, locally sent messages,
// and live push events. The list is only ever mutated from confirmed
// messages; no unconfirmed placeholder is ever inserted.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"linkup/events"
	"linkup/models"
	"linkup/notify"
)

type State string

const (
	StateUnselected State = "unselected"
	StateLoading    State = "loading"
	StateReady      State = "ready"
	StateError      State = "error"
)

var (
	ErrNoPeer       = errors.New("chat: no conversation selected")
	ErrEmptyContent = errors.New("chat: empty message content")
)

// Backend is the subset of the API client the engine needs.
type Backend interface {
	Conversation(ctx context.Context, peerID int64) ([]models.Message, error)
	SendMessage(ctx context.Context, receiverID int64, content string) (*models.Message, error)
}

// Engine owns the active conversation. All mutations happen under one
// lock, so every state change is an atomic replace; history results are
// tagged with a generation counter and discarded when the selection has
// moved on.
type Engine struct {
	backend Backend
	notify  *notify.Queue
	selfID  int64
	log     zerolog.Logger

	mu       sync.Mutex
	state    State
	peerID   int64
	gen      uint64
	messages []models.Message
	ids      map[int64]struct{}
	pending  []models.Message
	lastErr  error
	onScroll func()
}

func New(backend Backend, queue *notify.Queue, selfID int64) *Engine {
	return &Engine{
		backend: backend,
		notify:  queue,
		selfID:  selfID,
		state:   StateUnselected,
		ids:     make(map[int64]struct{}),
		log:     log.With().Str("component", "chat").Logger(),
	}
}

// OnScrollToLatest registers the callback fired whenever a new message
// becomes visible at the end of the list.
func (e *Engine) OnScrollToLatest(fn func()) {
	e.mu.Lock()
	e.onScroll = fn
	e.mu.Unlock()
}

// Attach subscribes the engine to new_message events on the stream and
// returns the subscription id.
func (e *Engine) Attach(stream *events.Stream) int {
	return stream.Subscribe(models.EventNewMessage, func(data json.RawMessage) {
		var msg models.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			e.log.Debug().Err(err).Msg("dropping malformed new_message payload")
			return
		}
		e.HandleLiveEvent(msg)
	})
}

// Select replaces the active conversation and starts the history fetch.
// A result for a superseded selection is discarded when it resolves.
func (e *Engine) Select(ctx context.Context, peerID int64) {
	e.mu.Lock()
	e.gen++
	gen := e.gen
	e.peerID = peerID
	e.state = StateLoading
	e.messages = nil
	e.pending = nil
	e.ids = make(map[int64]struct{})
	e.lastErr = nil
	e.mu.Unlock()

	go func() {
		msgs, err := e.backend.Conversation(ctx, peerID)
		e.applyHistory(gen, msgs, err)
	}()
}

func (e *Engine) applyHistory(gen uint64, msgs []models.Message, err error) {
	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		e.log.Debug().Uint64("gen", gen).Msg("discarding stale history result")
		return
	}

	if err != nil {
		e.state = StateError
		e.lastErr = err
		e.messages = nil
		e.pending = nil
		e.ids = make(map[int64]struct{})
		peer := e.peerID
		e.mu.Unlock()
		e.log.Warn().Err(err).Int64("peer", peer).Msg("history fetch failed")
		return
	}

	// The backend serves the history ordered, but the list invariant is
	// ours to hold, so sort defensively and drop duplicate ids.
	list := make([]models.Message, 0, len(msgs))
	ids := make(map[int64]struct{}, len(msgs))
	for _, m := range msgs {
		if _, dup := ids[m.ID]; dup {
			continue
		}
		ids[m.ID] = struct{}{}
		list = append(list, m)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Before(list[j]) })

	// Live events accepted while the fetch was in flight may or may not be
	// part of the fetched snapshot; merge them in.
	for _, m := range e.pending {
		if _, dup := ids[m.ID]; dup {
			continue
		}
		ids[m.ID] = struct{}{}
		list = insertSorted(list, m)
	}

	e.messages = list
	e.ids = ids
	e.pending = nil
	e.state = StateReady
	scroll := e.onScroll
	e.mu.Unlock()

	if scroll != nil && len(list) > 0 {
		scroll()
	}
}

// HandleLiveEvent is invoked for every pushed message, regardless of which
// conversation is active. Messages outside the active conversation are
// ignored with no side effects.
func (e *Engine) HandleLiveEvent(msg models.Message) {
	e.mu.Lock()
	if e.state != StateReady && e.state != StateLoading {
		e.mu.Unlock()
		return
	}
	if !msg.Between(e.selfID, e.peerID) {
		e.mu.Unlock()
		return
	}
	if _, dup := e.ids[msg.ID]; dup {
		e.mu.Unlock()
		return
	}

	if e.state == StateLoading {
		e.ids[msg.ID] = struct{}{}
		e.pending = append(e.pending, msg)
		e.mu.Unlock()
		return
	}

	e.ids[msg.ID] = struct{}{}
	e.messages = insertSorted(e.messages, msg)
	scroll := e.onScroll
	e.mu.Unlock()

	if scroll != nil {
		scroll()
	}
}

// Send delivers a message to the active peer. Empty content and a missing
// selection are rejected without issuing a request. The confirmed message
// from the response goes through the same accept path as a live event, so
// receiving it twice is harmless.
func (e *Engine) Send(ctx context.Context, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyContent
	}

	e.mu.Lock()
	if e.state == StateUnselected {
		e.mu.Unlock()
		return ErrNoPeer
	}
	peer := e.peerID
	e.mu.Unlock()

	msg, err := e.backend.SendMessage(ctx, peer, content)
	if err != nil {
		e.log.Warn().Err(err).Int64("peer", peer).Msg("send failed")
		if e.notify != nil {
			e.notify.Push(notify.Warning, "Message could not be sent. Please try again.")
		}
		return err
	}
	if msg != nil {
		e.HandleLiveEvent(*msg)
	}
	return nil
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) Peer() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.peerID
}

// Err returns the failure that put the conversation into the error state.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// Messages returns a copy of the visible list.
func (e *Engine) Messages() []models.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.Message, len(e.messages))
	copy(out, e.messages)
	return out
}

func insertSorted(list []models.Message, m models.Message) []models.Message {
	if n := len(list); n == 0 || list[n-1].Before(m) {
		return append(list, m)
	}
	i := sort.Search(len(list), func(i int) bool { return m.Before(list[i]) })
	list = append(list, models.Message{})
	copy(list[i+1:], list[i:])
	list[i] = m
	return list
}
