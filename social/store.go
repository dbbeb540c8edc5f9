// Package social holds the friend-status map the search screen renders
// from. The map is the single source of truth: it is updated locally the
// moment a request action succeeds, never by polling.
package social

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"linkup/models"
	"linkup/notify"
)

// Backend is the subset of the API client the store needs.
type Backend interface {
	SearchUsers(ctx context.Context, query string) ([]models.User, error)
	FriendStatuses(ctx context.Context) (map[int64]models.FriendStatus, error)
	FriendRequests(ctx context.Context) ([]models.FriendRequest, error)
	SendFriendRequest(ctx context.Context, receiverID int64) error
	AcceptFriendRequest(ctx context.Context, requestID int64) error
	RejectFriendRequest(ctx context.Context, requestID int64) error
}

type Store struct {
	backend Backend
	notify  *notify.Queue
	log     zerolog.Logger

	mu       sync.Mutex
	users    []models.User
	statuses map[int64]models.FriendStatus
	requests []models.FriendRequest
}

func NewStore(backend Backend, queue *notify.Queue) *Store {
	return &Store{
		backend:  backend,
		notify:   queue,
		statuses: make(map[int64]models.FriendStatus),
		log:      log.With().Str("component", "social").Logger(),
	}
}

// Search loads the candidate users matching the query together with the
// current friend statuses.
func (s *Store) Search(ctx context.Context, query string) error {
	users, err := s.backend.SearchUsers(ctx, query)
	if err != nil {
		return err
	}
	statuses, err := s.backend.FriendStatuses(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.users = users
	s.statuses = statuses
	s.mu.Unlock()
	return nil
}

// LoadRequests refreshes the pending requests addressed to the current
// user.
func (s *Store) LoadRequests(ctx context.Context) error {
	reqs, err := s.backend.FriendRequests(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.requests = reqs
	s.mu.Unlock()
	return nil
}

func (s *Store) Users() []models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.User, len(s.users))
	copy(out, s.users)
	return out
}

func (s *Store) Requests() []models.FriendRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.FriendRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// Status returns the relationship with the given user, defaulting to
// notFriends for unknown ids.
func (s *Store) Status(userID int64) models.FriendStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.statuses[userID]; ok {
		return st
	}
	return models.StatusNotFriends
}

// SendRequest sends a friend request and, on success, moves the candidate
// to requestSent immediately. On failure the map is untouched.
func (s *Store) SendRequest(ctx context.Context, userID int64) error {
	if err := s.backend.SendFriendRequest(ctx, userID); err != nil {
		s.log.Warn().Err(err).Int64("user", userID).Msg("friend request failed")
		if s.notify != nil {
			s.notify.Push(notify.Error, "Could not send friend request.")
		}
		return err
	}

	s.mu.Lock()
	s.statuses[userID] = models.StatusRequestSent
	s.mu.Unlock()

	if s.notify != nil {
		s.notify.Push(notify.Success, "Friend request sent.")
	}
	return nil
}

// AcceptRequest accepts a pending request and marks the sender as a friend
// immediately.
func (s *Store) AcceptRequest(ctx context.Context, requestID, senderID int64) error {
	if err := s.backend.AcceptFriendRequest(ctx, requestID); err != nil {
		s.log.Warn().Err(err).Int64("request", requestID).Msg("accept failed")
		if s.notify != nil {
			s.notify.Push(notify.Error, "Could not accept friend request.")
		}
		return err
	}

	s.mu.Lock()
	s.statuses[senderID] = models.StatusFriends
	kept := s.requests[:0]
	for _, r := range s.requests {
		if r.ID != requestID {
			kept = append(kept, r)
		}
	}
	s.requests = kept
	s.mu.Unlock()

	if s.notify != nil {
		s.notify.Push(notify.Success, "Friend request accepted.")
	}
	return nil
}

// RejectRequest declines a pending request and drops it from the list. The
// sender goes back to notFriends and may ask again later.
func (s *Store) RejectRequest(ctx context.Context, requestID, senderID int64) error {
	if err := s.backend.RejectFriendRequest(ctx, requestID); err != nil {
		s.log.Warn().Err(err).Int64("request", requestID).Msg("reject failed")
		if s.notify != nil {
			s.notify.Push(notify.Error, "Could not reject friend request.")
		}
		return err
	}

	s.mu.Lock()
	delete(s.statuses, senderID)
	kept := s.requests[:0]
	for _, r := range s.requests {
		if r.ID != requestID {
			kept = append(kept, r)
		}
	}
	s.requests = kept
	s.mu.Unlock()

	if s.notify != nil {
		s.notify.Push(notify.Success, "Friend request rejected.")
	}
	return nil
}
