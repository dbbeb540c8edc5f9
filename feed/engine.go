// Package feed owns the post list and applies like toggles optimistically:
// the flip is visible immediately, and the state always converges to what
// the server reports, by correction on success or rollback on failure.
package feed

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"linkup/models"
)

// Backend is the subset of the API client the engine needs.
type Backend interface {
	FriendsPosts(ctx context.Context) ([]models.Post, error)
	ToggleLike(ctx context.Context, postID int64) (*models.LikeResult, error)
}

type Engine struct {
	backend Backend
	log     zerolog.Logger

	mu       sync.Mutex
	posts    []models.Post
	inflight map[int64]bool
}

func New(backend Backend) *Engine {
	return &Engine{
		backend:  backend,
		inflight: make(map[int64]bool),
		log:      log.With().Str("component", "feed").Logger(),
	}
}

// Load replaces the feed with the friends' posts.
func (e *Engine) Load(ctx context.Context) error {
	posts, err := e.backend.FriendsPosts(ctx)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.posts = posts
	e.mu.Unlock()
	return nil
}

// Posts returns a copy of the current feed.
func (e *Engine) Posts() []models.Post {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.Post, len(e.posts))
	copy(out, e.posts)
	return out
}

// Post returns the post with the given id, if present.
func (e *Engine) Post(postID int64) (models.Post, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i := e.index(postID); i >= 0 {
		return e.posts[i], true
	}
	return models.Post{}, false
}

// ToggleLike flips the like state of a post immediately and confirms it
// with the backend in the background. An unknown id is a no-op, and a
// second toggle on the same post is dropped while one is still in flight.
func (e *Engine) ToggleLike(ctx context.Context, postID int64) {
	e.mu.Lock()
	i := e.index(postID)
	if i < 0 || e.inflight[postID] {
		e.mu.Unlock()
		return
	}

	original := e.posts[i]
	updated := original
	updated.IsLiked = !original.IsLiked
	if original.IsLiked {
		updated.LikeCount = original.LikeCount - 1
	} else {
		updated.LikeCount = original.LikeCount + 1
	}
	e.posts[i] = updated
	e.inflight[postID] = true
	e.mu.Unlock()

	go e.confirm(ctx, postID, original, updated)
}

func (e *Engine) confirm(ctx context.Context, postID int64, original, guess models.Post) {
	res, err := e.backend.ToggleLike(ctx, postID)

	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inflight, postID)

	i := e.index(postID)
	if i < 0 {
		return
	}

	if err != nil {
		// Restore the captured snapshot, not a re-derived inverse.
		e.posts[i] = original
		e.log.Debug().Err(err).Int64("post", postID).Msg("like toggle failed, rolled back")
		return
	}

	if res.Liked != guess.IsLiked || res.LikeCount != guess.LikeCount {
		// Another like landed in the meantime; the server's word is final.
		e.posts[i].IsLiked = res.Liked
		e.posts[i].LikeCount = res.LikeCount
	}
}

// InFlight reports whether a toggle on the post is awaiting confirmation.
func (e *Engine) InFlight(postID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inflight[postID]
}

func (e *Engine) index(postID int64) int {
	for i := range e.posts {
		if e.posts[i].ID == postID {
			return i
		}
	}
	return -1
}
