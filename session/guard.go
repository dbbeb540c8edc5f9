// Package session resolves the current user and redirects unauthenticated
// callers away from protected screens via an injected hook.
package session

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"linkup/models"
)

var ErrUnauthenticated = errors.New("session: not logged in")

// Backend is the subset of the API client the guard needs.
type Backend interface {
	Session(ctx context.Context) (*models.User, error)
}

type Guard struct {
	backend           Backend
	onUnauthenticated func()
	log               zerolog.Logger
}

// NewGuard wraps the backend. onUnauthenticated runs whenever Require
// finds no valid session; the CLI prompts for login, a GUI would navigate.
func NewGuard(backend Backend, onUnauthenticated func()) *Guard {
	return &Guard{
		backend:           backend,
		onUnauthenticated: onUnauthenticated,
		log:               log.With().Str("component", "session").Logger(),
	}
}

// Require returns the logged-in user or fires the unauthenticated hook.
func (g *Guard) Require(ctx context.Context) (*models.User, error) {
	user, err := g.backend.Session(ctx)
	if err != nil {
		return nil, err
	}
	if user == nil {
		g.log.Debug().Msg("no active session")
		if g.onUnauthenticated != nil {
			g.onUnauthenticated()
		}
		return nil, ErrUnauthenticated
	}
	return user, nil
}
