// Package session keeps per-learner playground state: the code buffer, the
// selected example and whether explanations are shown.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"code-playground/internal/library"
)

var (
	ErrNotFound       = errors.New("session not found")
	ErrUnknownExample = errors.New("unknown example")
)

// State is owned by the service boundary; the execution engine never sees it.
type State struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Example   string    `json:"example,omitempty"` // slug of the last selected example
	Beginner  bool      `json:"beginner"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New returns a fresh state holding the default snippet.
func New(beginner bool) *State {
	now := time.Now().UTC()
	return &State{
		ID:        uuid.New().String(),
		Code:      library.Default,
		Beginner:  beginner,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// SelectExample replaces the code buffer with the example's code.
func (s *State) SelectExample(slug string) error {
	ex, ok := library.Get(slug)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownExample, slug)
	}
	s.Example = ex.Slug
	s.Code = ex.Code
	s.touch()
	return nil
}

// SetCode replaces the code buffer.
func (s *State) SetCode(code string) {
	s.Code = code
	s.touch()
}

func (s *State) touch() {
	s.UpdatedAt = time.Now().UTC()
}

// Store persists session state.
type Store interface {
	Save(ctx context.Context, st *State) error
	// Get returns ErrNotFound for unknown ids.
	Get(ctx context.Context, id string) (*State, error)
	Delete(ctx context.Context, id string) error
	// Purge removes sessions not updated since cutoff and reports how many.
	Purge(ctx context.Context, cutoff time.Time) (int, error)
	Close() error
}
