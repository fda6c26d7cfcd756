// Package history keeps per-conversation message history in memory and
// compacts long conversations through summarization before they are sent
// to the model.
package history

import (
	"sync"

	"github.com/reun10n/kuro/pkg/models"
)

// Store holds conversation histories keyed by an opaque conversation id
// (the chat layer uses the channel id). Memory-resident: histories live for
// the process lifetime and are lost on restart.
//
// The store is safe for concurrent use, but turn ordering within one
// conversation relies on the caller running at most one turn per
// conversation at a time. The chat layer serializes turns per channel.
type Store struct {
	mu            sync.RWMutex
	conversations map[string][]models.Turn
}

func NewStore() *Store {
	return &Store{conversations: make(map[string][]models.Turn)}
}

// Get returns a copy of the conversation's turns in append order.
// Unknown conversations yield an empty history, never an error.
func (s *Store) Get(conversationID string) []models.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.CloneTurns(s.conversations[conversationID])
}

// Append adds turns to the conversation, creating it on first use.
// Turns are copied in, so later caller-side mutation cannot reach the store.
func (s *Store) Append(conversationID string, turns ...models.Turn) {
	if len(turns) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[conversationID] = append(s.conversations[conversationID], models.CloneTurns(turns)...)
}

// Clear removes the conversation entirely.
func (s *Store) Clear(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, conversationID)
}

// Len returns the number of stored turns for the conversation.
func (s *Store) Len(conversationID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations[conversationID])
}
