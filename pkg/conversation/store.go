// Package conversation is the per-agent mutable turn history: creation,
// append, retrieval, deletion, and context compression.
package conversation

import (
	"log/slog"
	"sync"

	"github.com/agentsociety/runtime/pkg/apperr"
)

// Store holds one ordered turn list per agent.
type Store struct {
	mu            sync.RWMutex
	conversations map[string][]Turn
}

// New creates an empty Store.
func New() *Store {
	return &Store{conversations: make(map[string][]Turn)}
}

// EnsureConversation creates agentId's conversation with a leading system
// turn if it doesn't already exist. Idempotent: an existing conversation's
// system turn is left untouched, even if systemPrompt differs.
func (s *Store) EnsureConversation(agentID, systemPrompt string) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.conversations[agentID]; ok {
		return cloneTurns(existing)
	}
	turns := []Turn{{Role: RoleSystem, Content: systemPrompt}}
	s.conversations[agentID] = turns
	return cloneTurns(turns)
}

// Append adds a turn to agentId's conversation. The conversation must
// already exist (via EnsureConversation).
func (s *Store) Append(agentID string, turn Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[agentID]; !ok {
		return apperr.New(apperr.AgentNotFound)
	}
	s.conversations[agentID] = append(s.conversations[agentID], turn)
	return nil
}

// GetConversation returns a snapshot of agentId's turns, or false if none
// exists.
func (s *Store) GetConversation(agentID string) ([]Turn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	turns, ok := s.conversations[agentID]
	if !ok {
		return nil, false
	}
	return cloneTurns(turns), true
}

// DeleteConversation removes agentId's conversation entirely.
func (s *Store) DeleteConversation(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, agentID)
}

// Compress collapses agentId's conversation to
// [systemTurn, summaryTurn, ...lastK] when its length exceeds keepRecentCount+1,
// preserving the original system turn byte-for-byte. If the conversation is
// already at or below that length, it is left untouched and Compressed is
// false.
func (s *Store) Compress(agentID, summary string, keepRecentCount int) (CompressResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns, ok := s.conversations[agentID]
	if !ok {
		return CompressResult{}, apperr.New(apperr.AgentNotFound)
	}

	originalCount := len(turns)
	if originalCount <= keepRecentCount+1 {
		return CompressResult{Compressed: false, OriginalCount: originalCount, NewCount: originalCount}, nil
	}

	sysTurn := turns[0]
	summaryTurn := Turn{Role: RoleSystem, Content: summaryPrefix + summary}
	lastK := append([]Turn(nil), turns[originalCount-keepRecentCount:]...)

	newTurns := make([]Turn, 0, keepRecentCount+2)
	newTurns = append(newTurns, sysTurn, summaryTurn)
	newTurns = append(newTurns, lastK...)

	s.conversations[agentID] = newTurns
	slog.Info("conversation: compressed", "agentId", agentID, "originalCount", originalCount, "newCount", len(newTurns))

	return CompressResult{Compressed: true, OriginalCount: originalCount, NewCount: len(newTurns)}, nil
}

// Len returns the current turn count for agentId, or 0 if it has no
// conversation.
func (s *Store) Len(agentID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations[agentID])
}

func cloneTurns(turns []Turn) []Turn {
	out := make([]Turn, len(turns))
	for i, t := range turns {
		out[i] = t.Clone()
	}
	return out
}
