// README: In-memory request store; the engine's working set. Terminal records
// are archived out and kept here only for idempotent status reads.
package dispatch

import (
	"sync"
	"time"

	"dispatch/internal/types"
)

type Store struct {
	mu       sync.RWMutex
	requests map[types.ID]*Request
}

func NewStore() *Store {
	return &Store{requests: make(map[types.ID]*Request)}
}

func (s *Store) Create(req *Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[req.ID]; ok {
		return ErrConflict
	}
	cp := *req
	s.requests[req.ID] = &cp
	return nil
}

// Get returns a copy of the request.
func (s *Store) Get(id types.ID) (Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[id]
	if !ok {
		return Request{}, ErrNotFound
	}
	return *req, nil
}

// UpdateStatus transitions the request if the move is legal. Returns the
// status it held before the call so racers can tell who actually moved it.
func (s *Store) UpdateStatus(id types.ID, to Status) (prev Status, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return "", ErrNotFound
	}
	prev = req.Status
	if !CanTransition(prev, to) {
		return prev, ErrInvalidState
	}
	req.Status = to
	return prev, nil
}

// SetMatched binds the winning agent, transitioning to matched exactly once.
func (s *Store) SetMatched(id, agentID types.ID, at time.Time, rounds int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return ErrNotFound
	}
	if !CanTransition(req.Status, StatusMatched) {
		return ErrInvalidState
	}
	req.Status = StatusMatched
	req.AgentID = &agentID
	req.MatchedAt = &at
	req.Rounds = rounds
	return nil
}

// SetRounds records how many rounds the request has consumed so far.
func (s *Store) SetRounds(id types.ID, rounds int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if req, ok := s.requests[id]; ok {
		req.Rounds = rounds
	}
}
