package matching

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Turn is one message of a recruiter conversation.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ErrNotInResults is returned when selecting a candidate the last search did
// not return.
var ErrNotInResults = errors.New("candidate is not in the current results")

// Session is the state of one recruiter conversation: its transcript, the
// last result set and the candidate picked from it.
type Session struct {
	ID         string
	OwnerEmail string

	mu         sync.Mutex
	transcript []Turn
	results    []Match
	selected   string
	touched    time.Time
}

// NewSession starts a conversation for owner, whose own profile is never
// returned as a match.
func NewSession(owner string) *Session {
	return &Session{ID: uuid.NewString(), OwnerEmail: owner, touched: time.Now()}
}

func (s *Session) addTurn(role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = append(s.transcript, Turn{Role: role, Content: content})
	s.touched = time.Now()
}

func (s *Session) setResults(m []Match) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = m
	s.selected = ""
}

// Transcript returns a copy of the conversation so far.
func (s *Session) Transcript() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Turn(nil), s.transcript...)
}

// Results returns the matches of the last search.
func (s *Session) Results() []Match {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Match(nil), s.results...)
}

// Select marks email, which must be among the current results.
func (s *Session) Select(email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.results {
		if m.Profile.Email == email {
			s.selected = email
			return nil
		}
	}
	return ErrNotInResults
}

// Selected returns the selected candidate's email, or "".
func (s *Session) Selected() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

func (s *Session) lastTouched() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touched
}

// Sessions is an in-memory registry of recruiter sessions.
type Sessions struct {
	mu       sync.Mutex
	sessions map[string]*Session
	idle     time.Duration
}

// NewSessions creates a registry. Sessions idle for longer than idle are
// dropped on the next Create; zero keeps them forever.
func NewSessions(idle time.Duration) *Sessions {
	return &Sessions{sessions: make(map[string]*Session), idle: idle}
}

func (r *Sessions) Create(owner string) *Session {
	s := NewSession(owner)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.idle > 0 {
		cutoff := time.Now().Add(-r.idle)
		for id, old := range r.sessions {
			if old.lastTouched().Before(cutoff) {
				delete(r.sessions, id)
			}
		}
	}
	r.sessions[s.ID] = s
	return s
}

func (r *Sessions) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *Sessions) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

func (r *Sessions) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
