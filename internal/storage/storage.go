package storage

import (
	"sync"

	"github.com/google/uuid"

	"github.com/lehigh-university-libraries/pagesnap/internal/models"
)

type SessionStore struct {
	sessions map[string]*models.CaptureSession
	mu       sync.RWMutex
}

func New() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*models.CaptureSession),
	}
}

// NewID returns a fresh session ID.
func NewID() string {
	return uuid.NewString()
}

func (s *SessionStore) Get(sessionID string) (*models.CaptureSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, exists := s.sessions[sessionID]
	return session, exists
}

func (s *SessionStore) Set(sessionID string, session *models.CaptureSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = session
}

func (s *SessionStore) GetAll() map[string]*models.CaptureSession {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]*models.CaptureSession, len(s.sessions))
	for k, v := range s.sessions {
		result[k] = v
	}
	return result
}

func (s *SessionStore) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// Take removes and returns a session in one step.
func (s *SessionStore) Take(sessionID string) (*models.CaptureSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, exists := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	return session, exists
}
