package inmemdb

import (
	"context"
	"sync"

	"github.com/trezcool/grader/core/workflow"
)

type workflowStore struct {
	mu       sync.RWMutex
	sessions map[int]workflow.Session
}

var _ workflow.Store = (*workflowStore)(nil) // interface compliance check

func NewWorkflowStore() workflow.Store {
	return &workflowStore{sessions: make(map[int]workflow.Session)}
}

func (s *workflowStore) GetSession(_ context.Context, professorID int) (workflow.Session, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[professorID]
	if ok {
		msgs := make([]workflow.ChatMessage, len(session.Messages))
		copy(msgs, session.Messages)
		session.Messages = msgs
	}
	return session, ok, nil
}

func (s *workflowStore) SaveSession(_ context.Context, session workflow.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ProfessorID] = session
	return nil
}

func (s *workflowStore) DeleteSession(_ context.Context, professorID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, professorID)
	return nil
}
