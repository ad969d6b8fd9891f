package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/ksuid"
)

var ErrNotFound = errors.New("session not found")

type Manager interface {
	Create(ctx context.Context) (*Session, error)
	Get(ctx context.Context, id string) (*Session, error)
	Update(ctx context.Context, session *Session) error
	Delete(ctx context.Context, id string) error
}

type memoryManager struct {
	mux      sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryManager keeps sessions in process memory. Sessions handed out
// are copies, changes take effect with Update.
func NewMemoryManager() Manager {
	return &memoryManager{
		sessions: make(map[string]*Session),
	}
}

func (m *memoryManager) Create(ctx context.Context) (*Session, error) {
	m.mux.Lock()
	defer m.mux.Unlock()
	session := &Session{
		ID:        ksuid.New().String(),
		CreatedAt: time.Now(),
	}
	m.sessions[session.ID] = session
	slog.Debug("session created", "id", session.ID)
	copied := *session
	return &copied, nil
}

func (m *memoryManager) Get(ctx context.Context, id string) (*Session, error) {
	m.mux.RLock()
	defer m.mux.RUnlock()
	session, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrNotFound, id)
	}
	copied := *session
	return &copied, nil
}

func (m *memoryManager) Update(ctx context.Context, session *Session) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	if _, ok := m.sessions[session.ID]; !ok {
		return fmt.Errorf("%w: '%s'", ErrNotFound, session.ID)
	}
	copied := *session
	m.sessions[session.ID] = &copied
	return nil
}

func (m *memoryManager) Delete(ctx context.Context, id string) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	delete(m.sessions, id)
	slog.Debug("session deleted", "id", id)
	return nil
}
