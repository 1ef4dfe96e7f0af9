package session

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kapu/persona-script-go/internal/domain"
	"github.com/kapu/persona-script-go/pkg/errors"
)

// Store keeps every live session in memory.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	defaults domain.ModelSettings
	logger   *zap.Logger
}

func NewStore(defaults domain.ModelSettings, logger *zap.Logger) *Store {
	return &Store{
		sessions: make(map[string]*Session),
		defaults: defaults,
		logger:   logger,
	}
}

func (st *Store) Create() *Session {
	id := uuid.NewString()
	sess := newSession(NewState(id, st.defaults), st.logger.With(zap.String("session", id)))

	st.mu.Lock()
	st.sessions[id] = sess
	st.mu.Unlock()

	st.logger.Info("Session created", zap.String("session", id))
	return sess
}

func (st *Store) Get(id string) (*Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	sess, ok := st.sessions[id]
	if !ok {
		return nil, errors.NewNotFoundError("session", id)
	}
	return sess, nil
}

func (st *Store) Delete(id string) error {
	st.mu.Lock()
	sess, ok := st.sessions[id]
	delete(st.sessions, id)
	st.mu.Unlock()

	if !ok {
		return errors.NewNotFoundError("session", id)
	}
	sess.close()
	st.logger.Info("Session deleted", zap.String("session", id))
	return nil
}

// List returns summaries ordered by most recent update.
func (st *Store) List() []Summary {
	st.mu.RLock()
	sessions := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		sessions = append(sessions, s)
	}
	st.mu.RUnlock()

	out := make([]Summary, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Snapshot().Summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

// Close closes every session's event hub.
func (st *Store) Close() {
	st.mu.Lock()
	defer st.mu.Unlock()
	for id, s := range st.sessions {
		s.close()
		delete(st.sessions, id)
	}
}
