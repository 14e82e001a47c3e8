package wizard

import (
	"context"
	"sync"

	"evofit/health-protocol/internal/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DraftStore persists the active session of each operator so a draft survives
// restarts. Load returns repository.ErrNotFound when the operator has none.
type DraftStore interface {
	Save(ctx context.Context, s Session) error
	Load(ctx context.Context, operatorID primitive.ObjectID) (Session, error)
	Delete(ctx context.Context, operatorID primitive.ObjectID) error
}

// MemoryDraftStore keeps drafts in process memory.
type MemoryDraftStore struct {
	mu     sync.RWMutex
	drafts map[primitive.ObjectID]Session
}

func NewMemoryDraftStore() *MemoryDraftStore {
	return &MemoryDraftStore{drafts: make(map[primitive.ObjectID]Session)}
}

func (m *MemoryDraftStore) Save(ctx context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drafts[s.OperatorID] = s.Clone()
	return nil
}

func (m *MemoryDraftStore) Load(ctx context.Context, operatorID primitive.ObjectID) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.drafts[operatorID]
	if !ok {
		return Session{}, repository.ErrNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryDraftStore) Delete(ctx context.Context, operatorID primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.drafts, operatorID)
	return nil
}
