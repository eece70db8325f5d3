package store

import (
	"context"
	"sync"
	"time"

	"github.com/stagecal/stagecal/internal/errors"
	"github.com/stagecal/stagecal/internal/models"
)

// MemoryStore keeps everything in process memory. It is thread-safe and
// preserves insertion order for listings.
type MemoryStore struct {
	mu sync.RWMutex

	events     map[string]*models.Event
	eventOrder []string

	statuses    map[string]*models.Status
	statusOrder []string

	sessions map[string]sessionEntry

	now func() time.Time
}

type sessionEntry struct {
	creds     *models.Credentials
	updatedAt time.Time
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:   make(map[string]*models.Event),
		statuses: make(map[string]*models.Status),
		sessions: make(map[string]sessionEntry),
		now:      time.Now,
	}
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

// Event operations

func (s *MemoryStore) CreateEvent(_ context.Context, ev *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[ev.ID]; !ok {
		s.eventOrder = append(s.eventOrder, ev.ID)
	}
	s.events[ev.ID] = ev.Clone()
	return nil
}

func (s *MemoryStore) GetEvent(_ context.Context, id string) (*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ev, ok := s.events[id]
	if !ok {
		return nil, &errors.ErrNotFound{Kind: "event", ID: id}
	}
	return ev.Clone(), nil
}

func (s *MemoryStore) ListEvents(_ context.Context) ([]*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.Event, 0, len(s.eventOrder))
	for _, id := range s.eventOrder {
		result = append(result, s.events[id].Clone())
	}
	return result, nil
}

func (s *MemoryStore) UpdateEvent(_ context.Context, ev *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[ev.ID]; !ok {
		return &errors.ErrNotFound{Kind: "event", ID: ev.ID}
	}
	s.events[ev.ID] = ev.Clone()
	return nil
}

func (s *MemoryStore) DeleteEvent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[id]; !ok {
		return &errors.ErrNotFound{Kind: "event", ID: id}
	}
	delete(s.events, id)
	s.eventOrder = removeID(s.eventOrder, id)
	return nil
}

// Status operations

func (s *MemoryStore) CreateStatus(_ context.Context, st *models.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.statuses[st.ID]; !ok {
		s.statusOrder = append(s.statusOrder, st.ID)
	}
	cp := *st
	s.statuses[st.ID] = &cp
	return nil
}

func (s *MemoryStore) GetStatus(_ context.Context, id string) (*models.Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.statuses[id]
	if !ok {
		return nil, &errors.ErrNotFound{Kind: "status", ID: id}
	}
	cp := *st
	return &cp, nil
}

func (s *MemoryStore) ListStatuses(_ context.Context) ([]*models.Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.Status, 0, len(s.statusOrder))
	for _, id := range s.statusOrder {
		cp := *s.statuses[id]
		result = append(result, &cp)
	}
	return result, nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, st *models.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.statuses[st.ID]; !ok {
		return &errors.ErrNotFound{Kind: "status", ID: st.ID}
	}
	cp := *st
	s.statuses[st.ID] = &cp
	return nil
}

func (s *MemoryStore) DeleteStatus(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.statuses[id]; !ok {
		return &errors.ErrNotFound{Kind: "status", ID: id}
	}
	delete(s.statuses, id)
	s.statusOrder = removeID(s.statusOrder, id)
	return nil
}

// Session operations

func (s *MemoryStore) GetCredentials(_ context.Context, sessionID string) (*models.Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	cp := *entry.creds
	return &cp, nil
}

func (s *MemoryStore) PutCredentials(_ context.Context, sessionID string, creds *models.Credentials) error {
	if err := creds.Validate(); err != nil {
		return &errors.ErrValidation{Field: "credentials", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *creds
	s.sessions[sessionID] = sessionEntry{creds: &cp, updatedAt: s.now()}
	return nil
}

func (s *MemoryStore) DeleteCredentials(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	return nil
}

func (s *MemoryStore) PurgeSessions(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for id, entry := range s.sessions {
		if entry.updatedAt.Before(before) {
			delete(s.sessions, id)
			purged++
		}
	}
	return purged, nil
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
