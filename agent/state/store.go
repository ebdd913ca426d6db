package state

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrApplicationNotFound = errors.New("application not found")
	ErrInvalidApplication  = errors.New("application id is empty")
)

// Store owns every LoanApplication. Get returns the live object: a turn
// mutates it in place while holding that application's turn lock.
type Store interface {
	Create(ctx context.Context, customerID string) (*LoanApplication, error)
	Get(ctx context.Context, applicationID string) (*LoanApplication, error)
	List(ctx context.Context) ([]string, error)
}

// StoreOption customizes MemoryStore.
type StoreOption func(*MemoryStore)

func WithIDGenerator(fn func() string) StoreOption {
	return func(s *MemoryStore) {
		if fn != nil {
			s.newID = fn
		}
	}
}

func WithClock(fn func() time.Time) StoreOption {
	return func(s *MemoryStore) {
		if fn != nil {
			s.now = fn
		}
	}
}

// MemoryStore keeps applications for the lifetime of the process. Its mutex
// guards the map only; field mutation is serialized per application by the
// orchestrator.
type MemoryStore struct {
	mu    sync.RWMutex
	apps  map[string]*LoanApplication
	newID func() string
	now   func() time.Time
}

func NewMemoryStore(opts ...StoreOption) *MemoryStore {
	s := &MemoryStore{
		apps:  make(map[string]*LoanApplication, 16),
		newID: uuid.NewString,
		now:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *MemoryStore) Create(ctx context.Context, customerID string) (*LoanApplication, error) {
	app := NewLoanApplication(s.newID(), strings.TrimSpace(customerID), s.now())

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.apps[app.ApplicationID]; exists {
		return nil, errors.New("duplicate application id " + app.ApplicationID)
	}
	s.apps[app.ApplicationID] = app
	return app, nil
}

func (s *MemoryStore) Get(ctx context.Context, applicationID string) (*LoanApplication, error) {
	id := strings.TrimSpace(applicationID)
	if id == "" {
		return nil, ErrInvalidApplication
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	app, ok := s.apps[id]
	if !ok {
		return nil, ErrApplicationNotFound
	}
	return app, nil
}

func (s *MemoryStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.apps))
	for id := range s.apps {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
