package session

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"scenecraft/internal/logging"
	"scenecraft/internal/orchestrator"
	"scenecraft/internal/services"
)

// Factory builds the orchestrator for a new session.
type Factory func(id string) (*orchestrator.Orchestrator, error)

// Manager holds independent sessions keyed by id.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Controller
	factory  Factory
	logger   *slog.Logger
	clock    func() time.Time
}

// NewManager constructs a manager that builds sessions with factory.
func NewManager(factory Factory, logger *slog.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]*Controller),
		factory:  factory,
		logger:   logging.NewComponentLogger(logger, "sessions"),
		clock:    time.Now,
	}
}

// Create starts an empty session.
func (m *Manager) Create() (*Controller, error) {
	if m.factory == nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "create session", "no session factory", nil)
	}
	id := uuid.NewString()
	orch, err := m.factory(id)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	ctrl := NewController(id, orch, m.clock())

	m.mu.Lock()
	m.sessions[id] = ctrl
	m.mu.Unlock()

	m.logger.Info("session created", logging.String(logging.FieldSessionID, id))
	return ctrl, nil
}

// Get returns the session with id.
func (m *Manager) Get(id string) (*Controller, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ctrl, ok := m.sessions[id]
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "", "get session", "no session "+id, nil)
	}
	return ctrl, nil
}

// List returns every session, oldest first.
func (m *Manager) List() []*Controller {
	m.mu.RLock()
	out := make([]*Controller, 0, len(m.sessions))
	for _, ctrl := range m.sessions {
		out = append(out, ctrl)
	}
	m.mu.RUnlock()
	slices.SortFunc(out, func(a, b *Controller) int {
		if c := a.createdAt.Compare(b.createdAt); c != 0 {
			return c
		}
		if a.id < b.id {
			return -1
		}
		if a.id > b.id {
			return 1
		}
		return 0
	})
	return out
}

// Delete drops a session. A session with a run in flight cannot be deleted.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ctrl, ok := m.sessions[id]
	if !ok {
		return services.Wrap(services.ErrNotFound, "", "delete session", "no session "+id, nil)
	}
	// Holding the run guard keeps a run from starting between the check and
	// the removal.
	if err := ctrl.orch.Exclusive("delete session", func() error {
		delete(m.sessions, id)
		return nil
	}); err != nil {
		return err
	}
	m.logger.Info("session deleted", logging.String(logging.FieldSessionID, id))
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
