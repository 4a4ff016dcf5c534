package sim

import (
	"context"
	"log"
	"sync"

	mmetrics "metro-simulator/internal/metrics"
)

// Manager runs sessions in their own goroutines and routes commands to them
// by id.
type Manager struct {
	metrics *mmetrics.Collector

	mu      sync.Mutex
	running map[string]*Session
	wg      sync.WaitGroup
}

func NewManager(metrics *mmetrics.Collector) *Manager {
	return &Manager{metrics: metrics, running: make(map[string]*Session)}
}

// Launch starts s.Run in a goroutine. It returns false when a session with
// the same id is already running.
func (m *Manager) Launch(ctx context.Context, s *Session) bool {
	m.mu.Lock()
	if _, exists := m.running[s.ID()]; exists {
		m.mu.Unlock()
		return false
	}
	m.running[s.ID()] = s
	m.wg.Add(1)
	if m.metrics != nil {
		m.metrics.SessionsStarted.Inc()
		m.metrics.ActiveSessions.Set(float64(len(m.running)))
	}
	m.mu.Unlock()

	log.Printf("launching session %s", s.ID())
	go func() {
		defer m.wg.Done()
		if err := s.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("session %s error: %v", s.ID(), err)
		}
		m.mu.Lock()
		delete(m.running, s.ID())
		if m.metrics != nil {
			m.metrics.ActiveSessions.Set(float64(len(m.running)))
		}
		m.mu.Unlock()
	}()
	return true
}

func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.running[id]
	return s, ok
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.running)
}

// Apply routes a named command to a running session.
func (m *Manager) Apply(ctx context.Context, id, command string, value float64) error {
	s, ok := m.Get(id)
	if !ok {
		return ErrStopped
	}
	err := s.Apply(ctx, command, value)
	if m.metrics != nil {
		result := "ok"
		if err != nil {
			result = "error"
		}
		m.metrics.Commands.WithLabelValues(command, result).Inc()
	}
	return err
}

func (m *Manager) Stop(id string) {
	if s, ok := m.Get(id); ok {
		s.Stop()
	}
}

// StopAll stops every session and waits for their goroutines to exit.
func (m *Manager) StopAll() {
	m.mu.Lock()
	for _, s := range m.running {
		s.Stop()
	}
	m.mu.Unlock()
	m.wg.Wait()
}
