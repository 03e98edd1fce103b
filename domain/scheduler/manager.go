package scheduler

import (
	"context"
	"sync"

	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/eigen"
)

// Manager owns the scheduler goroutines: exactly one Runner task per
// runnable eigen. Lifecycle operations reach a running
// eigen's loop through EnqueueCommand.
type Manager struct {
	deps Deps

	mu      sync.Mutex
	runners map[string]*managed
	wg      sync.WaitGroup
	root    context.Context
	cancel  context.CancelFunc
}

type managed struct {
	runner *Runner
	cancel context.CancelFunc
}

// NewManager builds a Manager; Start must be called before StartFor.
func NewManager(deps Deps) *Manager {
	return &Manager{deps: deps, runners: make(map[string]*managed)}
}

// Start establishes the root context all runner tasks descend from.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.root, m.cancel = context.WithCancel(ctx)
}

// StartFor launches the runner task for eigenID if none is running.
func (m *Manager) StartFor(eigenID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.root == nil {
		return
	}
	if _, running := m.runners[eigenID]; running {
		return
	}

	runCtx, cancel := context.WithCancel(m.root)
	r := NewRunner(m.deps, eigenID)
	m.runners[eigenID] = &managed{runner: r, cancel: cancel}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			delete(m.runners, eigenID)
			m.mu.Unlock()
			cancel()
		}()
		r.Run(runCtx)
	}()
}

// StopFor cancels eigenID's runner task; in-flight RPCs complete or fail
// on their own deadlines (cancellation is cooperative, never forceful).
func (m *Manager) StopFor(eigenID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mg, ok := m.runners[eigenID]; ok {
		mg.cancel()
	}
}

// EnqueueCommand hands a lifecycle command to eigenID's running loop. If
// no loop is live (a parked or terminal eigen, or right after a restart)
// the command runs synchronously on a transient runner instead — a
// withdraw against a closed eigen must still settle.
func (m *Manager) EnqueueCommand(ctx context.Context, eigenID string, cmd Command) error {
	m.mu.Lock()
	mg, ok := m.runners[eigenID]
	m.mu.Unlock()
	if ok {
		return mg.runner.Enqueue(ctx, cmd)
	}

	e, err := m.deps.Registry.Get(ctx, eigenID)
	if err != nil {
		return err
	}
	r := NewRunner(m.deps, eigenID)
	return r.runCommand(ctx, e, cmd)
}

// ResumeRunnable starts a runner for every eigen the keeper should be
// driving, called once at boot so a restart picks up where it left off.
func (m *Manager) ResumeRunnable(ctx context.Context) error {
	for _, status := range []eigen.Status{eigen.StatusActive, eigen.StatusLiquidating} {
		offset := 0
		for {
			batch, err := m.deps.Registry.List(ctx, eigen.ListFilter{Status: status}, eigen.Page{Offset: offset, Limit: 100})
			if err != nil {
				return err
			}
			for _, e := range batch {
				m.StartFor(e.ID)
			}
			if len(batch) < 100 {
				break
			}
			offset += len(batch)
		}
	}
	return nil
}

// Shutdown cancels every runner and waits for the tasks to drain.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	m.mu.Unlock()
	m.wg.Wait()
}

// Running reports how many runner tasks are live, for /api/stats.
func (m *Manager) Running() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runners)
}
