// Package lifecycle starts, health-checks and stops the container running the
// service under test.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/torosent/divideload/internal/httpclient"
)

var (
	// ErrNotReady is returned when the service never answered its health check.
	ErrNotReady = errors.New("service did not become ready")
	// ErrLocked is returned when another process manages a container with the same name.
	ErrLocked = errors.New("container name is locked by another process")
	// ErrAlreadyStarted is returned when Start is called more than once.
	ErrAlreadyStarted = errors.New("lifecycle manager already started")
)

// State of a Manager.
type State int

const (
	StateNotStarted State = iota
	StateStarting
	StateReady
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Handle identifies a launched container.
type Handle struct {
	ID    string
	Name  string
	Port  int
	Image string
}

// Options configure a Manager.
type Options struct {
	Runtime        Runtime
	Name           string
	Image          string
	Port           int
	HealthURL      string        // defaults to http://localhost:<Port>
	HealthAttempts int           // defaults to 30
	HealthInterval time.Duration // defaults to 1s
	ProbeTimeout   time.Duration // defaults to 2s
	StopTimeout    time.Duration // defaults to 30s
	LockDir        string        // defaults to os.TempDir()
	Logger         *slog.Logger

	Probe func(ctx context.Context) error                  // optional injection for tests
	Sleep func(ctx context.Context, d time.Duration) error // optional injection for tests
}

// Manager owns one service container. Start may be called once; Stop may be
// called any number of times and stops the container at most once.
type Manager struct {
	opts Options
	log  *slog.Logger

	mu        sync.Mutex
	state     State
	handle    *Handle
	attempted bool // a run was issued, even if it did not report success
	lock      *flock.Flock
	stopOnce  sync.Once
}

func NewManager(opts Options) (*Manager, error) {
	if opts.Runtime == nil {
		return nil, errors.New("lifecycle: runtime is required")
	}
	if opts.Name == "" {
		return nil, errors.New("lifecycle: container name is required")
	}
	if opts.Image == "" {
		return nil, errors.New("lifecycle: image is required")
	}
	if opts.Port <= 0 || opts.Port > 65535 {
		return nil, fmt.Errorf("lifecycle: invalid port %d", opts.Port)
	}
	if opts.HealthURL == "" {
		opts.HealthURL = "http://localhost:" + strconv.Itoa(opts.Port)
	}
	if opts.HealthAttempts <= 0 {
		opts.HealthAttempts = 30
	}
	if opts.HealthInterval <= 0 {
		opts.HealthInterval = time.Second
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 2 * time.Second
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 30 * time.Second
	}
	if opts.LockDir == "" {
		opts.LockDir = os.TempDir()
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	if opts.Probe == nil {
		builder, err := httpclient.NewRequestBuilder(opts.HealthURL)
		if err != nil {
			return nil, fmt.Errorf("lifecycle: %w", err)
		}
		client := httpclient.NewClient(opts.ProbeTimeout)
		timeout := opts.ProbeTimeout
		opts.Probe = func(ctx context.Context) error {
			return httpclient.CheckHealth(ctx, client, builder, timeout)
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		opts: opts,
		log:  logger.With("container", opts.Name),
	}, nil
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Handle returns the launched container, or nil.
func (m *Manager) Handle() *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handle
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// LockPath returns the file used to guard the container name across processes.
func (m *Manager) LockPath() string {
	return filepath.Join(m.opts.LockDir, "divideload-"+m.opts.Name+".lock")
}

// Start replaces any container with the same name, launches a new one and
// waits until its health endpoint answers 200. The caller must call Stop
// whatever Start returns.
func (m *Manager) Start(ctx context.Context) (*Handle, error) {
	m.mu.Lock()
	if m.state != StateNotStarted {
		m.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	m.state = StateStarting
	m.mu.Unlock()

	lock := flock.New(m.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		m.setState(StateFailed)
		return nil, fmt.Errorf("acquire container lock: %w", err)
	}
	if !locked {
		m.setState(StateFailed)
		return nil, fmt.Errorf("%w: %s", ErrLocked, m.opts.Name)
	}
	m.mu.Lock()
	m.lock = lock
	m.mu.Unlock()

	if err := m.opts.Runtime.Stop(ctx, m.opts.Name); err != nil {
		m.log.Debug("no previous container stopped", "error", err)
	}

	m.log.Info("starting container", "image", m.opts.Image, "port", m.opts.Port)
	m.mu.Lock()
	m.attempted = true
	m.mu.Unlock()
	id, err := m.opts.Runtime.Run(ctx, RunSpec{Name: m.opts.Name, Image: m.opts.Image, HostPort: m.opts.Port})
	if err != nil {
		m.setState(StateFailed)
		return nil, err
	}

	handle := &Handle{ID: id, Name: m.opts.Name, Port: m.opts.Port, Image: m.opts.Image}
	m.mu.Lock()
	m.handle = handle
	m.mu.Unlock()
	m.log.Info("container started", "id", shortID(id))

	if err := m.waitReady(ctx); err != nil {
		m.setState(StateFailed)
		return handle, err
	}
	m.setState(StateReady)
	return handle, nil
}

func (m *Manager) waitReady(ctx context.Context) error {
	m.log.Info("waiting for service to be ready", "url", m.opts.HealthURL)
	var lastErr error
	for attempt := 1; attempt <= m.opts.HealthAttempts; attempt++ {
		lastErr = m.opts.Probe(ctx)
		if lastErr == nil {
			m.log.Info("service is ready", "attempts", attempt)
			return nil
		}
		m.log.Debug("health probe failed", "attempt", attempt, "error", lastErr)
		if attempt == m.opts.HealthAttempts {
			break
		}
		if err := m.opts.Sleep(ctx, m.opts.HealthInterval); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrNotReady, m.opts.HealthAttempts, lastErr)
}

// Stop stops the container by name if a run was attempted and releases the
// name lock. A killed "docker run" may still leave a container behind.
// It never fails; problems are logged. Only the first call has any effect.
func (m *Manager) Stop(ctx context.Context) {
	m.stopOnce.Do(func() {
		if ctx == nil {
			ctx = context.Background()
		}
		m.mu.Lock()
		attempted := m.attempted
		lock := m.lock
		m.mu.Unlock()

		if attempted {
			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.StopTimeout)
			m.log.Info("stopping container")
			if err := m.opts.Runtime.Stop(stopCtx, m.opts.Name); err != nil {
				m.log.Error("failed to stop container", "error", err)
			} else {
				m.log.Info("container stopped")
			}
			cancel()
		}
		if lock != nil {
			if err := lock.Unlock(); err != nil {
				m.log.Warn("failed to release container lock", "error", err)
			}
		}
		m.setState(StateStopped)
	})
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
