// Package service implements the ServiceManager: dependency-ordered
// startup with readiness polling, health checks, and reverse-order
// shutdown. It is the scaffolding the six pipeline stages run under.
package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/lokutor-ai/dialogue-orchestrator/pkg/task"
)

// Service is anything the manager can start, poll for readiness, and
// stop. Run should block until ctx is canceled or the service exits on
// its own.
type Service interface {
	Run(ctx context.Context) error
}

// ReadinessChecker is implemented by services that become ready some
// time after Run starts (most of them: a monitor goroutine warming up, a
// provider doing a connectivity probe). A service that is ready the
// instant Run is called does not need to implement this.
type ReadinessChecker interface {
	IsReady() bool
}

// HealthChecker is implemented by services the manager should probe
// once, right after they report ready, before considering startup
// successful.
type HealthChecker interface {
	Healthy() bool
}

// Definition configures how one named service is started, in the
// manager's own declarative style rather than imperative wiring code.
type Definition struct {
	Name string

	// Factory builds the service. Called once, at Start time, so
	// construction can depend on other already-started services.
	Factory func() (Service, error)

	// Dependencies lists service names that must already be running and
	// ready before this one is started.
	Dependencies []string

	// Required aborts the whole Start sequence if this service fails to
	// come up. A non-required service that fails to start is logged and
	// skipped.
	Required bool

	// StartupTimeout bounds how long Start waits for IsReady to return
	// true. Zero means the manager's DefaultStartupTimeout.
	StartupTimeout time.Duration

	// HealthCheck runs once after the service reports ready.
	HealthCheck func(Service) bool
}

// DefaultStartupTimeout is used for any Definition that leaves
// StartupTimeout unset.
const DefaultStartupTimeout = 60 * time.Second

// StopWait bounds how long Stop waits for an individual service's Run to
// return after its context is canceled.
const StopWait = 5 * time.Second

type runningService struct {
	def     Definition
	svc     Service
	cancel  context.CancelFunc
	done    chan struct{}
	runErr  error
	startup time.Duration
}

// Manager starts services in dependency order, tracks their readiness
// and startup errors, and stops them in reverse order.
type Manager struct {
	order         []string
	running       map[string]*runningService
	startupErrors map[string]error
	shutdownHooks []func()
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{
		running:       make(map[string]*runningService),
		startupErrors: make(map[string]error),
	}
}

// AddShutdownHook registers a function run once, before any service is
// stopped, when Stop is called.
func (m *Manager) AddShutdownHook(hook func()) {
	m.shutdownHooks = append(m.shutdownHooks, hook)
}

// Start starts def after checking that its dependencies are already
// running and ready (failing at once if not), then polling for its own readiness and running its health
// check. It returns an error wrapping task.ErrStartup if a required
// service fails; a non-required failure is logged and returns nil.
func (m *Manager) Start(ctx context.Context, def Definition) error {
	start := time.Now()
	log.Printf("service: starting %s", def.Name)

	if err := m.checkDependencies(def.Dependencies); err != nil {
		return m.fail(def, fmt.Errorf("dependency check: %w", err))
	}

	svc, err := def.Factory()
	if err != nil {
		return m.fail(def, fmt.Errorf("factory: %w", err))
	}

	svcCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	rs := &runningService{def: def, svc: svc, cancel: cancel, done: done}

	go func() {
		defer close(done)
		rs.runErr = svc.Run(svcCtx)
	}()

	timeout := def.StartupTimeout
	if timeout <= 0 {
		timeout = DefaultStartupTimeout
	}
	if !waitReady(svc, done, timeout) {
		cancel()
		return m.fail(def, fmt.Errorf("%s: timed out after %s", def.Name, timeout))
	}

	if def.HealthCheck != nil && !def.HealthCheck(svc) {
		cancel()
		return m.fail(def, fmt.Errorf("%s: health check failed", def.Name))
	}
	if hc, ok := svc.(HealthChecker); ok && !hc.Healthy() {
		cancel()
		return m.fail(def, fmt.Errorf("%s: reported unhealthy", def.Name))
	}

	rs.startup = time.Since(start)
	m.running[def.Name] = rs
	m.order = append(m.order, def.Name)

	log.Printf("service: %s started in %s", def.Name, rs.startup)
	return nil
}

func (m *Manager) fail(def Definition, err error) error {
	log.Printf("service: %s failed to start: %v", def.Name, err)
	m.startupErrors[def.Name] = err
	if def.Required {
		return fmt.Errorf("%w: %s: %v", task.ErrStartup, def.Name, err)
	}
	return nil
}

func (m *Manager) checkDependencies(deps []string) error {
	for _, dep := range deps {
		rs, ok := m.running[dep]
		if !ok {
			return fmt.Errorf("dependency %q is not running", dep)
		}
		if rc, ok := rs.svc.(ReadinessChecker); ok && !rc.IsReady() {
			return fmt.Errorf("dependency %q is not ready", dep)
		}
	}
	return nil
}

func waitReady(svc Service, done <-chan struct{}, timeout time.Duration) bool {
	rc, ok := svc.(ReadinessChecker)
	if !ok {
		// No readiness protocol: the service is considered ready the
		// instant it is scheduled, unless it has already exited.
		select {
		case <-done:
			return false
		default:
			return true
		}
	}

	deadline := time.After(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if rc.IsReady() {
			return true
		}
		select {
		case <-done:
			return false
		case <-deadline:
			return false
		case <-ticker.C:
		}
	}
}

// Stop runs shutdown hooks, then stops every running service in reverse
// start order, waiting up to StopWait for each to exit.
func (m *Manager) Stop() {
	log.Print("service: stopping all services")

	for _, hook := range m.shutdownHooks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("service: shutdown hook panicked: %v", r)
				}
			}()
			hook()
		}()
	}

	for i := len(m.order) - 1; i >= 0; i-- {
		m.stopOne(m.order[i])
	}

	m.running = make(map[string]*runningService)
	m.order = nil
}

func (m *Manager) stopOne(name string) {
	rs, ok := m.running[name]
	if !ok {
		return
	}

	log.Printf("service: stopping %s", name)
	rs.cancel()

	select {
	case <-rs.done:
		log.Printf("service: %s stopped", name)
	case <-time.After(StopWait):
		log.Printf("service: %s did not stop within %s", name, StopWait)
	}
}

// Status summarizes one service for observability endpoints.
type Status struct {
	Name      string
	Running   bool
	Ready     bool
	StartedIn time.Duration
}

// Status returns a snapshot of every service the manager has started.
func (m *Manager) Status() []Status {
	statuses := make([]Status, 0, len(m.order))
	for _, name := range m.order {
		rs := m.running[name]
		running := true
		select {
		case <-rs.done:
			running = false
		default:
		}
		ready := true
		if rc, ok := rs.svc.(ReadinessChecker); ok {
			ready = rc.IsReady()
		}
		statuses = append(statuses, Status{Name: name, Running: running, Ready: ready, StartedIn: rs.startup})
	}
	return statuses
}

// Get returns the running service registered under name, if any.
func (m *Manager) Get(name string) (Service, bool) {
	rs, ok := m.running[name]
	if !ok {
		return nil, false
	}
	return rs.svc, true
}

// StartupErrors returns the errors recorded for services that failed to
// start (both required and non-required).
func (m *Manager) StartupErrors() map[string]error {
	out := make(map[string]error, len(m.startupErrors))
	for k, v := range m.startupErrors {
		out[k] = v
	}
	return out
}
