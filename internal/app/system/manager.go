package system

import (
	"context"
	"fmt"

	core "github.com/tenantsync/engine/internal/app/core/service"
	"github.com/tenantsync/engine/pkg/logger"
)

// NoopService satisfies Service for components that have not been wired in
// yet, or that do not require lifecycle management.
type NoopService struct {
	ServiceName string
}

func (n NoopService) Name() string                    { return n.ServiceName }
func (n NoopService) Start(ctx context.Context) error { return nil }
func (n NoopService) Stop(ctx context.Context) error  { return nil }

// Manager starts and stops a fixed set of services in registration order,
// and tears them down in reverse order. Start fails fast on the first error;
// Stop collects and reports every error instead of stopping early, since a
// shutdown must attempt to release every resource regardless of failures
// upstream.
type Manager struct {
	log      *logger.Logger
	hooks    core.ObservationHooks
	services []Service
	started  []Service
}

func NewManager(log *logger.Logger) *Manager {
	return &Manager{log: log, hooks: core.NoopObservationHooks}
}

// SetObservationHooks installs callbacks fired around every service's
// Start/Stop, giving callers a single place to hang metrics or alerting on
// lifecycle transitions without the manager depending on a specific backend.
func (m *Manager) SetObservationHooks(hooks core.ObservationHooks) {
	m.hooks = hooks
}

// Register adds a service to the managed set. Order is significant: services
// start in the order registered and stop in the reverse order.
func (m *Manager) Register(svc Service) {
	if svc == nil {
		return
	}
	m.services = append(m.services, svc)
}

func (m *Manager) Services() []Service {
	return append([]Service(nil), m.services...)
}

func (m *Manager) Start(ctx context.Context) error {
	for _, svc := range m.services {
		if m.log != nil {
			m.log.Infof("starting service %s", svc.Name())
		}
		done := core.StartObservation(ctx, m.hooks, map[string]string{"service": svc.Name(), "phase": "start"})
		err := svc.Start(ctx)
		done(err)
		if err != nil {
			return fmt.Errorf("start %s: %w", svc.Name(), err)
		}
		m.started = append(m.started, svc)
	}
	return nil
}

func (m *Manager) Stop(ctx context.Context) error {
	var errs []error
	for i := len(m.started) - 1; i >= 0; i-- {
		svc := m.started[i]
		if m.log != nil {
			m.log.Infof("stopping service %s", svc.Name())
		}
		done := core.StartObservation(ctx, m.hooks, map[string]string{"service": svc.Name(), "phase": "stop"})
		err := svc.Stop(ctx)
		done(err)
		if err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", svc.Name(), err))
		}
	}
	m.started = nil
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("shutdown errors: %v", errs)
}
