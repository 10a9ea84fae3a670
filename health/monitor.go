package health

import (
	"sort"
	"sync"
	"time"
)

// Monitor holds the latest status per component. Writers push updates as
// infrastructure state changes; the transport reads the aggregate on
// every /health request.
type Monitor struct {
	mu       sync.RWMutex
	statuses map[string]Status
	onUpdate func(name string, healthy bool)
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithStatusCallback runs fn after every status update. The gateway uses
// this to mirror component health into a prometheus gauge without the
// package depending on one.
func WithStatusCallback(fn func(name string, healthy bool)) MonitorOption {
	return func(m *Monitor) { m.onUpdate = fn }
}

// NewMonitor builds an empty monitor.
func NewMonitor(opts ...MonitorOption) *Monitor {
	m := &Monitor{
		statuses: make(map[string]Status),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Update records the status for a named component. The status is stamped
// with the component name, and with the current time when it carries
// none. The status callback runs outside the lock, so it may touch the
// monitor.
func (m *Monitor) Update(name string, status Status) {
	m.mu.Lock()
	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}
	m.statuses[name] = status
	m.mu.Unlock()

	if m.onUpdate != nil {
		m.onUpdate(name, status.IsHealthy())
	}
}

// UpdateHealthy records a healthy status for the component.
func (m *Monitor) UpdateHealthy(name, message string) {
	m.Update(name, NewHealthy(name, message))
}

// UpdateUnhealthy records an unhealthy status for the component.
func (m *Monitor) UpdateUnhealthy(name, message string) {
	m.Update(name, NewUnhealthy(name, message))
}

// UpdateDegraded records a degraded status for the component.
func (m *Monitor) UpdateDegraded(name, message string) {
	m.Update(name, NewDegraded(name, message))
}

// Get returns the last status recorded for the component.
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status, exists := m.statuses[name]
	return status, exists
}

// AggregateHealth folds every tracked component into one system status.
// Components are ordered by name so the endpoint output is stable.
func (m *Monitor) AggregateHealth(systemName string) Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.statuses))
	for name := range m.statuses {
		names = append(names, name)
	}
	sort.Strings(names)

	subStatuses := make([]Status, 0, len(names))
	for _, name := range names {
		subStatuses = append(subStatuses, m.statuses[name])
	}
	return Aggregate(systemName, subStatuses)
}
