package service

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sania-talib/api-gateway-project/breaker"
	"github.com/sania-talib/api-gateway-project/config"
	"github.com/sania-talib/api-gateway-project/errors"
)

// Registration pairs one named service with its handler and circuit
// breaker. The breaker belongs exclusively to this service.
type Registration struct {
	Name    string
	Handler Handler
	Breaker *breaker.Breaker
}

// Registry resolves service names to registrations. It is immutable
// after construction and safe for concurrent use.
type Registry struct {
	services map[string]*Registration
	names    []string
}

// NewRegistry builds a registry from explicit registrations. Later
// duplicates of a name win.
func NewRegistry(regs ...*Registration) *Registry {
	r := &Registry{services: make(map[string]*Registration, len(regs))}
	for _, reg := range regs {
		if _, exists := r.services[reg.Name]; !exists {
			r.names = append(r.names, reg.Name)
		}
		r.services[reg.Name] = reg
	}
	return r
}

// FromConfig constructs one handler and one breaker per configured
// service. nc may be nil when no service uses the nats type, and
// httpClient may be nil when no service uses the http type.
func FromConfig(gw config.GatewayConfig, services []config.ServiceConfig, nc Requester, httpClient *http.Client, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}

	regs := make([]*Registration, 0, len(services))
	for _, svc := range services {
		var handler Handler
		switch svc.Type {
		case config.ServiceTypeMockUsers:
			handler = NewMockUsers(WithFailureRate(svc.FailureRate), WithLogger(logger))
		case config.ServiceTypeMockProducts:
			handler = NewMockProducts(WithFailureRate(svc.FailureRate), WithLogger(logger))
		case config.ServiceTypeNATS:
			if nc == nil {
				return nil, errors.WrapInvalid(
					fmt.Errorf("service %s requires a NATS connection", svc.Name),
					"service.Registry", "FromConfig", "construct handler")
			}
			handler = NewNATS(nc, svc.Subject, time.Duration(svc.Timeout))
		case config.ServiceTypeHTTP:
			proxy, err := NewHTTPProxy(svc.URL, httpClient, time.Duration(svc.Timeout))
			if err != nil {
				return nil, err
			}
			handler = proxy
		default:
			return nil, errors.WrapInvalid(
				fmt.Errorf("unknown service type %q for %s", svc.Type, svc.Name),
				"service.Registry", "FromConfig", "construct handler")
		}

		regs = append(regs, &Registration{
			Name:    svc.Name,
			Handler: handler,
			Breaker: breaker.New(gw.FailureThreshold, time.Duration(gw.ResetTimeout)),
		})

		logger.Debug("registered service",
			"service", svc.Name,
			"type", svc.Type)
	}

	return NewRegistry(regs...), nil
}

// Resolve returns the registration for name.
func (r *Registry) Resolve(name string) (*Registration, bool) {
	reg, ok := r.services[name]
	return reg, ok
}

// Names returns the registered service names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Len returns the number of registered services.
func (r *Registry) Len() int {
	return len(r.services)
}
