// Package service defines the backend handler contract and the registry
// the gateway dispatches through.
//
// # Overview
//
// A Handler is one routable backend. It may block, fail, or panic; the
// gateway bounds and absorbs all three. The package ships three
// implementations:
//
//   - Mock users and products backends with simulated latency and
//     failures, useful for demos and load tests
//   - A NATS request/reply handler that forwards the request to a
//     backend subject and decodes its reply
//
// A Registry pairs each named service with its own circuit breaker.
// Registries are immutable after construction; build one from
// configuration with FromConfig.
//
// # Quick Start
//
//	reg, err := service.FromConfig(cfg.Gateway, cfg.Services, natsClient, logger)
//	if err != nil {
//		return err
//	}
//	if r, ok := reg.Resolve("users"); ok {
//		payload, status, err := r.Handler.Invoke(ctx, headers, body)
//		...
//	}
package service
