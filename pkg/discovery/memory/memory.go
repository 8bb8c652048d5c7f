// Package memory is an in-process service registry. Servers and clients
// sharing one Registry find each other without touching the network.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"dominicbreuker/msgsock/pkg/discovery"
)

// Registry implements discovery.Publisher, discovery.Resolver and
// discovery.Browser.
type Registry struct {
	mu         sync.Mutex
	services   map[string]discovery.Service
	publishErr error
}

var (
	_ discovery.Publisher = (*Registry)(nil)
	_ discovery.Resolver  = (*Registry)(nil)
	_ discovery.Browser   = (*Registry)(nil)
)

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{services: make(map[string]discovery.Service)}
}

// FailPublish makes every following Publish return err, until called with
// nil.
func (r *Registry) FailPublish(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publishErr = err
}

// Publish registers svc. Host defaults to the loopback address.
func (r *Registry) Publish(ctx context.Context, svc discovery.Service) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if svc.Instance == "" || svc.Type == "" {
		return fmt.Errorf("publish %q: instance and type are required", svc.FullName())
	}
	if svc.Port <= 0 {
		return fmt.Errorf("publish %s: port %d", svc.FullName(), svc.Port)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.publishErr != nil {
		return r.publishErr
	}

	key := svc.FullName()
	if _, exists := r.services[key]; exists {
		return fmt.Errorf("publish %s: %w", key, discovery.ErrConflict)
	}
	if svc.Host == "" {
		svc.Host = "127.0.0.1"
	}
	svc.Domain = svc.GetDomain()
	r.services[key] = svc
	return nil
}

// Unpublish removes svc. Removing an unknown service is not an error.
func (r *Registry) Unpublish(svc discovery.Service) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.services, svc.FullName())
	return nil
}

// Resolve returns the registered record for svc's instance and type.
func (r *Registry) Resolve(ctx context.Context, svc discovery.Service) (discovery.Service, error) {
	if err := ctx.Err(); err != nil {
		return discovery.Service{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	found, ok := r.services[svc.FullName()]
	if !ok {
		return discovery.Service{}, fmt.Errorf("resolve %s: %w", svc.FullName(), discovery.ErrNotFound)
	}
	return found, nil
}

// Browse lists all services of serviceType ordered by instance name.
func (r *Registry) Browse(ctx context.Context, serviceType string) ([]discovery.Service, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	var out []discovery.Service
	for _, svc := range r.services {
		if svc.Type == serviceType {
			out = append(out, svc)
		}
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Instance < out[j].Instance })
	return out, nil
}
