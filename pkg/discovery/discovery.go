// Package discovery defines how servers advertise themselves on the local
// network and how clients find them. The mechanism itself lives in
// implementations: memory for a single process, mdns for multicast DNS.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"dominicbreuker/msgsock/pkg/format"
)

// DefaultDomain is the multicast DNS domain.
const DefaultDomain = "local."

var (
	// ErrNotFound is returned when no service matches a resolve request.
	ErrNotFound = errors.New("service not found")
	// ErrConflict is returned when publishing a name that is already taken.
	ErrConflict = errors.New("service name already published")
)

// Service is one advertised endpoint. Instance and Type name it; Host and
// Port are filled in once it is resolved.
type Service struct {
	Instance string   // "lobby"
	Type     string   // "_msgsock._tcp"
	Domain   string   // "local."; empty means DefaultDomain
	Host     string   // address to dial
	Port     int
	Text     []string // TXT record, "key=value" pairs
}

// GetDomain returns Domain or DefaultDomain.
func (s Service) GetDomain() string {
	if s.Domain == "" {
		return DefaultDomain
	}
	if !strings.HasSuffix(s.Domain, ".") {
		return s.Domain + "."
	}
	return s.Domain
}

// FullName is the DNS-SD service instance name, e.g.
// "lobby._msgsock._tcp.local.".
func (s Service) FullName() string {
	return fmt.Sprintf("%s.%s.%s", s.Instance, s.Type, s.GetDomain())
}

// Addr returns "host:port" for dialing.
func (s Service) Addr() string {
	return format.Addr(s.Host, s.Port)
}

// Resolved reports whether Host and Port are known.
func (s Service) Resolved() bool {
	return s.Host != "" && s.Port > 0
}

func (s Service) String() string {
	if s.Resolved() {
		return fmt.Sprintf("%s (%s)", s.FullName(), s.Addr())
	}
	return s.FullName()
}

// Publisher advertises services.
type Publisher interface {
	Publish(ctx context.Context, svc Service) error
	Unpublish(svc Service) error
}

// Resolver looks up the address of a named service.
type Resolver interface {
	Resolve(ctx context.Context, svc Service) (Service, error)
}

// Browser lists the services of one type.
type Browser interface {
	Browse(ctx context.Context, serviceType string) ([]Service, error)
}

// PublishObserver learns the outcome of an asynchronous publish.
type PublishObserver interface {
	ServicePublished(svc Service)
	ServicePublishFailed(svc Service, err error)
}
