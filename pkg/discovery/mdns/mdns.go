// Package mdns publishes and finds services with multicast DNS
// (DNS-SD over mDNS), so peers on one LAN find each other without
// configuration.
package mdns

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"dominicbreuker/msgsock/pkg/discovery"
	"dominicbreuker/msgsock/pkg/log"

	"github.com/hashicorp/mdns"
)

// DefaultQueryTimeout is used when the context carries no deadline.
const DefaultQueryTimeout = time.Second

// Publisher answers mDNS queries for the services it published.
type Publisher struct {
	logger *log.Logger

	mu      sync.Mutex
	servers map[string]*mdns.Server
}

var _ discovery.Publisher = (*Publisher)(nil)

// NewPublisher creates a publisher. logger may be nil.
func NewPublisher(logger *log.Logger) *Publisher {
	return &Publisher{
		logger:  logger,
		servers: make(map[string]*mdns.Server),
	}
}

// Publish starts answering for svc. If svc.Host is an IP address, only that
// address is advertised; otherwise the addresses of this host are.
func (p *Publisher) Publish(ctx context.Context, svc discovery.Service) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := svc.FullName()
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.servers[key]; exists {
		return fmt.Errorf("publish %s: %w", key, discovery.ErrConflict)
	}

	hostname, err := os.Hostname()
	if err != nil {
		return fmt.Errorf("os.Hostname(): %w", err)
	}
	hostFQDN := strings.TrimSuffix(hostname, ".") + "." + strings.TrimPrefix(svc.GetDomain(), ".")

	var ips []net.IP
	if ip := net.ParseIP(svc.Host); ip != nil && !ip.IsUnspecified() {
		ips = []net.IP{ip}
	} else {
		ips = localIPs()
	}

	zone, err := mdns.NewMDNSService(svc.Instance, svc.Type, svc.GetDomain(), hostFQDN, svc.Port, ips, svc.Text)
	if err != nil {
		return fmt.Errorf("mdns.NewMDNSService(%s): %w", key, err)
	}

	srv, err := mdns.NewServer(&mdns.Config{Zone: zone})
	if err != nil {
		return fmt.Errorf("mdns.NewServer(%s): %w", key, err)
	}

	p.servers[key] = srv
	p.logger.VerboseMsg("mdns: published %s on port %d", key, svc.Port)
	return nil
}

// Unpublish stops answering for svc.
func (p *Publisher) Unpublish(svc discovery.Service) error {
	key := svc.FullName()

	p.mu.Lock()
	srv, ok := p.servers[key]
	delete(p.servers, key)
	p.mu.Unlock()

	if !ok {
		return nil
	}
	if err := srv.Shutdown(); err != nil {
		return fmt.Errorf("mdns.Server.Shutdown(%s): %w", key, err)
	}
	p.logger.VerboseMsg("mdns: withdrew %s", key)
	return nil
}

// Close withdraws every published service.
func (p *Publisher) Close() error {
	p.mu.Lock()
	servers := p.servers
	p.servers = make(map[string]*mdns.Server)
	p.mu.Unlock()

	var firstErr error
	for _, srv := range servers {
		if err := srv.Shutdown(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// localIPs returns the non-loopback unicast addresses of this host. A nil
// result lets mdns look them up from the hostname itself.
func localIPs() []net.IP {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil
	}
	var ips []net.IP
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() || ipNet.IP.IsLinkLocalUnicast() {
			continue
		}
		ips = append(ips, ipNet.IP)
	}
	return ips
}

// Client resolves and browses services with mDNS queries.
type Client struct {
	logger *log.Logger
	lookup func(*mdns.QueryParam) error
}

var (
	_ discovery.Resolver = (*Client)(nil)
	_ discovery.Browser  = (*Client)(nil)
)

// NewClient creates a client. logger may be nil.
func NewClient(logger *log.Logger) *Client {
	return &Client{logger: logger, lookup: mdns.Query}
}

// Resolve queries for svc.Type and returns the entry for svc.Instance.
func (c *Client) Resolve(ctx context.Context, svc discovery.Service) (discovery.Service, error) {
	found, err := c.query(ctx, svc.Type, svc.GetDomain())
	if err != nil {
		return discovery.Service{}, err
	}
	for _, s := range found {
		if strings.EqualFold(s.Instance, svc.Instance) {
			return s, nil
		}
	}
	return discovery.Service{}, fmt.Errorf("resolve %s: %w", svc.FullName(), discovery.ErrNotFound)
}

// Browse lists every instance of serviceType that answered in time.
func (c *Client) Browse(ctx context.Context, serviceType string) ([]discovery.Service, error) {
	return c.query(ctx, serviceType, discovery.DefaultDomain)
}

func (c *Client) query(ctx context.Context, serviceType, domain string) ([]discovery.Service, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	timeout := DefaultQueryTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	entries := make(chan *mdns.ServiceEntry, 16)
	var found []*mdns.ServiceEntry
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for e := range entries {
			found = append(found, e)
		}
	}()

	params := mdns.DefaultParams(serviceType)
	params.Domain = strings.Trim(domain, ".")
	params.Timeout = timeout
	params.Entries = entries

	// mdns.Query only stops at its timeout; a canceled ctx abandons it
	queryErr := make(chan error, 1)
	go func() {
		err := c.lookup(params)
		close(entries)
		<-collected
		queryErr <- err
	}()

	var err error
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err = <-queryErr:
	}
	if err != nil {
		return nil, fmt.Errorf("mdns.Query(%s): %w", serviceType, err)
	}

	c.logger.VerboseMsg("mdns: %d answers for %s", len(found), serviceType)
	return toServices(found, serviceType, domain), nil
}

// toServices converts answers to services, dropping duplicates and
// answers for other types.
func toServices(entries []*mdns.ServiceEntry, serviceType, domain string) []discovery.Service {
	suffix := "." + serviceType + "." + strings.TrimPrefix(domain, ".")
	if !strings.HasSuffix(suffix, ".") {
		suffix += "."
	}

	seen := make(map[string]bool)
	var out []discovery.Service
	for _, e := range entries {
		if e == nil || !strings.HasSuffix(e.Name, suffix) || seen[e.Name] {
			continue
		}
		seen[e.Name] = true

		host := strings.TrimSuffix(e.Host, ".")
		switch {
		case e.AddrV4 != nil:
			host = e.AddrV4.String()
		case e.AddrV6 != nil:
			host = e.AddrV6.String()
		}

		out = append(out, discovery.Service{
			Instance: unescape(strings.TrimSuffix(e.Name, suffix)),
			Type:     serviceType,
			Domain:   domain,
			Host:     host,
			Port:     e.Port,
			Text:     e.InfoFields,
		})
	}
	return out
}

// unescape undoes the DNS label escaping of spaces and dots in instance
// names.
func unescape(s string) string {
	return strings.NewReplacer(`\ `, " ", `\.`, ".").Replace(s)
}
