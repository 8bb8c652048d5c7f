// Package config holds the settings of servers and client connections,
// their validation, and the injectable network dependencies used by tests.
package config

import (
	"fmt"
	"strings"
	"time"

	"dominicbreuker/msgsock/pkg/format"
	"dominicbreuker/msgsock/pkg/log"
	"dominicbreuker/msgsock/pkg/packet"
)

// Protocol selects the transport carrying the byte stream.
type Protocol int

const (
	ProtoTCP Protocol = iota + 1
	ProtoWS
	ProtoUDP
)

// String returns the scheme-like name of the protocol.
func (p Protocol) String() string {
	switch p {
	case ProtoTCP:
		return "tcp"
	case ProtoWS:
		return "ws"
	case ProtoUDP:
		return "udp"
	default:
		return ""
	}
}

// ParseProtocol is the inverse of Protocol.String.
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(s) {
	case "", "tcp":
		return ProtoTCP, nil
	case "ws":
		return ProtoWS, nil
	case "udp":
		return ProtoUDP, nil
	default:
		return 0, fmt.Errorf("unknown protocol %q (supports tcp|ws|udp)", s)
	}
}

// ListenMode selects how a TCP server creates its listening socket.
type ListenMode int

const (
	// ModeNative uses the Go runtime's listener (net.ListenTCP).
	ModeNative ListenMode = iota
	// ModePOSIX sets the socket up with raw socket/bind/listen calls.
	ModePOSIX
)

func (m ListenMode) String() string {
	switch m {
	case ModeNative:
		return "native"
	case ModePOSIX:
		return "posix"
	default:
		return ""
	}
}

// ParseListenMode is the inverse of ListenMode.String.
func ParseListenMode(s string) (ListenMode, error) {
	switch strings.ToLower(s) {
	case "", "native":
		return ModeNative, nil
	case "posix":
		return ModePOSIX, nil
	default:
		return 0, fmt.Errorf("unknown listen mode %q (supports native|posix)", s)
	}
}

// DefaultServiceType is advertised when no service type is configured.
const DefaultServiceType = "_msgsock._tcp"

// DefaultTimeout bounds dialing and service resolution.
const DefaultTimeout = 10 * time.Second

// Shared contains the settings common to servers and clients.
type Shared struct {
	Protocol     Protocol
	Host         string
	Port         int
	Codec        string
	MaxFrameSize int
	Timeout      time.Duration
	LogFile      string // raw traffic is appended here if set
	Verbose      bool

	Logger *log.Logger
	Deps   *Dependencies
}

// Validate checks the shared settings. A zero port is accepted here since
// servers may bind an ephemeral port; clients check it themselves.
func (c *Shared) Validate() []error {
	var errors []error

	if c.Protocol != 0 && c.Protocol.String() == "" {
		errors = append(errors, fmt.Errorf("'--protocol' must be one of tcp|ws|udp"))
	}

	if err := format.ValidPort(c.Port, true); err != nil {
		errors = append(errors, fmt.Errorf("'--port': %s", err))
	}

	if _, err := packet.CodecByName(c.Codec); err != nil {
		errors = append(errors, fmt.Errorf("'--codec': %s", err))
	}

	if c.MaxFrameSize < 0 {
		errors = append(errors, fmt.Errorf("max frame size must not be negative"))
	}

	if c.Timeout < 0 {
		errors = append(errors, fmt.Errorf("'--timeout' must not be negative"))
	}

	return errors
}

// GetProtocol returns the configured protocol, defaulting to TCP.
func (c *Shared) GetProtocol() Protocol {
	if c.Protocol == 0 {
		return ProtoTCP
	}
	return c.Protocol
}

// GetTimeout returns the configured timeout or DefaultTimeout.
func (c *Shared) GetTimeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

// GetMaxFrameSize returns the configured limit or packet.DefaultMaxFrameSize.
func (c *Shared) GetMaxFrameSize() int {
	if c.MaxFrameSize <= 0 {
		return packet.DefaultMaxFrameSize
	}
	return c.MaxFrameSize
}

// Server configures a listening server.
type Server struct {
	Shared

	Mode        ListenMode
	Publish     bool
	ServiceName string
	ServiceType string
	Multiplex   bool
	MaxConns    int // 0 means unlimited
}

// Validate checks the server settings.
func (c *Server) Validate() []error {
	errors := c.Shared.Validate()

	if c.Mode.String() == "" {
		errors = append(errors, fmt.Errorf("'--mode' must be native or posix"))
	}

	if c.Mode == ModePOSIX && c.GetProtocol() != ProtoTCP {
		errors = append(errors, fmt.Errorf("'--mode posix' requires protocol tcp, got %s", c.GetProtocol()))
	}

	if c.MaxConns < 0 {
		errors = append(errors, fmt.Errorf("'--max-conns' must not be negative"))
	}

	if c.ServiceType != "" {
		if err := validateServiceType(c.ServiceType); err != nil {
			errors = append(errors, err)
		}
	}

	return errors
}

// GetServiceType returns the configured type or DefaultServiceType.
func (c *Server) GetServiceType() string {
	if c.ServiceType == "" {
		return DefaultServiceType
	}
	return c.ServiceType
}

// Client configures an outgoing connection, either to Host:Port or to the
// discovered service named Service.
type Client struct {
	Shared

	Service     string
	ServiceType string
	Multiplex   bool // open the connection as a stream of a fresh session
}

// Validate checks the client settings.
func (c *Client) Validate() []error {
	errors := c.Shared.Validate()

	if c.Service == "" {
		if c.Host == "" {
			errors = append(errors, fmt.Errorf("a host or '--service' is required"))
		}
		if c.Port == 0 {
			errors = append(errors, fmt.Errorf("'--port' must be in [1, 65535] without '--service'"))
		}
	}

	if c.ServiceType != "" {
		if err := validateServiceType(c.ServiceType); err != nil {
			errors = append(errors, err)
		}
	}

	return errors
}

// GetServiceType returns the configured type or DefaultServiceType.
func (c *Client) GetServiceType() string {
	if c.ServiceType == "" {
		return DefaultServiceType
	}
	return c.ServiceType
}

// validateServiceType accepts DNS-SD types like "_name._tcp".
func validateServiceType(t string) error {
	parts := strings.Split(t, ".")
	if len(parts) != 2 || !strings.HasPrefix(parts[0], "_") || len(parts[0]) < 2 {
		return fmt.Errorf("service type %q must look like _name._tcp", t)
	}
	if parts[1] != "_tcp" && parts[1] != "_udp" {
		return fmt.Errorf("service type %q must end in ._tcp or ._udp", t)
	}
	return nil
}
