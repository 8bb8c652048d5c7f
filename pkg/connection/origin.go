package connection

import (
	"errors"
	"fmt"
	"net"
	"os"

	"dominicbreuker/msgsock/pkg/discovery"
	"dominicbreuker/msgsock/pkg/format"
)

// ErrInvalidOrigin is returned by New for an origin that does not name
// exactly one way of reaching the peer.
var ErrInvalidOrigin = errors.New("invalid connection origin")

// OriginKind tells how a connection reaches its peer.
type OriginKind int

const (
	// OriginHostPort dials Host:Port on Connect.
	OriginHostPort OriginKind = iota + 1
	// OriginSocket wraps a socket that is already connected.
	OriginSocket
	// OriginService resolves Service on Connect, then dials it.
	OriginService
)

func (k OriginKind) String() string {
	switch k {
	case OriginHostPort:
		return "host/port"
	case OriginSocket:
		return "socket"
	case OriginService:
		return "service"
	default:
		return fmt.Sprintf("OriginKind(%d)", int(k))
	}
}

// Origin is where a connection comes from. Only the fields belonging to
// Kind are set; use the From* constructors.
type Origin struct {
	Kind    OriginKind
	Host    string
	Port    int
	Conn    net.Conn
	Service discovery.Service
}

// FromHostPort describes a peer to dial. No I/O happens until Connect.
func FromHostPort(host string, port int) Origin {
	return Origin{Kind: OriginHostPort, Host: host, Port: port}
}

// FromSocket wraps a connected socket, typically one returned by Accept.
func FromSocket(conn net.Conn) Origin {
	return Origin{Kind: OriginSocket, Conn: conn}
}

// FromFD adopts a connected socket file descriptor, as handed out by
// accept(2). FromFD takes ownership of fd: it is closed once the
// connection holds its own duplicate, or on error.
func FromFD(fd uintptr) (Origin, error) {
	f := os.NewFile(fd, fmt.Sprintf("fd:%d", fd))
	if f == nil {
		return Origin{}, fmt.Errorf("os.NewFile(%d): %w", fd, ErrInvalidOrigin)
	}
	defer f.Close()

	conn, err := net.FileConn(f)
	if err != nil {
		return Origin{}, fmt.Errorf("net.FileConn(%d): %w", fd, err)
	}

	return FromSocket(conn), nil
}

// FromService describes a discovered service, resolved on Connect.
func FromService(svc discovery.Service) Origin {
	return Origin{Kind: OriginService, Service: svc}
}

func (o Origin) validate() error {
	hasHostPort := o.Host != "" || o.Port != 0
	hasSocket := o.Conn != nil
	hasService := o.Service.Instance != "" || o.Service.Type != ""

	switch o.Kind {
	case OriginHostPort:
		if hasSocket || hasService {
			return fmt.Errorf("%s origin with extra fields: %w", o.Kind, ErrInvalidOrigin)
		}
	case OriginSocket:
		if !hasSocket || hasHostPort || hasService {
			return fmt.Errorf("%s origin needs exactly a socket: %w", o.Kind, ErrInvalidOrigin)
		}
	case OriginService:
		if o.Service.Instance == "" || o.Service.Type == "" || hasSocket || hasHostPort {
			return fmt.Errorf("%s origin needs exactly a named service: %w", o.Kind, ErrInvalidOrigin)
		}
	default:
		return fmt.Errorf("%s: %w", o.Kind, ErrInvalidOrigin)
	}
	return nil
}

func (o Origin) String() string {
	switch o.Kind {
	case OriginHostPort:
		return format.Addr(o.Host, o.Port)
	case OriginSocket:
		return "socket " + o.Conn.RemoteAddr().String()
	case OriginService:
		return "service " + o.Service.FullName()
	default:
		return o.Kind.String()
	}
}
