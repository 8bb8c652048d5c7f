package connection

import (
	"errors"
	"net"
	"testing"

	"dominicbreuker/msgsock/pkg/discovery"
)

func TestOrigin_String(t *testing.T) {
	t.Parallel()

	local, remote := net.Pipe()
	defer local.Close()
	defer remote.Close()

	tests := []struct {
		name   string
		origin Origin
		want   string
	}{
		{"host/port", FromHostPort("example.com", 8080), "example.com:8080"},
		{"ipv6", FromHostPort("::1", 8080), "[::1]:8080"},
		{"socket", FromSocket(local), "socket pipe"},
		{"service", FromService(discovery.Service{Instance: "lobby", Type: "_msgsock._tcp"}), "service lobby._msgsock._tcp.local."},
		{"unknown", Origin{}, "OriginKind(0)"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := tc.origin.String(); got != tc.want {
				t.Errorf("String() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestOrigin_Validate(t *testing.T) {
	t.Parallel()

	local, remote := net.Pipe()
	defer local.Close()
	defer remote.Close()

	valid := []Origin{
		FromHostPort("localhost", 1),
		// range checks happen on Connect so they fail through the observer
		FromHostPort("", 0),
		FromSocket(local),
		FromService(discovery.Service{Instance: "lobby", Type: "_msgsock._tcp"}),
	}
	for _, o := range valid {
		if err := o.validate(); err != nil {
			t.Errorf("validate(%v) error = %v", o.Kind, err)
		}
	}

	if err := FromSocket(nil).validate(); !errors.Is(err, ErrInvalidOrigin) {
		t.Errorf("validate(nil socket) error = %v, want ErrInvalidOrigin", err)
	}
}

func TestOriginKind_String(t *testing.T) {
	t.Parallel()

	tests := map[OriginKind]string{
		OriginHostPort: "host/port",
		OriginSocket:   "socket",
		OriginService:  "service",
		OriginKind(7):  "OriginKind(7)",
	}
	for k, want := range tests {
		if got := k.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}
