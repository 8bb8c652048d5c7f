package format

import (
	"testing"
)

func TestAddr(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		host string
		port int
		want string
	}{
		{"IPv4 loopback", "127.0.0.1", 4242, "127.0.0.1:4242"},
		{"hostname", "printer.local", 80, "printer.local:80"},
		{"IPv6 address", "::1", 8080, "[::1]:8080"},
		{"IPv6 already bracketed", "[fe80::1]", 9000, "[fe80::1]:9000"},
		{"empty host", "", 0, ":0"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Addr(tc.host, tc.port)
			if got != tc.want {
				t.Errorf("Addr(%q, %d) = %q, want %q", tc.host, tc.port, got, tc.want)
			}
		})
	}
}

func TestSplitAddr(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		addr     string
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{"IPv4", "127.0.0.1:4242", "127.0.0.1", 4242, false},
		{"empty host", ":8080", "", 8080, false},
		{"ephemeral", "localhost:0", "localhost", 0, false},
		{"IPv6", "[::1]:53", "::1", 53, false},
		{"missing port", "localhost", "", 0, true},
		{"bad port", "localhost:abc", "", 0, true},
		{"port too large", "localhost:70000", "", 0, true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			host, port, err := SplitAddr(tc.addr)
			if (err != nil) != tc.wantErr {
				t.Fatalf("SplitAddr(%q) error = %v, wantErr %v", tc.addr, err, tc.wantErr)
			}
			if tc.wantErr {
				return
			}
			if host != tc.wantHost || port != tc.wantPort {
				t.Errorf("SplitAddr(%q) = (%q, %d), want (%q, %d)", tc.addr, host, port, tc.wantHost, tc.wantPort)
			}
		})
	}
}

func TestValidPort(t *testing.T) {
	t.Parallel()

	if err := ValidPort(0, false); err == nil {
		t.Error("ValidPort(0, false) = nil, want error")
	}
	if err := ValidPort(0, true); err != nil {
		t.Errorf("ValidPort(0, true) = %v, want nil", err)
	}
	if err := ValidPort(65536, true); err == nil {
		t.Error("ValidPort(65536, true) = nil, want error")
	}
}
