package shared

import (
	"testing"

	"dominicbreuker/msgsock/pkg/config"
)

func TestParseTransport(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		protocol config.Protocol
		host     string
		port     int
		err      bool
	}{
		{input: "tcp://localhost:123", protocol: config.ProtoTCP, host: "localhost", port: 123},
		{input: "ws://localhost:123", protocol: config.ProtoWS, host: "localhost", port: 123},
		{input: "udp://localhost:123", protocol: config.ProtoUDP, host: "localhost", port: 123},
		{input: "localhost:123", protocol: config.ProtoTCP, host: "localhost", port: 123}, // protocol defaults to tcp
		{input: "tcp://:123", protocol: config.ProtoTCP, host: "", port: 123},
		{input: "tcp://*:123", protocol: config.ProtoTCP, host: "", port: 123},
		{input: ":0", protocol: config.ProtoTCP, host: "", port: 0},
		{input: "udp://192.168.1.100:12345", protocol: config.ProtoUDP, host: "192.168.1.100", port: 12345},
		{input: "tcp://[::1]:8080", protocol: config.ProtoTCP, host: "::1", port: 8080},

		// error cases, bad protocols
		{input: "foobar://localhost:123", err: true},
		{input: "wss://localhost:123", err: true},

		// error cases, bad ports
		{input: "tcp://localhost:-1", err: true},
		{input: "tcp://localhost:65536", err: true},
		{input: "tcp://localhost:999999999999999999", err: true},
		{input: "tcp://localhost:eighty", err: true},

		// error cases, bad format
		{input: "tcp://localhost:123:foobar", err: true},
		{input: "://localhost:123", err: true},
		{input: "tcp://localhost:", err: true},
		{input: "tcp://::1:8080", err: true},

		// error cases, stupid strings
		{input: "foobar", err: true},
		{input: "", err: true},
	}

	for _, tt := range tests {
		protocol, host, port, err := ParseTransport(tt.input)
		if (err != nil) != tt.err {
			t.Errorf("ParseTransport(%s) expected err=%t but was %t", tt.input, tt.err, (err != nil))
		}
		if (err != nil) || tt.err {
			continue // ignore return values
		}

		if (protocol != tt.protocol) || (host != tt.host) || (port != tt.port) {
			t.Errorf("ParseTransport(%s) = %s %s %d but want %s %s %d", tt.input, protocol, host, port, tt.protocol, tt.host, tt.port)
		}
	}
}
