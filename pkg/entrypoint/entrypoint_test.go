package entrypoint

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"dominicbreuker/msgsock/mocks"
	mocktcp "dominicbreuker/msgsock/mocks/tcp"
	"dominicbreuker/msgsock/pkg/config"
	"dominicbreuker/msgsock/pkg/discovery"
	"dominicbreuker/msgsock/pkg/discovery/memory"
)

const mockPort = 12345

// runServe starts serve in the background and stops it on cleanup.
func runServe(t *testing.T, cfg *config.Server, pub discovery.Publisher) <-chan error {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- serve(ctx, cfg, pub) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-errCh:
		case <-time.After(5 * time.Second):
			t.Error("serve did not return after cancel")
		}
	})
	return errCh
}

// runSend feeds lines to send and waits for it to return.
func runSend(t *testing.T, cfg *config.Client, resolver discovery.Resolver, stdio *mocks.MockStdio, lines ...string) error {
	t.Helper()

	errCh := make(chan error, 1)
	go func() { errCh <- send(context.Background(), cfg, resolver) }()

	go func() {
		if err := stdio.WriteLines(lines...); err == nil {
			_ = stdio.CloseStdin()
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("send did not return")
		return nil
	}
}

func TestServeSend(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		codec string
		mux   bool
	}{
		{"gob", "gob", false},
		{"cbor", "cbor", false},
		{"gob over mux", "gob", true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			network := mocktcp.NewMockTCPNetwork()
			serverStdio := mocks.NewMockStdio()
			defer serverStdio.Close()
			clientStdio := mocks.NewMockStdio()
			defer clientStdio.Close()

			srvCfg := &config.Server{Shared: config.Shared{
				Host:  "127.0.0.1",
				Port:  mockPort,
				Codec: tc.codec,
				Deps: &config.Dependencies{
					TCPListener: network.ListenTCP,
					Stdout:      serverStdio.GetStdout,
				},
			}, Multiplex: tc.mux}
			runServe(t, srvCfg, nil)

			if _, err := network.WaitForListener("127.0.0.1:12345", 2000); err != nil {
				t.Fatalf("WaitForListener() error = %v", err)
			}

			cliCfg := &config.Client{Shared: config.Shared{
				Host:    "127.0.0.1",
				Port:    mockPort,
				Codec:   tc.codec,
				Timeout: 2 * time.Second,
				Deps: &config.Dependencies{
					TCPDialer: network.DialTCPContext,
					Stdin:     clientStdio.GetStdin,
					Stdout:    clientStdio.GetStdout,
				},
			}, Multiplex: tc.mux}
			err := runSend(t, cliCfg, nil, clientStdio,
				`{"type":"ping","seq":1}`,
				`not json`,
				``,
				`{"type":"note","text":"hi"}`,
			)
			if err != nil {
				t.Fatalf("send() error = %v", err)
			}

			for _, want := range []string{`{"seq":1,"type":"pong"}`, `{"text":"hi","type":"note"}`} {
				if !strings.Contains(clientStdio.ReadFromStdout(), want+"\n") {
					t.Errorf("client output %q lacks %s", clientStdio.ReadFromStdout(), want)
				}
			}
			if got := len(clientStdio.OutputLines()); got != 2 {
				t.Errorf("client printed %d lines, want 2", got)
			}
			if err := serverStdio.WaitForOutput(`{"seq":1,"type":"ping"}`+"\n", 2000); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestSend_ConnectionRefused(t *testing.T) {
	t.Parallel()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	stdio := mocks.NewMockStdio()
	defer stdio.Close()

	cfg := &config.Client{Shared: config.Shared{
		Host:    "127.0.0.1",
		Port:    port,
		Timeout: 2 * time.Second,
		Deps: &config.Dependencies{
			Stdin:  stdio.GetStdin,
			Stdout: stdio.GetStdout,
		},
	}}
	if err := send(context.Background(), cfg, nil); err == nil {
		t.Fatal("send() error = nil, want connection refused")
	}
}

func TestSend_InvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  *config.Client
	}{
		{"no host", &config.Client{Shared: config.Shared{Port: 8080}}},
		{"no port", &config.Client{Shared: config.Shared{Host: "127.0.0.1"}}},
		{"bad codec", &config.Client{Shared: config.Shared{Host: "127.0.0.1", Port: 8080, Codec: "xml"}}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if err := send(context.Background(), tc.cfg, nil); err == nil {
				t.Error("send() error = nil, want error")
			}
		})
	}
}

func TestSend_ServiceNotFound(t *testing.T) {
	t.Parallel()

	stdio := mocks.NewMockStdio()
	defer stdio.Close()

	cfg := &config.Client{
		Shared: config.Shared{Deps: &config.Dependencies{
			Stdin:  stdio.GetStdin,
			Stdout: stdio.GetStdout,
		}},
		Service: "nobody",
	}
	err := send(context.Background(), cfg, memory.NewRegistry())
	if !errors.Is(err, discovery.ErrNotFound) {
		t.Fatalf("send() error = %v, want %v", err, discovery.ErrNotFound)
	}
}

func TestServeSend_Service(t *testing.T) {
	t.Parallel()

	registry := memory.NewRegistry()
	serverStdio := mocks.NewMockStdio()
	defer serverStdio.Close()

	srvCfg := &config.Server{
		Shared:      config.Shared{Host: "127.0.0.1", Deps: &config.Dependencies{Stdout: serverStdio.GetStdout}},
		Publish:     true,
		ServiceName: "lobby",
	}
	runServe(t, srvCfg, registry)

	svc := discovery.Service{Instance: "lobby", Type: config.DefaultServiceType}
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := registry.Resolve(context.Background(), svc); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("service was never published")
		}
		time.Sleep(10 * time.Millisecond)
	}

	clientStdio := mocks.NewMockStdio()
	defer clientStdio.Close()
	cliCfg := &config.Client{
		Shared: config.Shared{Deps: &config.Dependencies{
			Stdin:  clientStdio.GetStdin,
			Stdout: clientStdio.GetStdout,
		}},
		Service: "lobby",
	}
	if err := runSend(t, cliCfg, registry, clientStdio, `{"type":"ping","seq":7}`); err != nil {
		t.Fatalf("send() error = %v", err)
	}
	if got := clientStdio.ReadFromStdout(); got != `{"seq":7,"type":"pong"}`+"\n" {
		t.Errorf("client output = %q", got)
	}
}

func TestServe_BindFailure(t *testing.T) {
	t.Parallel()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}
	defer l.Close()

	cfg := &config.Server{Shared: config.Shared{
		Host: "127.0.0.1",
		Port: l.Addr().(*net.TCPAddr).Port,
	}}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := serve(ctx, cfg, nil); err == nil {
		t.Fatal("serve() error = nil, want bind failure")
	}
}

func TestServe_InvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := &config.Server{Shared: config.Shared{Port: -1}}
	if err := serve(context.Background(), cfg, nil); err == nil {
		t.Fatal("serve() error = nil, want error")
	}
}

func TestBrowse(t *testing.T) {
	t.Parallel()

	registry := memory.NewRegistry()
	ctx := context.Background()
	for _, svc := range []discovery.Service{
		{Instance: "beta", Type: "_msgsock._tcp", Port: 9001, Text: []string{"proto=tcp", "codec=gob"}},
		{Instance: "alpha", Type: "_msgsock._tcp", Port: 9000},
		{Instance: "other", Type: "_other._tcp", Port: 9002},
	} {
		if err := registry.Publish(ctx, svc); err != nil {
			t.Fatalf("Publish(%s) error = %v", svc, err)
		}
	}

	var out strings.Builder
	if err := browse(ctx, registry, "_msgsock._tcp", time.Second, &out, nil); err != nil {
		t.Fatalf("browse() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("browse() printed %d lines, want 3:\n%s", len(lines), out.String())
	}
	if !strings.HasPrefix(lines[0], "INSTANCE") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "alpha") || !strings.Contains(lines[1], "127.0.0.1:9000") {
		t.Errorf("first row = %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "beta") || !strings.HasSuffix(lines[2], "proto=tcp codec=gob") {
		t.Errorf("second row = %q", lines[2])
	}
}

func TestBrowse_Empty(t *testing.T) {
	t.Parallel()

	var out strings.Builder
	if err := browse(context.Background(), memory.NewRegistry(), "_msgsock._tcp", time.Second, &out, nil); err != nil {
		t.Fatalf("browse() error = %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("browse() output = %q, want empty", out.String())
	}
}

func TestBrowse_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out strings.Builder
	if err := browse(ctx, memory.NewRegistry(), "_msgsock._tcp", time.Second, &out, nil); err == nil {
		t.Fatal("browse() error = nil, want context error")
	}
}
