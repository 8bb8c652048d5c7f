// Package entrypoint runs the CLI commands: a server that answers pings,
// a client that sends JSON lines from stdin, and a service browser.
package entrypoint

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"dominicbreuker/msgsock/pkg/config"
	"dominicbreuker/msgsock/pkg/connection"
	"dominicbreuker/msgsock/pkg/discovery"
	"dominicbreuker/msgsock/pkg/discovery/mdns"
	"dominicbreuker/msgsock/pkg/log"
	"dominicbreuker/msgsock/pkg/packet"
	"dominicbreuker/msgsock/pkg/server"
)

// Serve runs a server until ctx is done or the server fails. Received
// packets are printed to stdout as JSON lines. Pings are answered with a
// pong carrying the same seq, anything else is echoed back.
func Serve(ctx context.Context, cfg *config.Server) error {
	var pub discovery.Publisher
	if cfg.Publish {
		p := mdns.NewPublisher(cfg.Logger)
		defer p.Close()
		pub = p
	}
	return serve(ctx, cfg, pub)
}

func serve(ctx context.Context, cfg *config.Server, pub discovery.Publisher) error {
	h := &echoHandler{
		out:    &lineWriter{w: config.GetStdoutFunc(cfg.Deps)()},
		logger: cfg.Logger,
		failed: make(chan string, 1),
		conns:  make(map[*connection.Connection]struct{}),
	}
	defer h.closeAll()

	opts := []server.Option{server.WithPublishObserver(h)}
	if pub != nil {
		opts = append(opts, server.WithPublisher(pub))
	}

	srv, err := server.New(cfg, h, opts...)
	if err != nil {
		return fmt.Errorf("server.New(): %w", err)
	}
	if !srv.Start() {
		return fmt.Errorf("starting server on port %d failed", cfg.Port)
	}
	defer srv.Terminate()

	select {
	case <-ctx.Done():
		return nil
	case reason := <-h.failed:
		return errors.New(reason)
	}
}

// echoHandler observes the server and every connection it hands over.
type echoHandler struct {
	out    *lineWriter
	logger *log.Logger
	failed chan string

	mu    sync.Mutex
	conns map[*connection.Connection]struct{}
}

func (h *echoHandler) ServerFailed(_ *server.Server, reason string) {
	select {
	case h.failed <- reason:
	default:
	}
}

func (h *echoHandler) HandleNewConnection(c *connection.Connection) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	c.SetObserver(h)
	c.Connect()
}

func (h *echoHandler) ConnectionAttemptFailed(c *connection.Connection) {
	h.logger.ErrorMsg("Connection from %s failed: %s\n", c, c.Err())
	h.forget(c)
}

func (h *echoHandler) ConnectionTerminated(c *connection.Connection) {
	if errors.Is(c.Err(), io.EOF) {
		h.logger.InfoMsg("Connection from %s closed\n", c)
	} else {
		h.logger.InfoMsg("Connection from %s lost: %s\n", c, c.Err())
	}
	h.forget(c)
}

func (h *echoHandler) ReceivedNetworkPacket(p packet.Packet, c *connection.Connection) {
	h.out.printPacket(p, h.logger)

	reply := p
	if p.Type() == "ping" {
		reply = packet.Packet{"type": "pong"}
		if seq, ok := p["seq"]; ok {
			reply["seq"] = seq
		}
	}
	if err := c.SendNetworkPacket(reply); err != nil {
		h.logger.ErrorMsg("Replying to %s: %s\n", c, err)
	}
}

func (h *echoHandler) ServicePublished(svc discovery.Service) {
	h.logger.InfoMsg("Advertising %s\n", svc)
}

func (h *echoHandler) ServicePublishFailed(svc discovery.Service, err error) {
	h.logger.ErrorMsg("Advertising %s: %s\n", svc.FullName(), err)
}

func (h *echoHandler) forget(c *connection.Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, c)
}

func (h *echoHandler) closeAll() {
	h.mu.Lock()
	conns := make([]*connection.Connection, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.conns = make(map[*connection.Connection]struct{})
	h.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

// lineWriter prints whole lines from concurrent callers.
type lineWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (lw *lineWriter) printPacket(p packet.Packet, logger *log.Logger) {
	line, err := packet.FormatJSON(p)
	if err != nil {
		logger.ErrorMsg("Printing %s: %s\n", p, err)
		return
	}

	lw.mu.Lock()
	defer lw.mu.Unlock()
	_, _ = lw.w.Write(append(line, '\n'))
}
