package entrypoint

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"dominicbreuker/msgsock/pkg/config"
	"dominicbreuker/msgsock/pkg/connection"
	"dominicbreuker/msgsock/pkg/discovery"
	"dominicbreuker/msgsock/pkg/discovery/mdns"
	"dominicbreuker/msgsock/pkg/format"
	"dominicbreuker/msgsock/pkg/log"
	"dominicbreuker/msgsock/pkg/mux"
	"dominicbreuker/msgsock/pkg/packet"
	"dominicbreuker/msgsock/pkg/pipeio"
	"dominicbreuker/msgsock/pkg/transport"
)

// lingerIdle is how long Send keeps waiting for replies once stdin is
// exhausted and everything was written.
var lingerIdle = 500 * time.Millisecond

// Send connects to a server, sends every stdin line as a packet and prints
// every received packet to stdout as a JSON line. Lines that are not JSON
// objects are reported and skipped. It returns once stdin is exhausted and
// the server went quiet, the server closed the connection, or ctx is done.
func Send(ctx context.Context, cfg *config.Client) error {
	var resolver discovery.Resolver
	if cfg.Service != "" {
		resolver = mdns.NewClient(cfg.Logger)
	}
	return send(ctx, cfg, resolver)
}

func send(ctx context.Context, cfg *config.Client, resolver discovery.Resolver) error {
	if errs := cfg.Validate(); len(errs) > 0 {
		return fmt.Errorf("invalid client config: %w", errors.Join(errs...))
	}

	opts, err := connection.FromConfig(&cfg.Shared)
	if err != nil {
		return fmt.Errorf("connection.FromConfig(): %w", err)
	}
	if resolver != nil {
		opts = append(opts, connection.WithResolver(resolver))
	}

	origin := connection.FromHostPort(cfg.Host, cfg.Port)
	if cfg.Service != "" {
		origin = connection.FromService(discovery.Service{
			Instance: cfg.Service,
			Type:     cfg.GetServiceType(),
		})
	}

	stdio := pipeio.NewStdio(config.GetStdinFunc(cfg.Deps)(), config.GetStdoutFunc(cfg.Deps)())
	defer stdio.Close()

	obs := newClientObserver(&lineWriter{w: stdio}, cfg.Logger)
	var conn *connection.Connection
	if cfg.Multiplex {
		sess, err := dialSession(ctx, cfg, resolver)
		if err != nil {
			return err
		}
		defer sess.Close()

		conn, err = sess.Open(ctx, obs, opts...)
		if err != nil {
			return fmt.Errorf("opening stream to %s: %w", origin, err)
		}
	} else {
		conn, err = connection.New(origin, obs, opts...)
		if err != nil {
			return fmt.Errorf("connection.New(%s): %w", origin, err)
		}
	}
	defer conn.Close()

	// a failure to even start is reported through the observer as well
	conn.Connect()

	select {
	case <-ctx.Done():
		return nil
	case err := <-obs.done:
		return fmt.Errorf("connecting to %s: %w", origin, err)
	case <-obs.opened:
	}
	cfg.Logger.InfoMsg("Connected to %s\n", origin)

	inputDone := make(chan error, 1)
	go func() {
		inputDone <- sendLines(stdio, conn, cfg.Logger, stdio.IsTerminal())
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-obs.done:
		return closedErr(err)
	case err := <-inputDone:
		if err != nil {
			cfg.Logger.VerboseMsg("reading stdin: %s", err)
		}
	}

	return linger(ctx, conn, obs)
}

// dialSession dials the server socket itself and starts a multiplexed
// session on it, resolving the service first if one is configured.
func dialSession(ctx context.Context, cfg *config.Client, resolver discovery.Resolver) (*mux.Session, error) {
	addr := format.Addr(cfg.Host, cfg.Port)
	if cfg.Service != "" {
		if resolver == nil {
			return nil, fmt.Errorf("resolving %s: no resolver", cfg.Service)
		}
		svc, err := resolver.Resolve(ctx, discovery.Service{Instance: cfg.Service, Type: cfg.GetServiceType()})
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", cfg.Service, err)
		}
		addr = svc.Addr()
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.GetTimeout())
	defer cancel()
	raw, err := transport.Dial(dialCtx, cfg.GetProtocol(), addr, cfg.Deps)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}

	sess, err := mux.Client(raw, cfg.GetTimeout())
	if err != nil {
		_ = raw.Close()
		return nil, err
	}
	cfg.Logger.VerboseMsg("Session to %s started", addr)
	return sess, nil
}

// sendLines parses lines from r and sends them until r is exhausted.
func sendLines(r io.Reader, conn *connection.Connection, logger *log.Logger, prompt bool) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), packet.DefaultMaxFrameSize)

	for {
		if prompt {
			fmt.Fprint(os.Stderr, "> ")
		}
		if !scanner.Scan() {
			return scanner.Err()
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		p, err := packet.ParseJSON(line)
		if err != nil {
			logger.ErrorMsg("Skipping line: %s\n", err)
			continue
		}
		if err := conn.SendNetworkPacket(p); err != nil {
			if errors.Is(err, connection.ErrClosed) {
				return err
			}
			logger.ErrorMsg("Sending %s: %s\n", p.Type(), err)
		}
	}
}

// linger waits until the backlog is written and no packet arrived for
// lingerIdle.
func linger(ctx context.Context, conn *connection.Connection, obs *clientObserver) error {
	tick := time.NewTicker(lingerIdle / 10)
	defer tick.Stop()
	idle := time.NewTimer(lingerIdle)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-obs.done:
			return closedErr(err)
		case <-obs.activity:
			idle.Reset(lingerIdle)
		case <-tick.C:
			if conn.PendingBytes() > 0 {
				idle.Reset(lingerIdle)
			}
		case <-idle.C:
			return nil
		}
	}
}

// closedErr treats an orderly close by the server as success.
func closedErr(err error) error {
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("connection lost: %w", err)
}

type clientObserver struct {
	out    *lineWriter
	logger *log.Logger

	opened   chan struct{}
	done     chan error
	activity chan struct{}
}

func newClientObserver(out *lineWriter, logger *log.Logger) *clientObserver {
	return &clientObserver{
		out:      out,
		logger:   logger,
		opened:   make(chan struct{}),
		done:     make(chan error, 1),
		activity: make(chan struct{}, 1),
	}
}

func (o *clientObserver) ConnectionOpened(*connection.Connection) {
	close(o.opened)
}

func (o *clientObserver) ConnectionAttemptFailed(c *connection.Connection) {
	o.finish(c.Err())
}

func (o *clientObserver) ConnectionTerminated(c *connection.Connection) {
	o.finish(c.Err())
}

func (o *clientObserver) ReceivedNetworkPacket(p packet.Packet, _ *connection.Connection) {
	o.out.printPacket(p, o.logger)
	select {
	case o.activity <- struct{}{}:
	default:
	}
}

func (o *clientObserver) finish(err error) {
	if err == nil {
		err = io.EOF
	}
	select {
	case o.done <- err:
	default:
	}
}
