package connection

import (
	"context"
	"net"
	"time"

	"dominicbreuker/msgsock/pkg/config"
	"dominicbreuker/msgsock/pkg/discovery"
	"dominicbreuker/msgsock/pkg/format"
	"dominicbreuker/msgsock/pkg/log"
	"dominicbreuker/msgsock/pkg/packet"
	"dominicbreuker/msgsock/pkg/runloop"
	"dominicbreuker/msgsock/pkg/stream"
	"dominicbreuker/msgsock/pkg/transport"
)

// DialFunc establishes the socket to host:port.
type DialFunc func(ctx context.Context, host string, port int) (net.Conn, error)

// Option configures a Connection.
type Option func(*options)

type options struct {
	loop       *runloop.Loop
	codec      packet.Codec
	logger     *log.Logger
	dial       DialFunc
	resolver   discovery.Resolver
	protocol   config.Protocol
	deps       *config.Dependencies
	maxFrame   int
	readChunk  int
	writeChunk int
	timeout    time.Duration
	logFile    string
	in         stream.Input
	out        stream.Output
}

func defaultOptions() options {
	return options{
		codec:    packet.Gob(),
		protocol: config.ProtoTCP,
		maxFrame: packet.DefaultMaxFrameSize,
		timeout:  config.DefaultTimeout,
	}
}

func (o *options) dialFunc() DialFunc {
	if o.dial != nil {
		return o.dial
	}
	proto, deps := o.protocol, o.deps
	return func(ctx context.Context, host string, port int) (net.Conn, error) {
		return transport.Dial(ctx, proto, format.Addr(host, port), deps)
	}
}

// WithLoop delivers all events on l. Without it, each connection runs its
// own loop, stopped when the connection ends.
func WithLoop(l *runloop.Loop) Option {
	return func(o *options) { o.loop = l }
}

// WithCodec selects the payload codec. Both peers must agree.
func WithCodec(c packet.Codec) Option {
	return func(o *options) { o.codec = c }
}

// WithLogger sets the logger for verbose event tracing.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithDialer replaces the transport used for host/port and service origins.
func WithDialer(d DialFunc) Option {
	return func(o *options) { o.dial = d }
}

// WithResolver sets the discovery collaborator for service origins.
func WithResolver(r discovery.Resolver) Option {
	return func(o *options) { o.resolver = r }
}

// WithProtocol selects the transport the default dialer uses.
func WithProtocol(p config.Protocol) Option {
	return func(o *options) { o.protocol = p }
}

// WithDependencies injects the network primitives of the default dialer.
func WithDependencies(deps *config.Dependencies) Option {
	return func(o *options) { o.deps = deps }
}

// WithMaxFrameSize bounds the payload size in both directions.
func WithMaxFrameSize(n int) Option {
	return func(o *options) { o.maxFrame = n }
}

// WithReadChunk sets how many bytes the input stream reads at once.
func WithReadChunk(n int) Option {
	return func(o *options) { o.readChunk = n }
}

// WithWriteChunk sets the most bytes handed to the socket per write.
func WithWriteChunk(n int) Option {
	return func(o *options) { o.writeChunk = n }
}

// WithTimeout bounds dialing and service resolution.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithLogFile appends the raw traffic of the connection to path.
func WithLogFile(path string) Option {
	return func(o *options) { o.logFile = path }
}

// WithStreams makes Connect use in and out instead of creating a socket
// pair from the origin.
func WithStreams(in stream.Input, out stream.Output) Option {
	return func(o *options) { o.in, o.out = in, out }
}

// FromConfig turns the shared settings into options.
func FromConfig(cfg *config.Shared) ([]Option, error) {
	codec, err := packet.CodecByName(cfg.Codec)
	if err != nil {
		return nil, err
	}

	opts := []Option{
		WithCodec(codec),
		WithProtocol(cfg.GetProtocol()),
		WithDependencies(cfg.Deps),
		WithMaxFrameSize(cfg.GetMaxFrameSize()),
		WithTimeout(cfg.GetTimeout()),
		WithLogger(cfg.Logger),
	}
	if cfg.LogFile != "" {
		opts = append(opts, WithLogFile(cfg.LogFile))
	}
	return opts, nil
}
