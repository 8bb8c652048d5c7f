// Package server accepts sockets and hands each one over as a
// connection.Connection. A server can also advertise its port through a
// discovery.Publisher so clients find it by name.
//
// Server events (new connections, a failed accept loop, publish outcomes)
// are delivered on the server's runloop.Loop. Accepted connections are not
// bound to that loop: they run on their own once the observer connects
// them, so terminating the server leaves them untouched.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"

	"dominicbreuker/msgsock/pkg/config"
	"dominicbreuker/msgsock/pkg/connection"
	"dominicbreuker/msgsock/pkg/discovery"
	"dominicbreuker/msgsock/pkg/format"
	"dominicbreuker/msgsock/pkg/log"
	"dominicbreuker/msgsock/pkg/mux"
	"dominicbreuker/msgsock/pkg/runloop"
	"dominicbreuker/msgsock/pkg/semaphore"
	"dominicbreuker/msgsock/pkg/transport"
)

// ErrNotStarted is returned by operations that need a bound port.
var ErrNotStarted = errors.New("server not started")

// Observer receives the events of a server.
type Observer interface {
	// ServerFailed reports a fatal accept error. The server has stopped
	// listening when it is called.
	ServerFailed(s *Server, reason string)
	// HandleNewConnection hands over an accepted connection. The observer
	// owns it: it must call SetObserver and Connect to use it, or Close.
	HandleNewConnection(c *connection.Connection)
}

// PublishState tracks the discovery registration.
type PublishState int

const (
	Unpublished PublishState = iota
	Publishing
	Published
	PublishFailed
)

func (s PublishState) String() string {
	switch s {
	case Unpublished:
		return "unpublished"
	case Publishing:
		return "publishing"
	case Published:
		return "published"
	case PublishFailed:
		return "failed"
	default:
		return fmt.Sprintf("PublishState(%d)", int(s))
	}
}

// Option configures a Server.
type Option func(*options)

type options struct {
	loop      *runloop.Loop
	publisher discovery.Publisher
	pubObs    discovery.PublishObserver
	logger    *log.Logger
	deps      *config.Dependencies
	connOpts  []connection.Option
	hasLogger bool
	hasDeps   bool
}

// WithLoop delivers server events on l instead of a loop owned by the
// server. A shared loop is not stopped by Terminate.
func WithLoop(l *runloop.Loop) Option {
	return func(o *options) { o.loop = l }
}

// WithPublisher sets where PublishService advertises the server.
func WithPublisher(p discovery.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithPublishObserver receives the outcome of PublishService.
func WithPublishObserver(obs discovery.PublishObserver) Option {
	return func(o *options) { o.pubObs = obs }
}

// WithLogger overrides the logger from the config.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger, o.hasLogger = l, true }
}

// WithDependencies overrides the network dependencies from the config.
func WithDependencies(deps *config.Dependencies) Option {
	return func(o *options) { o.deps, o.hasDeps = deps, true }
}

// WithConnectionOptions are applied to every accepted connection after
// the ones derived from the config.
func WithConnectionOptions(opts ...connection.Option) Option {
	return func(o *options) { o.connOpts = append(o.connOpts, opts...) }
}

// Server listens on one port.
type Server struct {
	cfg      *config.Server
	observer Observer
	opts     options
	logger   *log.Logger
	deps     *config.Dependencies
	connOpts []connection.Option
	slots    *semaphore.ConnSemaphore

	mu         sync.Mutex
	loop       *runloop.Loop
	ownsLoop   bool
	listener   net.Listener
	port       int
	started    bool
	terminated bool
	sessions   map[*session]struct{}

	pubState  PublishState
	pubSvc    discovery.Service
	pubGen    int
	pubCancel context.CancelFunc
}

// New creates a server. Nothing is bound until Start.
func New(cfg *config.Server, observer Observer, opts ...Option) (*Server, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid server config: %w", errors.Join(errs...))
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	logger := cfg.Logger
	if o.hasLogger {
		logger = o.logger
	}
	deps := cfg.Deps
	if o.hasDeps {
		deps = o.deps
	}

	connOpts, err := connection.FromConfig(&cfg.Shared)
	if err != nil {
		return nil, fmt.Errorf("connection.FromConfig(): %w", err)
	}
	connOpts = append(connOpts, connection.WithLogger(logger), connection.WithDependencies(deps))
	connOpts = append(connOpts, o.connOpts...)

	s := &Server{
		cfg:      cfg,
		observer: observer,
		opts:     o,
		logger:   logger,
		deps:     deps,
		connOpts: connOpts,
		loop:     o.loop,
		sessions: make(map[*session]struct{}),
	}
	if cfg.MaxConns > 0 {
		s.slots = semaphore.New(cfg.MaxConns)
	}
	return s, nil
}

// Start binds the configured port and starts accepting. It returns false
// if the server was started or terminated before, or if binding fails.
// With Publish set in the config, the server also advertises itself.
func (s *Server) Start() bool {
	s.mu.Lock()
	if s.started || s.terminated {
		s.mu.Unlock()
		return false
	}

	l, err := s.listen()
	if err != nil {
		s.mu.Unlock()
		s.logger.ErrorMsg("Listening on %s: %s\n", s.addr(), err)
		return false
	}

	s.started = true
	s.listener = l
	s.port = transport.Port(l.Addr())
	if s.loop == nil {
		s.loop = runloop.New()
		s.ownsLoop = true
	}
	loop := s.loop
	s.mu.Unlock()

	s.logger.InfoMsg("Listening on %s (%s)\n", l.Addr(), s.cfg.GetProtocol())
	go s.acceptLoop(l, loop)

	if s.cfg.Publish && !s.PublishService() {
		s.logger.ErrorMsg("Could not publish %s\n", s.serviceName())
	}
	return true
}

func (s *Server) addr() string {
	return format.Addr(s.cfg.Host, s.cfg.Port)
}

// listen must be called with s.mu held.
func (s *Server) listen() (net.Listener, error) {
	if s.cfg.Mode == config.ModePOSIX {
		return listenPOSIX(s.cfg.Host, s.cfg.Port)
	}
	return transport.Listen(s.cfg.GetProtocol(), s.addr(), s.deps)
}

// Port returns the bound port, or 0 before Start.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// Addr returns the listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) acceptLoop(l net.Listener, loop *runloop.Loop) {
	for {
		conn, err := l.Accept()
		if err != nil {
			loop.Post(func() { s.acceptFailed(err) })
			return
		}
		s.admit(conn, loop)
	}
}

// admit enforces the connection limit and routes the socket.
func (s *Server) admit(conn net.Conn, loop *runloop.Loop) {
	if !s.slots.TryAcquire() {
		s.logger.VerboseMsg("Rejecting %s: %d connections open", conn.RemoteAddr(), s.cfg.MaxConns)
		_ = conn.Close()
		return
	}
	conn = s.slots.Guard(conn)

	if s.cfg.Multiplex {
		go s.serveSession(conn, loop)
		return
	}
	if !loop.Post(func() { s.handOver(conn) }) {
		_ = conn.Close()
	}
}

// serveSession hands over every stream the peer opens on conn. After
// Terminate, further streams are refused and the session ends with its
// last handed-over stream.
func (s *Server) serveSession(conn net.Conn, loop *runloop.Loop) {
	ms, err := mux.Server(conn)
	if err != nil {
		s.logger.ErrorMsg("Session with %s: %s\n", conn.RemoteAddr(), err)
		_ = conn.Close()
		return
	}
	sess := newSession(ms)

	s.mu.Lock()
	if s.terminated {
		s.mu.Unlock()
		sess.close()
		return
	}
	s.sessions[sess] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.sessions, sess)
		s.mu.Unlock()
	}()

	s.logger.VerboseMsg("Session with %s started", conn.RemoteAddr())
	for {
		stream, err := sess.Accept()
		if err != nil {
			s.logger.VerboseMsg("Session with %s ended: %s", conn.RemoteAddr(), err)
			return
		}
		tracked, ok := sess.track(stream)
		if !ok {
			_ = stream.Close()
			continue
		}
		if !loop.Post(func() { s.handOver(tracked) }) {
			_ = tracked.Close()
		}
	}
}

// handOver runs on the loop.
func (s *Server) handOver(conn net.Conn) {
	s.mu.Lock()
	obs := s.observer
	if s.terminated || obs == nil {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.mu.Unlock()

	c, err := connection.New(connection.FromSocket(conn), nil, s.connOpts...)
	if err != nil {
		s.logger.ErrorMsg("Handling %s: %s\n", conn.RemoteAddr(), err)
		_ = conn.Close()
		return
	}

	s.logger.InfoMsg("New connection from %s\n", conn.RemoteAddr())
	obs.HandleNewConnection(c)
}

// acceptFailed runs on the loop.
func (s *Server) acceptFailed(err error) {
	s.mu.Lock()
	if s.terminated {
		// the listener was closed by Terminate
		s.mu.Unlock()
		return
	}
	obs := s.observer
	s.mu.Unlock()

	reason := fmt.Sprintf("accept on %s: %s", s.Addr(), err)
	s.logger.ErrorMsg("%s\n", reason)

	s.terminate()
	if obs != nil {
		obs.ServerFailed(s, reason)
	}
}

// Terminate stops accepting, closes the listener, withdraws a published
// service and stops the server's loop. It is idempotent; once it returns,
// no further server callbacks start. Connections handed over earlier stay
// open; a multiplexed socket stays up until its last handed-over stream
// is closed.
func (s *Server) Terminate() {
	s.terminate()
}

// terminate reports whether this call terminated the server.
func (s *Server) terminate() bool {
	s.mu.Lock()
	if s.terminated {
		s.mu.Unlock()
		return false
	}
	s.terminated = true

	l := s.listener
	loop, owned := s.loop, s.ownsLoop
	sessions := make([]*session, 0, len(s.sessions))
	for sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	unpublish := s.withdrawLocked()
	s.mu.Unlock()

	if l != nil {
		_ = l.Close()
	}
	for _, sess := range sessions {
		sess.drain()
	}
	unpublish()

	if owned && loop != nil {
		loop.Stop()
	}
	if l != nil {
		s.logger.VerboseMsg("Stopped listening on %s", l.Addr())
	}
	return true
}

// PublishState returns the discovery registration state.
func (s *Server) PublishState() PublishState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pubState
}

// Service returns the record PublishService advertises or advertised.
func (s *Server) Service() (discovery.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == 0 {
		return discovery.Service{}, ErrNotStarted
	}
	return s.serviceLocked(), nil
}

// serviceLocked must be called with s.mu held.
func (s *Server) serviceLocked() discovery.Service {
	return discovery.Service{
		Instance: s.serviceName(),
		Type:     s.cfg.GetServiceType(),
		Port:     s.port,
		Text:     []string{"proto=" + s.cfg.GetProtocol().String(), "codec=" + codecName(s.cfg.Codec)},
	}
}

func (s *Server) serviceName() string {
	if s.cfg.ServiceName != "" {
		return s.cfg.ServiceName
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return "msgsock on " + host
	}
	return "msgsock"
}

func codecName(name string) string {
	if name == "" {
		return "gob"
	}
	return name
}

// PublishService advertises the bound port. It returns false if the port
// is not known yet, no publisher is configured, the server was terminated,
// or the service is already publishing or published. The outcome is
// reported to the PublishObserver, never through ServerFailed.
func (s *Server) PublishService() bool {
	s.mu.Lock()
	if s.port == 0 || s.opts.publisher == nil || s.terminated ||
		s.pubState == Publishing || s.pubState == Published {
		s.mu.Unlock()
		return false
	}

	svc := s.serviceLocked()
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.GetTimeout())
	s.pubState = Publishing
	s.pubSvc = svc
	s.pubGen++
	s.pubCancel = cancel
	gen, loop, publisher := s.pubGen, s.loop, s.opts.publisher
	s.mu.Unlock()

	s.logger.VerboseMsg("Publishing %s", svc)
	go func() {
		err := publisher.Publish(ctx, svc)
		cancel()
		if !loop.Post(func() { s.publishDone(gen, svc, err) }) && err == nil {
			// terminated meanwhile
			_ = publisher.Unpublish(svc)
		}
	}()
	return true
}

// publishDone runs on the loop.
func (s *Server) publishDone(gen int, svc discovery.Service, err error) {
	s.mu.Lock()
	if gen != s.pubGen || s.pubState != Publishing {
		// withdrawn while the publish was in flight
		s.mu.Unlock()
		if err == nil {
			_ = s.opts.publisher.Unpublish(svc)
		}
		return
	}

	s.pubCancel = nil
	if err != nil {
		s.pubState = PublishFailed
	} else {
		s.pubState = Published
	}
	obs := s.opts.pubObs
	s.mu.Unlock()

	if err != nil {
		s.logger.ErrorMsg("Publishing %s: %s\n", svc.FullName(), err)
		if obs != nil {
			obs.ServicePublishFailed(svc, err)
		}
		return
	}

	s.logger.InfoMsg("Published %s\n", svc)
	if obs != nil {
		obs.ServicePublished(svc)
	}
}

// UnpublishService withdraws the advertisement. A publish still in flight
// is abandoned and its result ignored.
func (s *Server) UnpublishService() {
	s.mu.Lock()
	unpublish := s.withdrawLocked()
	s.mu.Unlock()
	unpublish()
}

// withdrawLocked resets the publish state and returns the call that
// removes the record, to be run without s.mu held.
func (s *Server) withdrawLocked() func() {
	state, svc := s.pubState, s.pubSvc
	if s.pubCancel != nil {
		s.pubCancel()
		s.pubCancel = nil
	}
	s.pubState = Unpublished
	s.pubGen++

	if state != Published {
		return func() {}
	}
	publisher, logger := s.opts.publisher, s.logger
	return func() {
		if err := publisher.Unpublish(svc); err != nil {
			logger.ErrorMsg("Unpublishing %s: %s\n", svc.FullName(), err)
			return
		}
		logger.VerboseMsg("Unpublished %s", svc.FullName())
	}
}
