package bracelet

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Logger defines the logging interface used by the listener.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Stats tracks listener counters. All fields use atomic access.
type Stats struct {
	ConnectionsTotal  atomic.Uint64
	ConnectionsActive atomic.Int64
	AcceptErrors      atomic.Uint64
}

// Server accepts bracelet TCP sessions and runs one Handler per
// connection. Sessions are independent: a slow or broken bracelet
// never stalls its neighbours.
type Server struct {
	host        string
	port        int
	readTimeout time.Duration

	registry Registry
	alarms   Alarms
	logger   Logger

	mu       sync.Mutex
	listener net.Listener
	handlers map[*Handler]struct{}

	closed atomic.Bool
	wg     sync.WaitGroup

	stats Stats
}

// NewServer creates a bracelet listener. Start must be called before
// it accepts anything.
func NewServer(host string, port int, readTimeout time.Duration, registry Registry, alarms Alarms) *Server {
	return &Server{
		host:        host,
		port:        port,
		readTimeout: readTimeout,
		registry:    registry,
		alarms:      alarms,
		logger:      noopLogger{},
		handlers:    make(map[*Handler]struct{}),
	}
}

// SetLogger sets the logger for the server. Handlers inherit it.
func (s *Server) SetLogger(logger Logger) {
	s.logger = logger
}

// Start binds the listening socket and launches the accept loop.
// Returns once the socket is bound; sessions run in the background
// until Stop or context cancellation.
func (s *Server) Start(ctx context.Context) error {
	if s.closed.Load() {
		return ErrServerClosed
	}

	addr := net.JoinHostPort(s.host, fmt.Sprintf("%d", s.port))
	lc := net.ListenConfig{}
	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("binding bracelet listener on %s: %w", addr, err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("bracelet listener started", "addr", listener.Addr().String())

	s.wg.Add(1)
	go s.acceptLoop(ctx, listener)

	// Tie listener lifetime to the context so shutdown unblocks
	// Accept.
	go func() {
		<-ctx.Done()
		s.Stop(context.WithoutCancel(ctx))
	}()

	return nil
}

// Addr returns the bound listener address, or empty before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// acceptLoop accepts connections until the listener closes.
func (s *Server) acceptLoop(ctx context.Context, listener net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.closed.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.stats.AcceptErrors.Add(1)
			s.logger.Warn("accept failed", "error", err)
			continue
		}

		s.stats.ConnectionsTotal.Add(1)
		s.stats.ConnectionsActive.Add(1)

		h := newHandler(conn, s.registry, s.alarms, s.readTimeout, s.logger)
		h.onClose = s.removeHandler

		s.mu.Lock()
		s.handlers[h] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			h.run(ctx)
		}()
	}
}

// removeHandler drops a finished session from the live set.
func (s *Server) removeHandler(h *Handler) {
	s.mu.Lock()
	delete(s.handlers, h)
	s.mu.Unlock()
	s.stats.ConnectionsActive.Add(-1)
}

// Stop closes the listener and every live session, then waits for all
// session goroutines to finish. Safe to call more than once.
func (s *Server) Stop(ctx context.Context) {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}

	s.mu.Lock()
	listener := s.listener
	live := make([]*Handler, 0, len(s.handlers))
	for h := range s.handlers {
		live = append(live, h)
	}
	s.mu.Unlock()

	if listener != nil {
		_ = listener.Close()
	}
	for _, h := range live {
		h.close(ctx)
	}

	s.wg.Wait()
	s.logger.Info("bracelet listener stopped")
}

// Send pushes a raw payload line to the device matching the
// identifier. Identifiers containing a dot are treated as IPs;
// anything else resolves through the registry first.
func (s *Server) Send(identifier string, payload []byte) error {
	h := s.findHandler(identifier)
	if h == nil {
		return fmt.Errorf("%w: %s", ErrDeviceNotConnected, identifier)
	}

	if len(payload) == 0 || payload[len(payload)-1] != '\n' {
		payload = append(payload, '\n')
	}
	h.write(payload)
	s.logger.Debug("pushed to bracelet", "identifier", identifier, "ip", h.RemoteIP())
	return nil
}

// SendPush pushes a typed server-initiated message to a device.
func (s *Server) SendPush(identifier, msgType string, payload map[string]string) error {
	return s.Send(identifier, EncodePush(msgType, payload))
}

// findHandler resolves an identifier to a live session.
func (s *Server) findHandler(identifier string) *Handler {
	ip := identifier
	if !strings.Contains(identifier, ".") {
		dev, err := s.registry.Find(identifier)
		if err != nil {
			return nil
		}
		ip = dev.IPAddress
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for h := range s.handlers {
		if h.RemoteIP() == ip {
			return h
		}
	}
	return nil
}

// ConnectionCount returns the number of live sessions.
func (s *Server) ConnectionCount() int {
	return int(s.stats.ConnectionsActive.Load())
}

// Snapshot of listener counters for health reporting.
func (s *Server) StatsSnapshot() (total uint64, active int64, acceptErrors uint64) {
	return s.stats.ConnectionsTotal.Load(), s.stats.ConnectionsActive.Load(), s.stats.AcceptErrors.Load()
}
