// Package httpd runs an http handler on a tcp listener, with keep-alives, a limit on
// concurrent connections and a graceful shutdown.
package httpd

import (
	"context"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oneconcern/revstore/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"
)

const (
	defaultKeepAlive       = 3 * time.Minute
	defaultCleanupTimeout  = 10 * time.Second
	defaultReadTimeout     = 30 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultReadHeaderLimit = 10 * time.Second
	defaultMaxHeaderSize   = 1 << 20
)

var (
	// ErrAlreadyServing is returned when Serve is called on a server that is serving
	ErrAlreadyServing = errors.New("server is already serving")
)

// Option for the server
type Option func(*Server)

// Listen sets the tcp address to listen on. An empty port picks a random one.
func Listen(addr string) Option {
	return func(s *Server) {
		s.addr = addr
	}
}

// ListenLimit caps the number of concurrent connections. 0 means no limit.
func ListenLimit(limit int) Option {
	return func(s *Server) {
		s.listenLimit = limit
	}
}

// KeepAlive sets the tcp keep-alive period on accepted connections
func KeepAlive(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.keepAlive = d
		}
	}
}

// Timeouts sets the read and write timeouts of requests
func Timeouts(read, write time.Duration) Option {
	return func(s *Server) {
		if read > 0 {
			s.readTimeout = read
		}
		if write > 0 {
			s.writeTimeout = write
		}
	}
}

// CleanupTimeout is the grace period given to in-flight requests on shutdown
func CleanupTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.cleanupTimeout = d
		}
	}
}

// Logger for the server
func Logger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.l = l
		}
	}
}

// OnShutdown registers handlers called once the server stopped accepting requests
func OnShutdown(handlers ...func()) Option {
	return func(s *Server) {
		s.onShutdown = append(s.onShutdown, handlers...)
	}
}

// Server serves a handler over http
type Server struct {
	addr           string
	listenLimit    int
	keepAlive      time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	cleanupTimeout time.Duration
	l              *zap.Logger
	onShutdown     []func()

	handler      http.Handler
	srv          *http.Server
	listener     net.Listener
	shuttingDown int32
	mu           sync.Mutex
	wg           sync.WaitGroup
}

// New server for a handler
func New(handler http.Handler, opts ...Option) *Server {
	s := &Server{
		addr:           "localhost:0",
		keepAlive:      defaultKeepAlive,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		cleanupTimeout: defaultCleanupTimeout,
		l:              zap.NewNop(),
		handler:        handler,
	}
	for _, apply := range opts {
		apply(s)
	}
	return s
}

// Listen opens the listener, so the bound address is known before serving
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}
	lc := net.ListenConfig{KeepAlive: s.keepAlive}
	ln, err := lc.Listen(context.Background(), "tcp", s.addr)
	if err != nil {
		return err
	}
	if s.listenLimit > 0 {
		ln = netutil.LimitListener(ln, s.listenLimit)
	}
	s.listener = ln
	return nil
}

// Addr is the address the server listens on, empty until it listens
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Serve starts serving in the background. It listens first when needed.
func (s *Server) Serve() error {
	if err := s.Listen(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return ErrAlreadyServing
	}
	s.srv = &http.Server{
		Handler:           s.handler,
		ReadTimeout:       s.readTimeout,
		ReadHeaderTimeout: defaultReadHeaderLimit,
		WriteTimeout:      s.writeTimeout,
		IdleTimeout:       s.cleanupTimeout,
		MaxHeaderBytes:    defaultMaxHeaderSize,
	}
	for _, fn := range s.onShutdown {
		s.srv.RegisterOnShutdown(fn)
	}

	addr := s.listener.Addr().String()
	s.wg.Add(1)
	go func(srv *http.Server, ln net.Listener) {
		defer s.wg.Done()
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.l.Error("http server failed", zap.String("addr", addr), zap.Error(err))
		}
		s.l.Info("stopped serving", zap.String("addr", addr))
	}(s.srv, s.listener)
	s.l.Info("serving", zap.String("addr", addr))
	return nil
}

// Shutdown stops the server, waiting up to the cleanup timeout for in-flight requests
func (s *Server) Shutdown() error {
	if !atomic.CompareAndSwapInt32(&s.shuttingDown, 0, 1) {
		return nil
	}
	s.mu.Lock()
	srv, ln := s.srv, s.listener
	s.mu.Unlock()

	if srv == nil {
		if ln != nil {
			return ln.Close()
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cleanupTimeout)
	defer cancel()
	err := srv.Shutdown(ctx)
	s.wg.Wait()
	return err
}
