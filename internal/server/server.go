// Package server exposes a db.Database over TCP using the binary frame
// protocol in pkg/protocol.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/skshohagmiah/flindoc/internal/db"
	"github.com/skshohagmiah/flindoc/pkg/protocol"
)

const (
	DefaultReadTimeout  = 5 * time.Minute
	DefaultWriteTimeout = 10 * time.Second
	socketBufferSize    = 4 << 20
	ioBufferSize        = 64 << 10
)

// Config controls the listener and connection handling.
type Config struct {
	Addr string

	// MaxConnections bounds concurrent connection handlers. Zero means
	// unlimited.
	MaxConnections int

	// ReadTimeout closes connections idle for longer than this.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	return c
}

// Server serves one database to many clients. Each connection is handled
// sequentially: a response is written before the next request is read.
type Server struct {
	cfg     Config
	db      *db.Database
	log     *zap.Logger
	metrics *Metrics

	mu       sync.Mutex
	running  bool
	listener net.Listener
	connPool *ants.Pool
	wg       sync.WaitGroup

	connMu   sync.Mutex
	sessions map[*session]struct{}

	ctx    context.Context
	cancel context.CancelFunc

	opsProcessed atomic.Uint64
	opsErrors    atomic.Uint64
	activeConns  atomic.Int64
	totalConns   atomic.Uint64
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics shares a metrics set, for instance with an HTTP endpoint.
func WithMetrics(m *Metrics) Option {
	return func(s *Server) {
		if m != nil {
			s.metrics = m
		}
	}
}

// New returns a server for database. It does not listen until Start.
func New(database *db.Database, cfg Config, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg.withDefaults(),
		db:       database,
		log:      zap.NewNop(),
		sessions: make(map[*session]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics()
	}
	s.log = s.log.Named("server")
	return s
}

// Metrics returns the server's collectors.
func (s *Server) Metrics() *Metrics { return s.metrics }

// Start listens on the configured address and begins accepting clients.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	if s.cfg.MaxConnections > 0 {
		p, err := ants.NewPool(s.cfg.MaxConnections, ants.WithPanicHandler(func(v any) {
			s.log.Error("connection handler panic", zap.Any("panic", v))
		}))
		if err != nil {
			ln.Close()
			return fmt.Errorf("connection pool: %w", err)
		}
		s.connPool = p
	}

	s.listener = ln
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.running = true
	s.log.Info("listening", zap.String("addr", ln.Addr().String()), zap.Int("max_connections", s.cfg.MaxConnections))

	s.wg.Add(1)
	go s.acceptLoop(ln)
	return nil
}

// Addr returns the listening address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener and every open connection, then waits for the
// handlers to return.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.cancel()
	err := s.listener.Close()
	s.mu.Unlock()

	s.connMu.Lock()
	for sess := range s.sessions {
		sess.conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()
	s.mu.Lock()
	if s.connPool != nil {
		_ = s.connPool.ReleaseTimeout(3 * time.Second)
		s.connPool = nil
	}
	s.mu.Unlock()
	s.log.Info("stopped")
	return err
}

func (s *Server) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if !s.isRunning() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn("accept failed", zap.Error(err))
			continue
		}

		sess, ok := s.admit(conn)
		if !ok {
			return
		}
		s.wg.Add(1)
		if s.connPool == nil {
			go func() {
				defer s.wg.Done()
				s.serve(sess)
			}()
			continue
		}
		if err := s.connPool.Submit(func() {
			defer s.wg.Done()
			s.serve(sess)
		}); err != nil {
			s.wg.Done()
			s.closeSession(sess)
			s.log.Warn("connection rejected", zap.String("remote", conn.RemoteAddr().String()), zap.Error(err))
		}
	}
}

// session is the server side of one client connection.
type session struct {
	id     string
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer
	log    *zap.Logger
}

func (s *Server) newSession(conn net.Conn) *session {
	if err := optimizeTCPConnection(conn); err != nil {
		s.log.Debug("tcp tuning failed", zap.Error(err))
	}
	sess := &session{
		id:     uuid.NewString(),
		conn:   conn,
		reader: bufio.NewReaderSize(conn, ioBufferSize),
		writer: bufio.NewWriterSize(conn, ioBufferSize),
	}
	sess.log = s.log.With(zap.String("session", sess.id), zap.String("remote", conn.RemoteAddr().String()))

	s.connMu.Lock()
	s.sessions[sess] = struct{}{}
	s.connMu.Unlock()
	s.activeConns.Add(1)
	s.totalConns.Add(1)
	s.metrics.connections.Inc()
	return sess
}

// admit registers conn as a session. It reports false, with the connection
// already closed, when Stop ran concurrently and may have missed the session.
func (s *Server) admit(conn net.Conn) (*session, bool) {
	sess := s.newSession(conn)
	if !s.isRunning() {
		s.closeSession(sess)
		return nil, false
	}
	return sess, true
}

func (s *Server) closeSession(sess *session) {
	sess.conn.Close()
	s.connMu.Lock()
	delete(s.sessions, sess)
	s.connMu.Unlock()
	s.activeConns.Add(-1)
	s.metrics.connections.Dec()
}

func (s *Server) serve(sess *session) {
	defer s.closeSession(sess)
	sess.log.Debug("connected")

	for {
		sess.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		req, err := protocol.ReadRequest(sess.reader)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || !s.isRunning() {
				sess.log.Debug("disconnected")
				return
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				sess.log.Debug("idle timeout")
				return
			}
			// A malformed frame leaves the stream unsynchronised.
			sess.log.Warn("bad request frame", zap.Error(err))
			s.opsErrors.Add(1)
			s.write(sess, protocol.EncodeErrorResponse(err))
			return
		}

		resp := s.dispatch(s.ctx, sess, req)
		if err := s.write(sess, resp); err != nil {
			sess.log.Debug("write failed", zap.Error(err))
			return
		}
	}
}

func (s *Server) write(sess *session, frame []byte) error {
	sess.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	if _, err := sess.writer.Write(frame); err != nil {
		return err
	}
	return sess.writer.Flush()
}

// optimizeTCPConnection tunes a client socket for request/response traffic.
func optimizeTCPConnection(conn net.Conn) error {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	if err := tcpConn.SetNoDelay(true); err != nil {
		return err
	}
	if err := tcpConn.SetKeepAlive(true); err != nil {
		return err
	}
	if err := tcpConn.SetKeepAlivePeriod(30 * time.Second); err != nil {
		return err
	}
	if err := tcpConn.SetReadBuffer(socketBufferSize); err != nil {
		return err
	}
	return tcpConn.SetWriteBuffer(socketBufferSize)
}

// Stats is a point-in-time view of the server counters.
type Stats struct {
	ActiveConnections int64  `json:"active_connections"`
	TotalConnections  uint64 `json:"total_connections"`
	OpsProcessed      uint64 `json:"ops_processed"`
	OpsErrors         uint64 `json:"ops_errors"`
	PoolRunning       int    `json:"pool_running"`
}

// Stats returns the current counters.
func (s *Server) Stats() Stats {
	st := Stats{
		ActiveConnections: s.activeConns.Load(),
		TotalConnections:  s.totalConns.Load(),
		OpsProcessed:      s.opsProcessed.Load(),
		OpsErrors:         s.opsErrors.Load(),
	}
	s.mu.Lock()
	if s.connPool != nil {
		st.PoolRunning = s.connPool.Running()
	}
	s.mu.Unlock()
	return st
}
