package client

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/skshohagmiah/flindoc/pkg/protocol"
)

// ErrConnClosed is returned when using a closed connection.
var ErrConnClosed = errors.New("connection closed")

// conn is a single TCP connection carrying one request at a time.
type conn struct {
	nc           net.Conn
	reader       *bufio.Reader
	writer       *bufio.Writer
	readTimeout  time.Duration
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
	broken bool
	idle   time.Time
}

func dial(o *Options) (*conn, error) {
	nc, err := net.DialTimeout("tcp", o.Address, o.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", o.Address, err)
	}
	if tcp, ok := nc.(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
		tcp.SetKeepAlive(true)
		tcp.SetKeepAlivePeriod(30 * time.Second)
	}
	return &conn{
		nc:           nc,
		reader:       bufio.NewReaderSize(nc, o.BufferSize),
		writer:       bufio.NewWriterSize(nc, o.BufferSize),
		readTimeout:  o.ReadTimeout,
		writeTimeout: o.WriteTimeout,
		idle:         time.Now(),
	}, nil
}

// roundTrip writes a request frame and reads its response. Any transport
// error marks the connection broken so the pool discards it.
func (c *conn) roundTrip(frame []byte) (*protocol.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrConnClosed
	}

	if c.writeTimeout > 0 {
		c.nc.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if _, err := c.writer.Write(frame); err != nil {
		c.broken = true
		return nil, err
	}
	if err := c.writer.Flush(); err != nil {
		c.broken = true
		return nil, err
	}

	if c.readTimeout > 0 {
		c.nc.SetReadDeadline(time.Now().Add(c.readTimeout))
	}
	resp, err := protocol.ReadResponse(c.reader)
	if err != nil {
		c.broken = true
		return nil, err
	}
	c.idle = time.Now()
	return resp, nil
}

func (c *conn) usable(maxIdle time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.broken {
		return false
	}
	return maxIdle <= 0 || time.Since(c.idle) < maxIdle
}

func (c *conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.nc.Close()
}
