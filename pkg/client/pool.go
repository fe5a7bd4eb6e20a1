package client

import (
	"context"
	"errors"
	"sync"
)

// ErrPoolClosed is returned by a closed pool.
var ErrPoolClosed = errors.New("pool is closed")

// pool keeps up to MaxConns connections to one server.
type pool struct {
	opts  *Options
	conns chan *conn

	mu     sync.Mutex
	closed bool
	active int
}

func newPool(o *Options) (*pool, error) {
	p := &pool{
		opts:  o,
		conns: make(chan *conn, o.MaxConns),
	}
	for i := 0; i < o.MinConns; i++ {
		c, err := dial(o)
		if err != nil {
			p.close()
			return nil, err
		}
		p.conns <- c
		p.active++
	}
	return p, nil
}

// get returns an idle connection, dials a new one below the cap, or waits
// for one to be returned.
func (p *pool) get(ctx context.Context) (*conn, error) {
	for {
		select {
		case c, ok := <-p.conns:
			if !ok {
				return nil, ErrPoolClosed
			}
			if c.usable(p.opts.MaxIdleTime) {
				return c, nil
			}
			p.discard(c)
			continue
		default:
		}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}
		if p.active < p.opts.MaxConns {
			p.active++
			p.mu.Unlock()
			c, err := dial(p.opts)
			if err != nil {
				p.mu.Lock()
				p.active--
				p.mu.Unlock()
				return nil, err
			}
			return c, nil
		}
		p.mu.Unlock()

		select {
		case c, ok := <-p.conns:
			if !ok {
				return nil, ErrPoolClosed
			}
			if c.usable(p.opts.MaxIdleTime) {
				return c, nil
			}
			p.discard(c)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// put hands a connection back. Broken connections are dropped.
func (p *pool) put(c *conn) {
	if c == nil {
		return
	}
	if !c.usable(0) {
		p.discard(c)
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		c.Close()
		p.active--
		return
	}
	select {
	case p.conns <- c:
	default:
		c.Close()
		p.active--
	}
}

func (p *pool) discard(c *conn) {
	c.Close()
	p.mu.Lock()
	p.active--
	p.mu.Unlock()
}

func (p *pool) close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.conns)
	p.mu.Unlock()

	for c := range p.conns {
		c.Close()
	}
	return nil
}

// PoolStats describes the connection pool.
type PoolStats struct {
	Active int
	Idle   int
	Max    int
}

func (p *pool) stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{Active: p.active, Idle: len(p.conns), Max: p.opts.MaxConns}
}
