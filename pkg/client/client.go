// Package client is a Go client for a flindoc server.
//
//	c, err := client.Dial("localhost:7380")
//	if err != nil { ... }
//	defer c.Close()
//	movies := c.Collection("movies")
//	id, err := movies.InsertOne(ctx, bson.D{{Key: "title", Value: "The Matrix"}})
//
// Filters, updates, projections and pipelines accept the same Go values as
// the embedded engine: bson.D, bson.M, *document.Document and so on.
package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/skshohagmiah/flindoc/internal/dberr"
	"github.com/skshohagmiah/flindoc/pkg/document"
	"github.com/skshohagmiah/flindoc/pkg/protocol"
)

// ErrNotFound is returned for a StatusNotFound response.
var ErrNotFound = errors.New("not found")

// Options configure a Client.
type Options struct {
	Address      string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MinConns     int
	MaxConns     int
	MaxIdleTime  time.Duration
	BufferSize   int
}

// DefaultOptions returns options for address.
func DefaultOptions(address string) *Options {
	return &Options{
		Address:      address,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Second,
		MinConns:     1,
		MaxConns:     16,
		MaxIdleTime:  5 * time.Minute,
		BufferSize:   64 << 10,
	}
}

func (o *Options) validate() error {
	if o.Address == "" {
		return errors.New("client: address is required")
	}
	if o.MinConns < 0 || o.MaxConns < 1 || o.MaxConns < o.MinConns {
		return fmt.Errorf("client: invalid pool size %d..%d", o.MinConns, o.MaxConns)
	}
	if o.BufferSize <= 0 {
		o.BufferSize = 64 << 10
	}
	return nil
}

// Client is safe for concurrent use. Each call borrows a pooled connection
// for one request/response exchange.
type Client struct {
	pool *pool
}

// Dial connects with DefaultOptions.
func Dial(address string) (*Client, error) {
	return New(DefaultOptions(address))
}

// New connects with opts.
func New(opts *Options) (*Client, error) {
	if opts == nil {
		return nil, errors.New("client: options cannot be nil")
	}
	o := *opts
	if err := o.validate(); err != nil {
		return nil, err
	}
	p, err := newPool(&o)
	if err != nil {
		return nil, err
	}
	return &Client{pool: p}, nil
}

// Close closes every pooled connection.
func (c *Client) Close() error { return c.pool.close() }

// Stats reports pool usage.
func (c *Client) Stats() PoolStats { return c.pool.stats() }

// Collection returns a handle for name. No round trip is made.
func (c *Client) Collection(name string) *Collection {
	return &Collection{client: c, name: name}
}

// ListCollections returns the server's collection names, sorted.
func (c *Client) ListCollections(ctx context.Context) ([]string, error) {
	var out protocol.ListResult
	if err := c.call(ctx, protocol.OpDocList, "", nil, &out, true); err != nil {
		return nil, err
	}
	return out.Collections, nil
}

// call sends one request and decodes a StatusOK payload into out. Read-only
// requests are retried once on a fresh connection after a transport error.
func (c *Client) call(ctx context.Context, op byte, coll string, body, out any, retry bool) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = protocol.Marshal(body); err != nil {
			return err
		}
	}
	frame, err := protocol.EncodeRequest(op, coll, payload)
	if err != nil {
		return err
	}

	attempts := 1
	if retry {
		attempts = 2
	}
	var resp *protocol.Response
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		cn, err := c.pool.get(ctx)
		if err != nil {
			return err
		}
		resp, err = cn.roundTrip(frame)
		c.pool.put(cn)
		if err == nil {
			break
		}
		if i == attempts-1 {
			return fmt.Errorf("%s: %w", protocol.OpName(op), err)
		}
	}

	switch resp.Status {
	case protocol.StatusOK:
		return protocol.Unmarshal(resp.Payload, out)
	case protocol.StatusNotFound:
		return ErrNotFound
	}
	var eb protocol.ErrorBody
	if err := protocol.Unmarshal(resp.Payload, &eb); err != nil {
		return err
	}
	return eb.Err()
}

// toDocument converts an optional argument. nil stays nil.
func toDocument(op string, v any) (*document.Document, error) {
	if v == nil {
		return nil, nil
	}
	if d, ok := v.(*document.Document); ok {
		return d, nil
	}
	d, err := document.ToDocument(v)
	if err != nil {
		return nil, dberr.Invalid(op, "%v", err)
	}
	return d, nil
}
