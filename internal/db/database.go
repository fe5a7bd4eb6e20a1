// Package db holds named collections of documents and the operations on
// them: insert, find, update, delete and aggregate.
//
// A Database keeps every collection in memory. Writes go to the configured
// storage.Store before they become visible, so a Database opened over a
// persistent store comes back with the same documents in the same order.
package db

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/skshohagmiah/flindoc/internal/dberr"
	"github.com/skshohagmiah/flindoc/internal/storage"
)

// Database is a set of named collections sharing one store.
type Database struct {
	mu     sync.RWMutex
	colls  map[string]*Collection
	closed bool

	store storage.Store
	ids   IDGenerator
	log   *zap.Logger
}

// Option configures a Database.
type Option func(*Database)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(d *Database) {
		if l != nil {
			d.log = l
		}
	}
}

// WithStore sets the persistence collaborator. The default keeps nothing.
func WithStore(s storage.Store) Option {
	return func(d *Database) {
		if s != nil {
			d.store = s
		}
	}
}

// WithIDGenerator sets how missing identifiers are generated.
func WithIDGenerator(g IDGenerator) Option {
	return func(d *Database) {
		if g != nil {
			d.ids = g
		}
	}
}

// New returns an empty Database. It does not read from the store; use Open
// for that.
func New(opts ...Option) *Database {
	d := &Database{
		colls: make(map[string]*Collection),
		store: storage.NewMemory(),
		ids:   ObjectIDGenerator{},
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.log = d.log.Named("db")
	return d
}

// Open returns a Database populated from its store.
func Open(ctx context.Context, opts ...Option) (*Database, error) {
	d := New(opts...)
	names, err := d.store.Collections(ctx)
	if err != nil {
		return nil, dberr.Unavailable(fmt.Errorf("list collections: %w", err))
	}
	for _, name := range names {
		recs, err := d.store.Load(ctx, name)
		if err != nil {
			return nil, dberr.Unavailable(fmt.Errorf("load %s: %w", name, err))
		}
		c := d.Collection(name)
		c.restore(recs)
		d.log.Info("collection restored", zap.String("collection", name), zap.Int("documents", len(recs)))
	}
	return d, nil
}

// Collection returns the named collection, creating an empty one on first
// use. Invalid names are reported by the collection's operations.
func (d *Database) Collection(name string) *Collection {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.colls[name]; ok {
		return c
	}
	c := newCollection(d, name)
	d.colls[name] = c
	return c
}

// ListCollectionNames returns the names of collections that hold or have
// held documents, sorted.
func (d *Database) ListCollectionNames(ctx context.Context) ([]string, error) {
	if err := d.check(ctx); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.colls))
	for name, c := range d.colls {
		if c.exists() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// DropCollection removes every document of a collection. Existing handles
// stay usable and see an empty collection.
func (d *Database) DropCollection(ctx context.Context, name string) error {
	if err := d.check(ctx); err != nil {
		return err
	}
	if err := validateCollectionName(name); err != nil {
		return err
	}
	d.mu.RLock()
	c, ok := d.colls[name]
	d.mu.RUnlock()
	if !ok {
		return nil
	}
	return c.Drop(ctx)
}

// Close closes the store. Later operations fail with ErrClosed.
func (d *Database) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()
	if err := d.store.Close(); err != nil {
		return dberr.Unavailable(err)
	}
	return nil
}

func (d *Database) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.RLock()
	closed := d.closed
	d.mu.RUnlock()
	if closed {
		return dberr.Unavailable(ErrClosed)
	}
	return nil
}

func validateCollectionName(name string) error {
	if name == "" || strings.ContainsAny(name, ":$\x00") {
		return fmt.Errorf("%w: %q", dberr.ErrInvalidCollection, name)
	}
	return nil
}
