package db

import (
	"context"
	"sync"

	"github.com/skshohagmiah/flindoc/pkg/document"
)

// Cursor is a single-use stream of result documents.
//
// A Cursor reads from a snapshot taken when it was created; later writes to
// the collection are not observed. Exhausting the cursor, an error, or Close
// releases the snapshot. Close may be called any number of times.
type Cursor struct {
	it      iterator
	current *document.Document
	err     error

	closeOnce sync.Once
	onClose   []func()
}

func newCursor(it iterator, onClose ...func()) *Cursor {
	return &Cursor{it: it, onClose: onClose}
}

// Next advances the cursor. It returns false once the stream is exhausted,
// the cursor is closed, or ctx is done; check Err to tell these apart.
func (c *Cursor) Next(ctx context.Context) bool {
	if c.it == nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		c.err = err
		c.release()
		return false
	}
	if !c.it.Next() {
		c.release()
		return false
	}
	c.current = c.it.Value()
	return true
}

// Current returns the document at the cursor, nil before the first Next.
// The document belongs to the caller.
func (c *Cursor) Current() *document.Document { return c.current }

// Decode unmarshals the current document into v through its bson encoding.
func (c *Cursor) Decode(v any) error {
	if c.current == nil {
		return ErrNoCurrent
	}
	return c.current.Decode(v)
}

// Err returns the error that stopped iteration, if any.
func (c *Cursor) Err() error { return c.err }

// All drains the cursor and closes it.
func (c *Cursor) All(ctx context.Context) ([]*document.Document, error) {
	defer c.Close(ctx)
	var out []*document.Document
	for c.Next(ctx) {
		out = append(out, c.current)
	}
	return out, c.err
}

// Close releases the cursor.
func (c *Cursor) Close(context.Context) error {
	c.release()
	return nil
}

func (c *Cursor) release() {
	c.closeOnce.Do(func() {
		if c.it != nil {
			c.it.Close()
			c.it = nil
		}
		for _, fn := range c.onClose {
			fn()
		}
	})
}
