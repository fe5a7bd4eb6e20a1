// Package storage persists collections behind the Store interface.
//
// Memory keeps nothing and is the default for embedded use. Badger writes
// every document under doc:{collection}:{seq} so a reopened database sees
// its collections in insertion order.
package storage

import (
	"context"

	"github.com/skshohagmiah/flindoc/pkg/document"
)

// Record is a stored document plus its insertion sequence within the
// collection.
type Record struct {
	Seq uint64
	Doc *document.Document
}

// Store is the persistence collaborator of a database. Implementations must
// be safe for concurrent use. Errors are reported as-is; the caller treats
// any failure as the store being unavailable.
type Store interface {
	// Collections lists the names of the persisted collections.
	Collections(ctx context.Context) ([]string, error)
	// Load returns the records of one collection ordered by Seq.
	Load(ctx context.Context, collection string) ([]Record, error)
	Put(ctx context.Context, collection string, rec Record) error
	// PutBatch writes all records or none.
	PutBatch(ctx context.Context, collection string, recs []Record) error
	Delete(ctx context.Context, collection string, seq uint64) error
	DeleteBatch(ctx context.Context, collection string, seqs []uint64) error
	// Drop removes a whole collection.
	Drop(ctx context.Context, collection string) error
	Close() error
}

// Memory is a Store that keeps nothing. Collections live only in the
// database's own memory.
type Memory struct{}

// NewMemory returns the no-op store.
func NewMemory() *Memory { return &Memory{} }

func (*Memory) Collections(context.Context) ([]string, error)       { return nil, nil }
func (*Memory) Load(context.Context, string) ([]Record, error)      { return nil, nil }
func (*Memory) Put(context.Context, string, Record) error           { return nil }
func (*Memory) PutBatch(context.Context, string, []Record) error    { return nil }
func (*Memory) Delete(context.Context, string, uint64) error        { return nil }
func (*Memory) DeleteBatch(context.Context, string, []uint64) error { return nil }
func (*Memory) Drop(context.Context, string) error                  { return nil }
func (*Memory) Close() error                                        { return nil }
