package storage

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/skshohagmiah/flindoc/pkg/document"
)

const docPrefix = "doc:"

// BadgerOptions configures a Badger store.
type BadgerOptions struct {
	// Dir is the data directory. Ignored when InMemory is set.
	Dir        string
	InMemory   bool
	SyncWrites bool
	Logger     *zap.Logger
}

// Badger stores each document as a BSON value under doc:{collection}:{seq},
// seq being 16 hex digits so key order matches insertion order.
type Badger struct {
	db  *badger.DB
	log *zap.Logger
}

// OpenBadger opens (or creates) a Badger store.
func OpenBadger(o BadgerOptions) (*Badger, error) {
	log := o.Logger
	if log == nil {
		log = zap.NewNop()
	}
	opts := badger.DefaultOptions(o.Dir)
	if o.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = badgerLogger{log.Sugar().Named("badger")}

	// Documents are small and rewritten whole on every update.
	opts.NumVersionsToKeep = 1
	opts.NumLevelZeroTables = 10
	opts.NumLevelZeroTablesStall = 20
	opts.ValueThreshold = 1024
	opts.SyncWrites = o.SyncWrites
	opts.DetectConflicts = false
	opts.MemTableSize = 64 << 20

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}
	log.Info("badger store opened", zap.String("dir", o.Dir), zap.Bool("in_memory", o.InMemory))
	return &Badger{db: db, log: log}, nil
}

func collectionPrefix(collection string) []byte {
	return []byte(docPrefix + collection + ":")
}

func docKey(collection string, seq uint64) []byte {
	return fmt.Appendf(nil, "%s%s:%016x", docPrefix, collection, seq)
}

// Collections lists every collection holding at least one document.
func (b *Badger) Collections(ctx context.Context) ([]string, error) {
	var names []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(docPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(docPrefix)); it.Valid(); {
			if err := ctx.Err(); err != nil {
				return err
			}
			key := string(it.Item().Key())
			rest := strings.TrimPrefix(key, docPrefix)
			i := strings.LastIndexByte(rest, ':')
			if i < 0 {
				it.Next()
				continue
			}
			name := rest[:i]
			names = append(names, name)
			// Skip the remaining keys of this collection.
			it.Seek(append(collectionPrefix(name), 0xff))
		}
		return nil
	})
	return names, err
}

// Load reads a collection back in insertion order.
func (b *Badger) Load(ctx context.Context, collection string) ([]Record, error) {
	var recs []Record
	prefix := collectionPrefix(collection)
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			seq, err := strconv.ParseUint(string(item.Key()[len(prefix):]), 16, 64)
			if err != nil {
				return fmt.Errorf("malformed key %q: %w", item.Key(), err)
			}
			doc := document.New()
			if err := item.Value(doc.UnmarshalBSON); err != nil {
				return fmt.Errorf("decode %q: %w", item.Key(), err)
			}
			recs = append(recs, Record{Seq: seq, Doc: doc})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	b.log.Debug("collection loaded", zap.String("collection", collection), zap.Int("documents", len(recs)))
	return recs, nil
}

func (b *Badger) Put(ctx context.Context, collection string, rec Record) error {
	return b.PutBatch(ctx, collection, []Record{rec})
}

// PutBatch writes recs in one transaction.
func (b *Badger) PutBatch(ctx context.Context, collection string, recs []Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		for _, rec := range recs {
			data, err := rec.Doc.MarshalBSON()
			if err != nil {
				return fmt.Errorf("encode document %d: %w", rec.Seq, err)
			}
			if err := txn.Set(docKey(collection, rec.Seq), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *Badger) Delete(ctx context.Context, collection string, seq uint64) error {
	return b.DeleteBatch(ctx, collection, []uint64{seq})
}

// DeleteBatch removes the given sequences in one transaction.
func (b *Badger) DeleteBatch(ctx context.Context, collection string, seqs []uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		for _, seq := range seqs {
			if err := txn.Delete(docKey(collection, seq)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Drop deletes every key of the collection.
func (b *Badger) Drop(ctx context.Context, collection string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.DropPrefix(collectionPrefix(collection))
}

func (b *Badger) Close() error {
	return b.db.Close()
}

// badgerLogger routes badger's own logging through zap.
type badgerLogger struct {
	s *zap.SugaredLogger
}

func (l badgerLogger) Errorf(f string, args ...any)   { l.s.Errorf(strings.TrimSpace(f), args...) }
func (l badgerLogger) Warningf(f string, args ...any) { l.s.Warnf(strings.TrimSpace(f), args...) }
func (l badgerLogger) Infof(f string, args ...any)    { l.s.Debugf(strings.TrimSpace(f), args...) }
func (l badgerLogger) Debugf(f string, args ...any)   { l.s.Debugf(strings.TrimSpace(f), args...) }
