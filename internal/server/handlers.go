package server

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/skshohagmiah/flindoc/internal/db"
	"github.com/skshohagmiah/flindoc/internal/dberr"
	"github.com/skshohagmiah/flindoc/pkg/document"
	"github.com/skshohagmiah/flindoc/pkg/protocol"
)

// dispatch runs one request and returns the encoded response frame.
func (s *Server) dispatch(ctx context.Context, sess *session, req *protocol.Request) []byte {
	start := time.Now()
	op := protocol.OpName(req.OpCode)

	body, written, err := s.handle(ctx, req)
	var (
		frame  []byte
		status = "ok"
	)
	switch {
	case err != nil:
		status = dberr.Code(err)
		frame = protocol.EncodeErrorResponse(err)
		s.opsErrors.Add(1)
		sess.log.Debug("request failed", zap.String("op", op), zap.String("collection", req.Collection), zap.Error(err))
	case body == nil:
		status = "not_found"
		frame = protocol.EncodeNotFoundResponse()
	default:
		frame, err = protocol.EncodeBodyResponse(body)
		if err != nil {
			status = dberr.Code(err)
			frame = protocol.EncodeErrorResponse(err)
			s.opsErrors.Add(1)
			sess.log.Error("encode response", zap.String("op", op), zap.Error(err))
		}
	}

	elapsed := time.Since(start)
	s.opsProcessed.Add(1)
	s.metrics.observe(op, status, elapsed.Seconds())
	s.metrics.written(op, written)
	sess.log.Debug("request", zap.String("op", op), zap.String("collection", req.Collection), zap.String("status", status), zap.Duration("duration", elapsed))
	return frame
}

// handle decodes the request body and runs the operation. A nil body with a
// nil error means not found. written counts the documents the call changed.
func (s *Server) handle(ctx context.Context, req *protocol.Request) (body any, written int64, err error) {
	if req.OpCode == protocol.OpDocList {
		names, err := s.db.ListCollectionNames(ctx)
		if err != nil {
			return nil, 0, err
		}
		return &protocol.ListResult{Collections: names}, 0, nil
	}

	coll := s.db.Collection(req.Collection)
	switch req.OpCode {
	case protocol.OpDocInsert:
		return s.handleInsert(ctx, coll, req.Body)
	case protocol.OpDocFind:
		return s.handleFind(ctx, coll, req.Body)
	case protocol.OpDocUpdate:
		return s.handleUpdate(ctx, coll, req.Body)
	case protocol.OpDocDelete:
		return s.handleDelete(ctx, coll, req.Body)
	case protocol.OpDocAggregate:
		return s.handleAggregate(ctx, coll, req.Body)
	case protocol.OpDocCount:
		return s.handleCount(ctx, coll, req.Body)
	case protocol.OpDocDrop:
		if err := s.db.DropCollection(ctx, req.Collection); err != nil {
			return nil, 0, err
		}
		return struct{}{}, 0, nil
	}
	return nil, 0, dberr.Invalid("request", "unknown opcode 0x%02x", req.OpCode)
}

func decodeBody(op string, data []byte, v any) error {
	if err := protocol.Unmarshal(data, v); err != nil {
		return dberr.Invalid(op, "%v", err)
	}
	return nil
}

func (s *Server) handleInsert(ctx context.Context, coll *db.Collection, data []byte) (any, int64, error) {
	var in protocol.InsertBody
	if err := decodeBody("insert", data, &in); err != nil {
		return nil, 0, err
	}
	if len(in.Documents) == 0 {
		return nil, 0, dberr.Invalid("insert", "no documents")
	}
	docs := make([]any, len(in.Documents))
	for i, d := range in.Documents {
		docs[i] = d
	}
	res, err := coll.InsertMany(ctx, docs)
	if res == nil {
		return nil, 0, err
	}
	out := &protocol.InsertResult{InsertedIDs: res.InsertedIDs}
	if err != nil {
		// The valid prefix is stored; report it together with the error.
		if errors.Is(err, dberr.ErrStoreUnavailable) {
			return nil, 0, err
		}
		out.Error = protocol.NewErrorBody(err)
	}
	return out, int64(len(res.InsertedIDs)), nil
}

func (s *Server) handleFind(ctx context.Context, coll *db.Collection, data []byte) (any, int64, error) {
	var in protocol.FindBody
	if err := decodeBody("find", data, &in); err != nil {
		return nil, 0, err
	}
	opts := db.NewFindOptions()
	if in.Projection != nil {
		opts.SetProjection(in.Projection)
	}
	if in.Sort != nil {
		opts.SetSort(in.Sort)
	}
	if in.Skip != 0 {
		opts.SetSkip(in.Skip)
	}
	if in.Limit != 0 {
		opts.SetLimit(in.Limit)
	}
	cur, err := coll.Find(ctx, optional(in.Filter), opts)
	if err != nil {
		return nil, 0, err
	}
	docs, err := cur.All(ctx)
	if err != nil {
		return nil, 0, err
	}
	return &protocol.DocumentsResult{Documents: nonNil(docs)}, 0, nil
}

func (s *Server) handleUpdate(ctx context.Context, coll *db.Collection, data []byte) (any, int64, error) {
	var in protocol.UpdateBody
	if err := decodeBody("update", data, &in); err != nil {
		return nil, 0, err
	}
	if in.Update == nil {
		return nil, 0, dberr.Invalid("update", "missing update document")
	}
	opts := db.NewUpdateOptions().SetUpsert(in.Upsert)

	var (
		res *db.UpdateResult
		err error
	)
	if in.Multi {
		res, err = coll.UpdateMany(ctx, optional(in.Filter), in.Update, opts)
	} else {
		res, err = coll.UpdateOne(ctx, optional(in.Filter), in.Update, opts)
		var opErr *dberr.OperationError
		if errors.As(err, &opErr) && res != nil {
			// Reported through Failures like UpdateMany.
			err = nil
		}
	}
	if err != nil {
		return nil, 0, err
	}

	out := &protocol.UpdateResult{Matched: res.MatchedCount, Modified: res.ModifiedCount}
	written := res.ModifiedCount
	if !res.UpsertedID.IsAbsent() {
		id := res.UpsertedID
		out.UpsertedID = &id
		written++
	}
	for _, f := range res.Failures {
		out.Failures = append(out.Failures, protocol.Failure{ID: f.ID, Message: f.Error()})
	}
	return out, written, nil
}

func (s *Server) handleDelete(ctx context.Context, coll *db.Collection, data []byte) (any, int64, error) {
	var in protocol.DeleteBody
	if err := decodeBody("delete", data, &in); err != nil {
		return nil, 0, err
	}
	var (
		res *db.DeleteResult
		err error
	)
	if in.Multi {
		res, err = coll.DeleteMany(ctx, optional(in.Filter))
	} else {
		res, err = coll.DeleteOne(ctx, optional(in.Filter))
	}
	if err != nil {
		return nil, 0, err
	}
	return &protocol.DeleteResult{Deleted: res.DeletedCount}, res.DeletedCount, nil
}

func (s *Server) handleAggregate(ctx context.Context, coll *db.Collection, data []byte) (any, int64, error) {
	var in protocol.AggregateBody
	if err := decodeBody("aggregate", data, &in); err != nil {
		return nil, 0, err
	}
	stages := make([]any, len(in.Pipeline))
	for i, st := range in.Pipeline {
		if st == nil {
			return nil, 0, dberr.Invalid("aggregate", "stage %d is null", i)
		}
		stages[i] = st
	}
	cur, err := coll.Aggregate(ctx, stages)
	if err != nil {
		return nil, 0, err
	}
	docs, err := cur.All(ctx)
	if err != nil {
		return nil, 0, err
	}
	return &protocol.DocumentsResult{Documents: nonNil(docs)}, 0, nil
}

func (s *Server) handleCount(ctx context.Context, coll *db.Collection, data []byte) (any, int64, error) {
	var in protocol.CountBody
	if err := decodeBody("count", data, &in); err != nil {
		return nil, 0, err
	}
	n, err := coll.CountDocuments(ctx, optional(in.Filter))
	if err != nil {
		return nil, 0, err
	}
	return &protocol.CountResult{Count: n}, 0, nil
}

// optional keeps a missing document from reaching the parsers as a typed nil.
func optional(d *document.Document) any {
	if d == nil {
		return nil
	}
	return d
}

func nonNil(docs []*document.Document) []*document.Document {
	if docs == nil {
		return []*document.Document{}
	}
	return docs
}
