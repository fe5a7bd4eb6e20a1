package server

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/skshohagmiah/flindoc/internal/db"
	"github.com/skshohagmiah/flindoc/internal/dberr"
	"github.com/skshohagmiah/flindoc/pkg/client"
	"github.com/skshohagmiah/flindoc/pkg/protocol"
)

// startServer runs a server on a loopback port for the duration of the test.
func startServer(t *testing.T, cfg Config) (*Server, *client.Client) {
	t.Helper()
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:0"
	}
	srv := New(db.New(), cfg)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { srv.Stop() })

	c, err := client.Dial(srv.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return srv, c
}

func seedMovies(t *testing.T, c *client.Client) *client.Collection {
	t.Helper()
	movies := c.Collection("movies")
	ids, err := movies.InsertMany(context.Background(), []any{
		bson.D{{Key: "title", Value: "The Matrix"}, {Key: "year", Value: 1999}, {Key: "genres", Value: bson.A{"Action", "Sci-Fi"}}, {Key: "rating", Value: 8.7}},
		bson.D{{Key: "title", Value: "Inception"}, {Key: "year", Value: 2010}, {Key: "genres", Value: bson.A{"Action", "Thriller"}}, {Key: "rating", Value: 8.8}},
		bson.D{{Key: "title", Value: "Annie Hall"}, {Key: "year", Value: 1977}, {Key: "genres", Value: bson.A{"Comedy"}}, {Key: "rating", Value: 8.0}},
		bson.D{{Key: "title", Value: "Gen Z"}, {Key: "year", Value: 2024}},
	})
	require.NoError(t, err)
	require.Len(t, ids, 4)
	return movies
}

// TestClientServerRoundTrip exercises every operation over TCP.
func TestClientServerRoundTrip(t *testing.T) {
	ctx := context.Background()
	srv, c := startServer(t, Config{})
	movies := seedMovies(t, c)

	docs, err := movies.Find(ctx, bson.D{{Key: "genres", Value: "Action"}}, client.FindOptions{
		Projection: bson.D{{Key: "_id", Value: 0}, {Key: "title", Value: 1}},
		Sort:       bson.D{{Key: "rating", Value: -1}},
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, `{"title":"Inception"}`, docs[0].String())
	assert.Equal(t, `{"title":"The Matrix"}`, docs[1].String())

	one, err := movies.FindOne(ctx, bson.D{{Key: "year", Value: bson.D{{Key: "$lt", Value: 1990}}}})
	require.NoError(t, err)
	require.NotNil(t, one)
	assert.Equal(t, "Annie Hall", one.Get("title").Str())
	assert.Equal(t, "objectId", one.Get("_id").Kind().String())

	none, err := movies.FindOne(ctx, bson.D{{Key: "title", Value: "Missing"}})
	require.NoError(t, err)
	assert.Nil(t, none)

	res, err := movies.UpdateMany(ctx, bson.D{{Key: "rating", Value: bson.D{{Key: "$gte", Value: 8.5}}}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "rating", Value: 0.1}}}}, false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.MatchedCount)
	assert.Equal(t, int64(2), res.ModifiedCount)

	res, err = movies.UpdateOne(ctx, bson.D{{Key: "title", Value: "Tenet"}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "year", Value: 2020}}}}, true)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.MatchedCount)
	assert.False(t, res.UpsertedID.IsAbsent())

	n, err := movies.CountDocuments(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	agg, err := movies.Aggregate(ctx, bson.A{
		bson.D{{Key: "$unwind", Value: "$genres"}},
		bson.D{{Key: "$group", Value: bson.D{{Key: "_id", Value: "$genres"}, {Key: "n", Value: bson.D{{Key: "$sum", Value: 1}}}}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "n", Value: -1}, {Key: "_id", Value: 1}}}},
		bson.D{{Key: "$limit", Value: 2}},
	})
	require.NoError(t, err)
	require.Len(t, agg, 2)
	assert.Equal(t, `{"_id":"Action","n":2}`, agg[0].String())
	assert.Equal(t, `{"_id":"Comedy","n":1}`, agg[1].String())

	deleted, err := movies.DeleteMany(ctx, bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "genres", Value: bson.D{{Key: "$exists", Value: false}}}},
		bson.D{{Key: "genres", Value: bson.D{{Key: "$size", Value: 0}}}},
	}}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	deleted, err = movies.DeleteOne(ctx, bson.D{{Key: "genres", Value: "Comedy"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = c.Collection("comments").InsertOne(ctx, bson.D{{Key: "text", Value: "hi"}})
	require.NoError(t, err)
	names, err := c.ListCollections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"comments", "movies"}, names)

	require.NoError(t, c.Collection("comments").Drop(ctx))
	names, err = c.ListCollections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"movies"}, names)

	st := srv.Stats()
	assert.GreaterOrEqual(t, st.OpsProcessed, uint64(12))
	assert.Equal(t, uint64(0), st.OpsErrors)
}

// TestErrorsCrossTheWire checks that server errors keep their kind.
func TestErrorsCrossTheWire(t *testing.T) {
	ctx := context.Background()
	srv, c := startServer(t, Config{})
	movies := seedMovies(t, c)

	_, err := movies.Find(ctx, bson.D{{Key: "title", Value: bson.D{{Key: "$regex", Value: "M"}}}})
	assert.ErrorIs(t, err, dberr.ErrValidation)

	_, err = movies.Aggregate(ctx, bson.A{bson.D{{Key: "$lookup", Value: bson.D{}}}})
	assert.ErrorIs(t, err, dberr.ErrValidation)

	_, err = c.Collection("bad$name").CountDocuments(ctx, nil)
	assert.ErrorIs(t, err, dberr.ErrInvalidCollection)

	one, err := movies.FindOne(ctx, bson.D{{Key: "title", Value: "The Matrix"}})
	require.NoError(t, err)
	id := one.Get("_id")

	// The first document is stored, the duplicate stops the batch.
	ids, err := movies.InsertMany(ctx, []any{
		bson.D{{Key: "title", Value: "Heat"}},
		bson.D{{Key: "_id", Value: id}, {Key: "title", Value: "Copy"}},
		bson.D{{Key: "title", Value: "Never"}},
	})
	assert.ErrorIs(t, err, dberr.ErrDuplicateKey)
	assert.Len(t, ids, 1)

	// $inc on a title fails for each document; failed documents are in
	// neither count.
	res, err := movies.UpdateMany(ctx, bson.D{{Key: "year", Value: bson.D{{Key: "$gt", Value: 2000}}}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "title", Value: 1}}}}, false)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.MatchedCount)
	assert.Equal(t, int64(0), res.ModifiedCount)
	assert.Len(t, res.Failures, 2)

	n, err := movies.CountDocuments(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.GreaterOrEqual(t, srv.Stats().OpsErrors, uint64(3))
}

// TestMalformedFrameClosesConnection sends an unknown opcode on a raw socket.
func TestMalformedFrameClosesConnection(t *testing.T) {
	srv, _ := startServer(t, Config{})

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte{0x7f, 0, 0, 0, 0})
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	r := bufio.NewReader(conn)
	resp, err := protocol.ReadResponse(r)
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusError, resp.Status)

	var body protocol.ErrorBody
	require.NoError(t, protocol.Unmarshal(resp.Payload, &body))
	assert.Contains(t, body.Message, "unknown opcode")

	_, err = protocol.ReadResponse(r)
	assert.Error(t, err, "connection should be closed after a bad frame")
}

// TestBoundedConnectionPool runs concurrent clients through an ants pool.
func TestBoundedConnectionPool(t *testing.T) {
	ctx := context.Background()
	srv, _ := startServer(t, Config{MaxConnections: 8})

	// Pooled client connections stay open, so the client must not
	// outnumber the server's handlers.
	opts := client.DefaultOptions(srv.Addr().String())
	opts.MaxConns = 4
	c, err := client.New(opts)
	require.NoError(t, err)
	defer c.Close()
	movies := c.Collection("bench")

	errs := make(chan error, 16)
	for w := 0; w < 16; w++ {
		go func(w int) {
			_, err := movies.InsertOne(ctx, bson.D{{Key: "worker", Value: w}})
			errs <- err
		}(w)
	}
	for i := 0; i < 16; i++ {
		require.NoError(t, <-errs)
	}
	var n int64
	n, err = movies.CountDocuments(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(16), n)
	assert.LessOrEqual(t, srv.Stats().PoolRunning, 8)
}

// TestMetricsRecordRequests reads the collectors back from the registry.
func TestMetricsRecordRequests(t *testing.T) {
	ctx := context.Background()
	srv, c := startServer(t, Config{})
	seedMovies(t, c)
	_, err := c.Collection("movies").Find(ctx, bson.D{{Key: "$bogus", Value: 1}})
	require.Error(t, err)

	families, err := srv.Metrics().Registry().Gather()
	require.NoError(t, err)

	requests := map[string]float64{}
	var written float64
	for _, mf := range families {
		switch mf.GetName() {
		case "flindoc_requests_total":
			for _, m := range mf.GetMetric() {
				var op, status string
				for _, l := range m.GetLabel() {
					switch l.GetName() {
					case "op":
						op = l.GetValue()
					case "status":
						status = l.GetValue()
					}
				}
				requests[op+"/"+status] = m.GetCounter().GetValue()
			}
		case "flindoc_documents_written_total":
			for _, m := range mf.GetMetric() {
				written += m.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, float64(1), requests["insert/ok"])
	assert.Equal(t, float64(1), requests["find/validation"])
	assert.Equal(t, float64(4), written)
}

func TestStopIsIdempotent(t *testing.T) {
	srv := New(db.New(), Config{Addr: "127.0.0.1:0"})
	assert.Nil(t, srv.Addr())
	require.NoError(t, srv.Start())
	require.NoError(t, srv.Start())
	addr := srv.Addr().String()
	require.NoError(t, srv.Stop())
	require.NoError(t, srv.Stop())

	_, err := net.DialTimeout("tcp", addr, time.Second)
	assert.Error(t, err)
}

// TestAdmitAfterStopClosesConnection covers a connection accepted while Stop
// is closing the session set.
func TestAdmitAfterStopClosesConnection(t *testing.T) {
	srv := New(db.New(), Config{Addr: "127.0.0.1:0"})
	require.NoError(t, srv.Start())
	require.NoError(t, srv.Stop())

	local, remote := net.Pipe()
	defer remote.Close()
	sess, ok := srv.admit(local)
	assert.False(t, ok)
	assert.Nil(t, sess)
	assert.Equal(t, int64(0), srv.Stats().ActiveConnections)

	srv.connMu.Lock()
	assert.Empty(t, srv.sessions)
	srv.connMu.Unlock()

	// The far end sees the close instead of waiting for a read timeout.
	_, err := remote.Read(make([]byte, 1))
	assert.Error(t, err)
}

func TestAdmitWhileRunning(t *testing.T) {
	srv := New(db.New(), Config{Addr: "127.0.0.1:0"})
	require.NoError(t, srv.Start())
	defer srv.Stop()

	local, remote := net.Pipe()
	defer remote.Close()
	sess, ok := srv.admit(local)
	require.True(t, ok)
	assert.Equal(t, int64(1), srv.Stats().ActiveConnections)
	srv.closeSession(sess)
	assert.Equal(t, int64(0), srv.Stats().ActiveConnections)
}
