package db

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/skshohagmiah/flindoc/internal/dberr"
	"github.com/skshohagmiah/flindoc/internal/storage"
	"github.com/skshohagmiah/flindoc/pkg/document"
)

// Helper function to create a collection preloaded with docs
func seeded(t *testing.T, docs ...any) *Collection {
	t.Helper()
	c := New().Collection("movies")
	if len(docs) > 0 {
		_, err := c.InsertMany(context.Background(), docs)
		require.NoError(t, err)
	}
	return c
}

func titles(t *testing.T, cur *Cursor) []string {
	t.Helper()
	docs, err := cur.All(context.Background())
	require.NoError(t, err)
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.Get("title").Str()
	}
	return out
}

func find(t *testing.T, c *Collection, filter any, opts ...*FindOptions) []string {
	t.Helper()
	cur, err := c.Find(context.Background(), filter, opts...)
	require.NoError(t, err)
	return titles(t, cur)
}

func TestInsertAssignsID(t *testing.T) {
	ctx := context.Background()
	c := seeded(t)
	res, err := c.InsertOne(ctx, bson.D{{Key: "title", Value: "Inception"}})
	require.NoError(t, err)
	assert.Equal(t, document.KindObjectID, res.InsertedID.Kind())

	got, err := c.FindOne(ctx, bson.D{{Key: "_id", Value: res.InsertedID.ObjectID()}})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{"_id", "title"}, got.Keys())
}

func TestInsertCopiesInput(t *testing.T) {
	ctx := context.Background()
	c := seeded(t)
	doc := document.D("title", "Memento", "year", 2000)
	_, err := c.InsertOne(ctx, doc)
	require.NoError(t, err)
	assert.False(t, doc.Has("_id"))

	doc.Set("year", document.Int(1900))
	got, err := c.FindOne(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, float64(2000), got.Get("year").Number())

	got.Set("year", document.Int(1))
	again, err := c.FindOne(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, float64(2000), again.Get("year").Number())
}

func TestInsertDuplicateID(t *testing.T) {
	ctx := context.Background()
	c := seeded(t, bson.D{{Key: "_id", Value: 1}, {Key: "title", Value: "a"}})

	_, err := c.InsertOne(ctx, bson.D{{Key: "_id", Value: 1}})
	assert.ErrorIs(t, err, dberr.ErrDuplicateKey)

	res, err := c.InsertMany(ctx, []any{
		bson.D{{Key: "_id", Value: 2}, {Key: "title", Value: "b"}},
		bson.D{{Key: "_id", Value: 2}, {Key: "title", Value: "c"}},
		bson.D{{Key: "_id", Value: 3}, {Key: "title", Value: "d"}},
	})
	assert.ErrorIs(t, err, dberr.ErrDuplicateKey)
	require.Len(t, res.InsertedIDs, 1)
	assert.Equal(t, float64(2), res.InsertedIDs[0].Number())
	assert.Equal(t, []string{"a", "b"}, find(t, c, nil))
}

func TestInsertValidation(t *testing.T) {
	ctx := context.Background()
	c := seeded(t)
	_, err := c.InsertOne(ctx, bson.D{{Key: "$set", Value: 1}})
	assert.ErrorIs(t, err, dberr.ErrValidation)
	_, err = c.InsertOne(ctx, bson.D{{Key: "_id", Value: bson.A{1}}})
	assert.ErrorIs(t, err, dberr.ErrValidation)
	_, err = c.InsertOne(ctx, "not a document")
	assert.ErrorIs(t, err, dberr.ErrValidation)

	_, err = New().Collection("bad$name").InsertOne(ctx, bson.D{})
	assert.ErrorIs(t, err, dberr.ErrInvalidCollection)
}

func TestEqualityMatchesScalarOrElement(t *testing.T) {
	c := seeded(t,
		bson.D{{Key: "title", Value: "scalar"}, {Key: "genres", Value: "Action"}},
		bson.D{{Key: "title", Value: "array"}, {Key: "genres", Value: bson.A{"Drama", "Action"}}},
		bson.D{{Key: "title", Value: "other"}, {Key: "genres", Value: bson.A{"Drama"}}},
		bson.D{{Key: "title", Value: "missing"}},
	)
	assert.Equal(t, []string{"scalar", "array"}, find(t, c, bson.D{{Key: "genres", Value: "Action"}}))
	assert.Equal(t, []string{"array"}, find(t, c, bson.D{{Key: "genres", Value: bson.A{"Drama", "Action"}}}))
}

func TestAllWithSize(t *testing.T) {
	c := seeded(t,
		bson.D{{Key: "title", Value: "Toy Story"}, {Key: "cast", Value: bson.A{"Tom Hanks", "Tim Allen"}}},
		bson.D{{Key: "title", Value: "Toy Story 2"}, {Key: "cast", Value: bson.A{"Tim Allen", "Tom Hanks", "Joan Cusack"}}},
		bson.D{{Key: "title", Value: "Reversed"}, {Key: "cast", Value: bson.A{"Tim Allen", "Tom Hanks"}}},
		bson.D{{Key: "title", Value: "Big"}, {Key: "cast", Value: bson.A{"Tom Hanks", "Elizabeth Perkins"}}},
	)
	filter := bson.D{{Key: "cast", Value: bson.D{
		{Key: "$all", Value: bson.A{"Tom Hanks", "Tim Allen"}},
		{Key: "$size", Value: 2},
	}}}
	assert.Equal(t, []string{"Toy Story", "Reversed"}, find(t, c, filter))
}

func TestFindSortProjectLimit(t *testing.T) {
	c := seeded(t,
		bson.D{{Key: "title", Value: "Inception"}, {Key: "year", Value: 2010}, {Key: "rating", Value: 8.8}},
		bson.D{{Key: "title", Value: "Memento"}, {Key: "year", Value: 2000}, {Key: "rating", Value: 8.5}},
		bson.D{{Key: "title", Value: "Unknown"}},
		bson.D{{Key: "title", Value: "The Dark Knight"}, {Key: "year", Value: 2008}, {Key: "rating", Value: 9.0}},
	)
	opts := NewFindOptions().
		SetSort(bson.D{{Key: "year", Value: -1}}).
		SetProjection(bson.D{{Key: "_id", Value: 0}, {Key: "title", Value: 1}}).
		SetLimit(2)
	cur, err := c.Find(context.Background(), nil, opts)
	require.NoError(t, err)
	docs, err := cur.All(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, `{"title":"Inception"}`, docs[0].String())
	assert.Equal(t, `{"title":"The Dark Knight"}`, docs[1].String())

	// Missing fields sort first ascending.
	asc := find(t, c, nil, NewFindOptions().SetSort(bson.D{{Key: "year", Value: 1}}))
	assert.Equal(t, []string{"Unknown", "Memento", "The Dark Knight", "Inception"}, asc)

	skipped := find(t, c, nil, NewFindOptions().SetSort(bson.D{{Key: "year", Value: 1}}).SetSkip(1).SetLimit(2))
	assert.Equal(t, []string{"Memento", "The Dark Knight"}, skipped)
}

func TestFindValidation(t *testing.T) {
	ctx := context.Background()
	c := seeded(t)
	_, err := c.Find(ctx, bson.D{{Key: "a", Value: bson.D{{Key: "$size", Value: "2"}}}})
	assert.ErrorIs(t, err, dberr.ErrValidation)
	_, err = c.Find(ctx, nil, NewFindOptions().SetProjection(bson.D{{Key: "a", Value: 1}, {Key: "b", Value: 0}}))
	assert.ErrorIs(t, err, dberr.ErrValidation)
	_, err = c.Find(ctx, nil, NewFindOptions().SetLimit(-1))
	assert.ErrorIs(t, err, dberr.ErrValidation)
}

func TestCursorSnapshot(t *testing.T) {
	ctx := context.Background()
	c := seeded(t,
		bson.D{{Key: "title", Value: "a"}},
		bson.D{{Key: "title", Value: "b"}},
	)
	cur, err := c.Find(ctx, nil)
	require.NoError(t, err)

	_, err = c.InsertOne(ctx, bson.D{{Key: "title", Value: "c"}})
	require.NoError(t, err)
	_, err = c.UpdateMany(ctx, nil, bson.D{{Key: "$set", Value: bson.D{{Key: "title", Value: "z"}}}})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, titles(t, cur))
	assert.False(t, cur.Next(ctx))
	assert.NoError(t, cur.Close(ctx))
	assert.NoError(t, cur.Close(ctx))
}

func TestCursorDecodeAndCancel(t *testing.T) {
	c := seeded(t, bson.D{{Key: "title", Value: "Memento"}, {Key: "year", Value: 2000}})
	cur, err := c.Find(context.Background(), nil)
	require.NoError(t, err)

	var out struct {
		Title string `bson:"title"`
		Year  int    `bson:"year"`
	}
	assert.ErrorIs(t, cur.Decode(&out), ErrNoCurrent)
	require.True(t, cur.Next(context.Background()))
	require.NoError(t, cur.Decode(&out))
	assert.Equal(t, "Memento", out.Title)
	assert.Equal(t, 2000, out.Year)

	cur, err = c.Find(context.Background(), nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, cur.Next(ctx))
	assert.ErrorIs(t, cur.Err(), context.Canceled)
}

func TestUpdateOneNoMatchIsNotAnError(t *testing.T) {
	c := seeded(t, bson.D{{Key: "title", Value: "a"}})
	res, err := c.UpdateOne(context.Background(), bson.D{{Key: "title", Value: "x"}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "n", Value: 1}}}})
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.MatchedCount)
	assert.Equal(t, int64(0), res.ModifiedCount)
}

func TestUpdateOneTouchesFirstMatchOnly(t *testing.T) {
	ctx := context.Background()
	c := seeded(t,
		bson.D{{Key: "title", Value: "a"}, {Key: "year", Value: 1997}},
		bson.D{{Key: "title", Value: "b"}, {Key: "year", Value: 1997}},
	)
	res, err := c.UpdateOne(ctx, bson.D{{Key: "year", Value: 1997}}, bson.D{{Key: "$set", Value: bson.D{{Key: "seen", Value: true}}}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.MatchedCount)
	assert.Equal(t, int64(1), res.ModifiedCount)
	assert.Equal(t, []string{"a"}, find(t, c, bson.D{{Key: "seen", Value: true}}))

	res, err = c.UpdateOne(ctx, bson.D{{Key: "title", Value: "a"}}, bson.D{{Key: "$set", Value: bson.D{{Key: "seen", Value: true}}}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.MatchedCount)
	assert.Equal(t, int64(0), res.ModifiedCount)
}

func TestAddToSetScenario(t *testing.T) {
	ctx := context.Background()
	c := seeded(t,
		bson.D{{Key: "title", Value: "X"}, {Key: "year", Value: 1997}, {Key: "genres", Value: bson.A{"Drama"}}},
		bson.D{{Key: "title", Value: "Y"}, {Key: "year", Value: 1997}, {Key: "genres", Value: bson.A{}}},
	)
	filter := bson.D{{Key: "year", Value: 1997}}
	upd := bson.D{{Key: "$addToSet", Value: bson.D{{Key: "genres", Value: "GenZ"}}}}

	res, err := c.UpdateMany(ctx, filter, upd)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.MatchedCount)
	assert.Equal(t, int64(2), res.ModifiedCount)

	res, err = c.UpdateMany(ctx, filter, upd)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.MatchedCount)
	assert.Equal(t, int64(0), res.ModifiedCount)

	x, err := c.FindOne(ctx, bson.D{{Key: "title", Value: "X"}})
	require.NoError(t, err)
	assert.Equal(t, `["Drama","GenZ"]`, x.Get("genres").String())
}

func TestIncAppliedNTimes(t *testing.T) {
	ctx := context.Background()
	c := seeded(t, bson.D{{Key: "title", Value: "a"}, {Key: "views", Value: 10}})
	const n = 7
	for i := 0; i < n; i++ {
		_, err := c.UpdateOne(ctx, nil, bson.D{{Key: "$inc", Value: bson.D{{Key: "views", Value: 1}}}})
		require.NoError(t, err)
	}
	got, err := c.FindOne(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, float64(10+n), got.Get("views").Number())
}

func TestUpdateManyIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	c := seeded(t,
		bson.D{{Key: "_id", Value: 1}, {Key: "rating", Value: 3.7}},
		bson.D{{Key: "_id", Value: 2}, {Key: "rating", Value: "n/a"}},
		bson.D{{Key: "_id", Value: 3}, {Key: "rating", Value: 1.9}},
	)
	upd := bson.D{
		{Key: "$set", Value: bson.D{{Key: "touched", Value: true}}},
		{Key: "$inc", Value: bson.D{{Key: "rating", Value: 1}}},
	}
	res, err := c.UpdateMany(ctx, nil, upd)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.MatchedCount)
	assert.Equal(t, int64(2), res.ModifiedCount)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, float64(2), res.Failures[0].ID.Number())
	assert.ErrorIs(t, res.Failures[0], dberr.ErrOperation)

	// The failed document is untouched, including the $set half.
	bad, err := c.FindOne(ctx, bson.D{{Key: "_id", Value: 2}})
	require.NoError(t, err)
	assert.False(t, bad.Has("touched"))
	assert.Equal(t, "n/a", bad.Get("rating").Str())

	// UpdateOne surfaces the failure as its error.
	_, err = c.UpdateOne(ctx, bson.D{{Key: "_id", Value: 2}}, upd)
	assert.ErrorIs(t, err, dberr.ErrOperation)
	var opErr *dberr.OperationError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, float64(2), opErr.ID.Number())
}

func TestUpsert(t *testing.T) {
	ctx := context.Background()
	c := seeded(t)
	res, err := c.UpdateOne(ctx,
		bson.D{{Key: "title", Value: "Gen Z"}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "year", Value: 2024}}}},
		NewUpdateOptions().SetUpsert(true))
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.MatchedCount)
	assert.False(t, res.UpsertedID.IsAbsent())

	got, err := c.FindOne(ctx, bson.D{{Key: "title", Value: "Gen Z"}})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, float64(2024), got.Get("year").Number())
	assert.True(t, document.Equal(res.UpsertedID, got.ID()))

	res, err = c.UpdateOne(ctx,
		bson.D{{Key: "title", Value: "Gen Z"}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "year", Value: 2025}}}},
		NewUpdateOptions().SetUpsert(true))
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.ModifiedCount)
	assert.True(t, res.UpsertedID.IsAbsent())
}

func TestDeleteManyMissingOrEmpty(t *testing.T) {
	ctx := context.Background()
	c := seeded(t,
		bson.D{{Key: "title", Value: "The Lost Reel"}},
		bson.D{{Key: "title", Value: "Empty Frames"}, {Key: "genres", Value: bson.A{}}},
		bson.D{{Key: "title", Value: "Null Genres"}, {Key: "genres", Value: nil}},
		bson.D{{Key: "title", Value: "Titanic"}, {Key: "genres", Value: bson.A{"Drama"}}},
	)
	res, err := c.DeleteMany(ctx, bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "genres", Value: bson.D{{Key: "$exists", Value: false}}}},
		bson.D{{Key: "genres", Value: bson.D{{Key: "$size", Value: 0}}}},
	}}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.DeletedCount)
	assert.Equal(t, []string{"Null Genres", "Titanic"}, find(t, c, nil))
}

func TestDeleteOneAndReuseID(t *testing.T) {
	ctx := context.Background()
	id := document.MustObjectID("5a9427648b0beebeb69579e7")
	c := seeded(t,
		bson.D{{Key: "_id", Value: id}, {Key: "title", Value: "a"}},
		bson.D{{Key: "title", Value: "b"}},
	)
	res, err := c.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.DeletedCount)

	res, err = c.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.DeletedCount)

	_, err = c.InsertOne(ctx, bson.D{{Key: "_id", Value: id}, {Key: "title", Value: "c"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, find(t, c, nil))
}

func TestCountDocuments(t *testing.T) {
	c := seeded(t,
		bson.D{{Key: "year", Value: 1997}},
		bson.D{{Key: "year", Value: 1997}},
		bson.D{{Key: "year", Value: 1998}},
	)
	n, err := c.CountDocuments(context.Background(), bson.D{{Key: "year", Value: 1997}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestAggregateUnwindGroupAverage(t *testing.T) {
	c := seeded(t,
		bson.D{{Key: "directors", Value: bson.A{"A", "B"}}, {Key: "rating", Value: 8}},
		bson.D{{Key: "directors", Value: bson.A{"A"}}, {Key: "rating", Value: 6}},
	)
	cur, err := c.Aggregate(context.Background(), bson.A{
		bson.D{{Key: "$unwind", Value: "$directors"}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$directors"},
			{Key: "avg", Value: bson.D{{Key: "$avg", Value: "$rating"}}},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	})
	require.NoError(t, err)
	docs, err := cur.All(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, `{"_id":"A","avg":7}`, docs[0].String())
	assert.Equal(t, `{"_id":"B","avg":8}`, docs[1].String())
}

func TestAggregateGroupSum(t *testing.T) {
	c := seeded(t,
		bson.D{{Key: "year", Value: 1997}},
		bson.D{{Key: "year", Value: 1997}},
		bson.D{{Key: "year", Value: 1998}},
	)
	cur, err := c.Aggregate(context.Background(), bson.A{
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$year"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	})
	require.NoError(t, err)
	docs, err := cur.All(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, `{"_id":1997,"count":2}`, docs[0].String())
	assert.Equal(t, `{"_id":1998,"count":1}`, docs[1].String())
}

func TestAggregateValidationHasNoOutput(t *testing.T) {
	c := seeded(t, bson.D{{Key: "a", Value: 1}})
	cur, err := c.Aggregate(context.Background(), bson.A{
		bson.D{{Key: "$match", Value: bson.D{}}},
		bson.D{{Key: "$bogus", Value: 1}},
	})
	assert.ErrorIs(t, err, dberr.ErrValidation)
	assert.Nil(t, cur)
}

func TestQueryBuilder(t *testing.T) {
	c := seeded(t,
		bson.D{{Key: "title", Value: "Inception"}, {Key: "year", Value: 2010}, {Key: "genres", Value: bson.A{"Action", "Sci-Fi"}}},
		bson.D{{Key: "title", Value: "Titanic"}, {Key: "year", Value: 1997}, {Key: "genres", Value: bson.A{"Drama"}}},
		bson.D{{Key: "title", Value: "The Matrix"}, {Key: "year", Value: 1999}, {Key: "genres", Value: bson.A{"Action"}}},
	)
	cur, err := NewQueryBuilder().
		WhereGte("year", 1998).
		WhereLt("year", 2011).
		WhereIn("genres", "Action").
		OrderByDesc("year").
		Select("title").
		Find(context.Background(), c)
	require.NoError(t, err)
	docs, err := cur.All(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, []string{"_id", "title"}, docs[0].Keys())
	assert.Equal(t, "Inception", docs[0].Get("title").Str())
	assert.Equal(t, "The Matrix", docs[1].Get("title").Str())
}

func TestDropAndListCollections(t *testing.T) {
	ctx := context.Background()
	d := New()
	_, err := d.Collection("movies").InsertOne(ctx, bson.D{{Key: "a", Value: 1}})
	require.NoError(t, err)
	_, err = d.Collection("comments").InsertOne(ctx, bson.D{{Key: "a", Value: 1}})
	require.NoError(t, err)
	d.Collection("empty")

	names, err := d.ListCollectionNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"comments", "movies"}, names)

	require.NoError(t, d.DropCollection(ctx, "movies"))
	names, err = d.ListCollectionNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"comments"}, names)

	n, err := d.Collection("movies").CountDocuments(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestClosedDatabase(t *testing.T) {
	ctx := context.Background()
	d := New()
	c := d.Collection("movies")
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())

	_, err := c.InsertOne(ctx, bson.D{})
	assert.ErrorIs(t, err, dberr.ErrStoreUnavailable)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestUUIDStrategy(t *testing.T) {
	gen, err := IDGeneratorFor(IDStrategyUUID)
	require.NoError(t, err)
	c := New(WithIDGenerator(gen)).Collection("users")
	res, err := c.InsertOne(context.Background(), bson.D{{Key: "name", Value: "Ada"}})
	require.NoError(t, err)
	assert.Equal(t, document.KindString, res.InsertedID.Kind())
	assert.Len(t, res.InsertedID.Str(), 36)

	_, err = IDGeneratorFor("snowflake")
	assert.Error(t, err)
}

// failingStore rejects every write.
type failingStore struct{ *storage.Memory }

var errDisk = errors.New("disk on fire")

func (failingStore) Put(context.Context, string, storage.Record) error        { return errDisk }
func (failingStore) PutBatch(context.Context, string, []storage.Record) error { return errDisk }
func (failingStore) DeleteBatch(context.Context, string, []uint64) error      { return errDisk }

func TestStoreFailuresAreUnavailable(t *testing.T) {
	ctx := context.Background()
	c := New(WithStore(failingStore{storage.NewMemory()})).Collection("movies")
	_, err := c.InsertOne(ctx, bson.D{{Key: "a", Value: 1}})
	assert.ErrorIs(t, err, dberr.ErrStoreUnavailable)
	assert.ErrorIs(t, err, errDisk)

	n, err := c.CountDocuments(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	_, err = c.InsertMany(ctx, []any{bson.D{{Key: "a", Value: 1}}})
	assert.ErrorIs(t, err, dberr.ErrStoreUnavailable)
}

func TestReopenFromBadger(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	open := func() *Database {
		store, err := storage.OpenBadger(storage.BadgerOptions{Dir: dir})
		require.NoError(t, err)
		d, err := Open(ctx, WithStore(store))
		require.NoError(t, err)
		return d
	}

	d := open()
	c := d.Collection("movies")
	_, err := c.InsertMany(ctx, []any{
		bson.D{{Key: "title", Value: "a"}, {Key: "n", Value: 1}},
		bson.D{{Key: "title", Value: "b"}, {Key: "n", Value: 2}},
		bson.D{{Key: "title", Value: "c"}, {Key: "n", Value: 3}},
	})
	require.NoError(t, err)
	_, err = c.UpdateOne(ctx, bson.D{{Key: "title", Value: "a"}}, bson.D{{Key: "$inc", Value: bson.D{{Key: "n", Value: 10}}}})
	require.NoError(t, err)
	_, err = c.DeleteOne(ctx, bson.D{{Key: "title", Value: "b"}})
	require.NoError(t, err)
	require.NoError(t, d.Close())

	d = open()
	defer d.Close()
	c = d.Collection("movies")
	assert.Equal(t, []string{"a", "c"}, find(t, c, nil))
	first, err := c.FindOne(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, float64(11), first.Get("n").Number())

	_, err = c.InsertOne(ctx, bson.D{{Key: "title", Value: "d"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "d"}, find(t, c, nil))
}
