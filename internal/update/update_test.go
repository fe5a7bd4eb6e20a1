package update

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/skshohagmiah/flindoc/internal/dberr"
	"github.com/skshohagmiah/flindoc/pkg/document"
)

func apply(t *testing.T, expr any, doc *document.Document) (*document.Document, bool) {
	t.Helper()
	spec, err := Parse(expr)
	require.NoError(t, err)
	out, changed, err := spec.Apply(doc)
	require.NoError(t, err)
	return out, changed
}

func movie() *document.Document {
	return document.D("_id", 1, "title", "Batman & Robin", "year", 1997,
		"genres", document.A("Action"), "imdb", document.D("rating", 3.7))
}

func TestSet(t *testing.T) {
	doc := movie()
	out, changed := apply(t, bson.D{{Key: "$set", Value: bson.D{
		{Key: "imdb.rating", Value: 4.0},
		{Key: "available_on", Value: "Sflix"},
		{Key: "tomatoes.viewer.meter", Value: 50},
	}}}, doc)
	assert.True(t, changed)
	assert.Equal(t, 4.0, out.Lookup("imdb.rating").Number())
	assert.Equal(t, "Sflix", out.Get("available_on").Str())
	assert.Equal(t, float64(50), out.Lookup("tomatoes.viewer.meter").Number())

	// The input is untouched.
	assert.Equal(t, 3.7, doc.Lookup("imdb.rating").Number())
	assert.False(t, doc.Has("available_on"))
}

func TestSetSameValueIsNotAChange(t *testing.T) {
	_, changed := apply(t, bson.D{{Key: "$set", Value: bson.D{{Key: "year", Value: 1997}}}}, movie())
	assert.False(t, changed)
}

func TestUnset(t *testing.T) {
	out, changed := apply(t, bson.D{{Key: "$unset", Value: bson.D{{Key: "imdb.rating", Value: ""}, {Key: "nope", Value: 1}}}}, movie())
	assert.True(t, changed)
	assert.Equal(t, 0, out.Get("imdb").Document().Len())

	_, changed = apply(t, bson.D{{Key: "$unset", Value: bson.D{{Key: "nope", Value: 1}}}}, movie())
	assert.False(t, changed)
}

func TestIncRepeated(t *testing.T) {
	doc := movie()
	spec, err := Parse(bson.D{{Key: "$inc", Value: bson.D{{Key: "imdb.rating", Value: 1}, {Key: "views", Value: 2}}}})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		var changed bool
		doc, changed, err = spec.Apply(doc)
		require.NoError(t, err)
		assert.True(t, changed)
	}
	assert.InDelta(t, 6.7, doc.Lookup("imdb.rating").Number(), 1e-9)
	assert.Equal(t, float64(6), doc.Get("views").Number())
}

func TestIncNonNumeric(t *testing.T) {
	spec, err := Parse(bson.D{{Key: "$inc", Value: bson.D{{Key: "title", Value: 1}}}})
	require.NoError(t, err)
	_, _, err = spec.Apply(movie())
	assert.ErrorIs(t, err, ErrNotNumeric)
}

func TestAddToSetIsIdempotent(t *testing.T) {
	spec, err := Parse(bson.D{{Key: "$addToSet", Value: bson.D{{Key: "genres", Value: "GenZ"}}}})
	require.NoError(t, err)

	out, changed, err := spec.Apply(movie())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, `["Action","GenZ"]`, out.Get("genres").String())

	again, changed, err := spec.Apply(out)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, `["Action","GenZ"]`, again.Get("genres").String())
}

func TestAddToSetEachAndMissing(t *testing.T) {
	out, _ := apply(t, bson.D{{Key: "$addToSet", Value: bson.D{
		{Key: "genres", Value: bson.D{{Key: "$each", Value: bson.A{"Action", "Comedy", "Comedy"}}}},
		{Key: "tags", Value: "new"},
	}}}, movie())
	assert.Equal(t, `["Action","Comedy"]`, out.Get("genres").String())
	assert.Equal(t, `["new"]`, out.Get("tags").String())
}

func TestPush(t *testing.T) {
	out, _ := apply(t, bson.D{{Key: "$push", Value: bson.D{
		{Key: "genres", Value: "Action"},
	}}}, movie())
	assert.Equal(t, `["Action","Action"]`, out.Get("genres").String())

	spec, err := Parse(bson.D{{Key: "$push", Value: bson.D{{Key: "title", Value: 1}}}})
	require.NoError(t, err)
	_, _, err = spec.Apply(movie())
	assert.ErrorIs(t, err, ErrNotArray)
}

func TestPull(t *testing.T) {
	doc := document.D("scores", document.A(1, 5, 7, 5), "tags", document.A("a", "b"))
	out, changed := apply(t, bson.D{{Key: "$pull", Value: bson.D{
		{Key: "scores", Value: bson.D{{Key: "$gte", Value: 5}}},
		{Key: "tags", Value: "a"},
	}}}, doc)
	assert.True(t, changed)
	assert.Equal(t, `[1]`, out.Get("scores").String())
	assert.Equal(t, `["b"]`, out.Get("tags").String())

	_, changed = apply(t, bson.D{{Key: "$pull", Value: bson.D{{Key: "missing", Value: 1}}}}, doc)
	assert.False(t, changed)
}

func TestFailedUpdateLeavesNoPartialWrite(t *testing.T) {
	doc := movie()
	spec, err := Parse(bson.D{
		{Key: "$set", Value: bson.D{{Key: "available_on", Value: "Sflix"}}},
		{Key: "$inc", Value: bson.D{{Key: "title", Value: 1}}},
	})
	require.NoError(t, err)
	out, changed, err := spec.Apply(doc)
	assert.Error(t, err)
	assert.Nil(t, out)
	assert.False(t, changed)
	assert.False(t, doc.Has("available_on"))
}

func TestApplyInsert(t *testing.T) {
	spec, err := Parse(bson.D{{Key: "$set", Value: bson.D{{Key: "year", Value: 2024}}}})
	require.NoError(t, err)
	out, err := spec.ApplyInsert(document.D("title", "Gen Z"))
	require.NoError(t, err)
	assert.Equal(t, `{"title":"Gen Z","year":2024}`, out.String())
}

func TestParseValidation(t *testing.T) {
	bad := []any{
		bson.D{},
		bson.D{{Key: "title", Value: "replacement"}},
		bson.D{{Key: "$rename", Value: bson.D{{Key: "a", Value: "b"}}}},
		bson.D{{Key: "$set", Value: 1}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "_id", Value: 2}}}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "n", Value: "1"}}}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "a", Value: 1}}}, {Key: "$unset", Value: bson.D{{Key: "a.b", Value: 1}}}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "a..b", Value: 1}}}},
		bson.D{{Key: "$push", Value: bson.D{{Key: "a", Value: bson.D{{Key: "$each", Value: 1}}}}}},
		bson.D{{Key: "$push", Value: bson.D{{Key: "a", Value: bson.D{{Key: "$each", Value: bson.A{1}}, {Key: "$slice", Value: 1}}}}}},
		"nope",
	}
	for _, expr := range bad {
		_, err := Parse(expr)
		assert.ErrorIs(t, err, dberr.ErrValidation, "%v", expr)
	}
}
