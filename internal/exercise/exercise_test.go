package exercise

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skshohagmiah/flindoc/internal/db"
	"github.com/skshohagmiah/flindoc/pkg/document"
)

func titles(docs []*document.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.Get("title").Str()
	}
	return out
}

func TestSample(t *testing.T) {
	sample, err := Sample()
	require.NoError(t, err)
	assert.Len(t, sample[Movies], 14)
	assert.Len(t, sample[Users], 2)
	assert.Len(t, sample[Comments], 5)
	assert.Equal(t, MatrixID, sample[Movies][0].ID().ObjectID().Hex())
}

func TestSeedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	d := db.New()
	require.NoError(t, Seed(ctx, d))
	require.NoError(t, Seed(ctx, d))

	n, err := d.Collection(Movies).CountDocuments(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(14), n)
}

// TestRun tests the whole walkthrough against the sample data.
func TestRun(t *testing.T) {
	ctx := context.Background()
	d := db.New()
	require.NoError(t, Seed(ctx, d))

	var out bytes.Buffer
	rep, err := NewRunner(d, &out, nil).Run(ctx)
	require.NoError(t, err)

	// Create.
	assert.Equal(t, document.KindObjectID, rep.InsertedUserID.Kind())
	users, err := d.Collection(Users).CountDocuments(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), users)

	// Read.
	assert.Equal(t, []string{"Inception", "The Dark Knight", "Memento"}, titles(rep.NolanMovies))
	assert.Equal(t, []string{"title"}, rep.NolanMovies[0].Keys())
	assert.Equal(t, []string{
		"Inception", "The Dark Knight", "The Matrix", "Men in Black", "Batman & Robin", "1941",
	}, titles(rep.ActionByYear))
	assert.Len(t, rep.RatedAbove8, 5)
	assert.Equal(t, []string{"Toy Story", "Toy Story 2"}, titles(rep.HanksAndAllen))
	assert.Empty(t, rep.OnlyHanksAndAllen)
	assert.Equal(t, []string{"The Terminal", "1941"}, titles(rep.SpielbergComedies))

	// Update.
	assert.Equal(t, int64(1), rep.MatrixAvailableOn.ModifiedCount)
	assert.Equal(t, int64(1), rep.MatrixMetacritic.ModifiedCount)
	assert.Equal(t, int64(3), rep.GenZModified)
	assert.Equal(t, int64(3), rep.RatingsRaised)

	matrix, err := d.Collection(Movies).FindOne(ctx, map[string]any{"_id": document.MustObjectID(MatrixID)})
	require.NoError(t, err)
	require.NotNil(t, matrix)
	assert.Equal(t, "Sflix", matrix.Get("available_on").Str())
	assert.Equal(t, float64(74), matrix.Get("metacritic").Number())

	// Delete.
	assert.Equal(t, int64(1), rep.CommentDeleted)
	assert.Equal(t, MatrixID, rep.MatrixMovieID.ObjectID().Hex())
	assert.Equal(t, int64(3), rep.MatrixCommentsDeleted)
	assert.Equal(t, int64(2), rep.NoGenreDeleted)
	left, err := d.Collection(Comments).CountDocuments(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), left)

	// Aggregate.
	require.Len(t, rep.MoviesPerYear, 8)
	first := rep.MoviesPerYear[0]
	assert.Equal(t, float64(1979), first.Get("year").Number())
	assert.Equal(t, float64(1), first.Get("count").Number())
	assert.False(t, first.Has("_id"))
	var total float64
	for _, y := range rep.MoviesPerYear {
		total += y.Get("count").Number()
	}
	assert.Equal(t, float64(12), total)

	require.Len(t, rep.DirectorRatings, 12)
	top := rep.DirectorRatings[0]
	assert.Equal(t, "Christopher Nolan", top.Get("directors").Str())
	assert.InDelta(t, (8.8+9.0+8.5)/3, top.Get("avgRating").Number(), 1e-9)
	last := rep.DirectorRatings[len(rep.DirectorRatings)-1]
	assert.InDelta(t, 2.9, last.Get("avgRating").Number(), 1e-9)

	assert.Contains(t, out.String(), "AGGREGATE")
	assert.Contains(t, out.String(), "Deleted comment "+DeletedCommentID)
}

func TestRunSecondPassFindsNothingToDelete(t *testing.T) {
	ctx := context.Background()
	d := db.New()
	require.NoError(t, Seed(ctx, d))
	r := NewRunner(d, nil, nil)
	_, err := r.Run(ctx)
	require.NoError(t, err)

	rep, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), rep.CommentDeleted)
	assert.Equal(t, int64(0), rep.MatrixCommentsDeleted)
	assert.Equal(t, int64(0), rep.NoGenreDeleted)
	assert.Equal(t, int64(0), rep.GenZModified)
	assert.Equal(t, int64(1), rep.MatrixAvailableOn.MatchedCount)
	assert.Equal(t, int64(0), rep.MatrixAvailableOn.ModifiedCount)
}
