// Package exercise runs the movies/users/comments walkthrough against a
// Database: one create, six reads, four updates, three deletes and two
// aggregations, printing each result as it goes.
package exercise

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"strings"

	json "github.com/goccy/go-json"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/skshohagmiah/flindoc/internal/db"
	"github.com/skshohagmiah/flindoc/pkg/document"
)

//go:embed sample.json
var sampleJSON []byte

const (
	Movies   = "movies"
	Users    = "users"
	Comments = "comments"
)

// MatrixID is the _id of "The Matrix" in the sample data.
const MatrixID = "573a139bf29313caabcf3d23"

// DeletedCommentID is the comment removed by id.
const DeletedCommentID = "5a9427648b0beebeb69579e7"

// Sample returns the embedded sample data keyed by collection name.
func Sample() (map[string][]*document.Document, error) {
	v, err := document.ParseJSON(sampleJSON)
	if err != nil {
		return nil, fmt.Errorf("parse sample: %w", err)
	}
	if !v.IsDocument() {
		return nil, fmt.Errorf("parse sample: expected an object")
	}
	out := make(map[string][]*document.Document)
	for _, f := range v.Document().Fields() {
		if !f.Value.IsArray() {
			return nil, fmt.Errorf("parse sample: %s is not an array", f.Key)
		}
		for i, e := range f.Value.Array() {
			if !e.IsDocument() {
				return nil, fmt.Errorf("parse sample: %s[%d] is not a document", f.Key, i)
			}
			out[f.Key] = append(out[f.Key], e.Document())
		}
	}
	return out, nil
}

// Seed inserts the sample data. Collections that already hold documents are
// left alone, so seeding a restored database is a no-op.
func Seed(ctx context.Context, d *db.Database) error {
	sample, err := Sample()
	if err != nil {
		return err
	}
	for _, name := range []string{Movies, Users, Comments} {
		coll := d.Collection(name)
		n, err := coll.CountDocuments(ctx, nil)
		if err != nil {
			return err
		}
		if n > 0 {
			continue
		}
		docs := make([]any, len(sample[name]))
		for i, doc := range sample[name] {
			docs[i] = doc
		}
		if _, err := coll.InsertMany(ctx, docs); err != nil {
			return fmt.Errorf("seed %s: %w", name, err)
		}
	}
	return nil
}

// Report collects the outcome of every step.
type Report struct {
	InsertedUserID document.Value

	NolanMovies       []*document.Document
	ActionByYear      []*document.Document
	RatedAbove8       []*document.Document
	HanksAndAllen     []*document.Document
	OnlyHanksAndAllen []*document.Document
	SpielbergComedies []*document.Document

	MatrixAvailableOn *db.UpdateResult
	MatrixMetacritic  *db.UpdateResult
	GenZModified      int64
	RatingsRaised     int64

	CommentDeleted        int64
	MatrixMovieID         document.Value
	MatrixCommentsDeleted int64
	NoGenreDeleted        int64

	MoviesPerYear   []*document.Document
	DirectorRatings []*document.Document
}

// Runner executes the walkthrough.
type Runner struct {
	db  *db.Database
	out io.Writer
	log *zap.Logger
}

// NewRunner returns a runner printing to out. A nil out discards the
// narrative; a nil log is replaced by a no-op logger.
func NewRunner(d *db.Database, out io.Writer, log *zap.Logger) *Runner {
	if out == nil {
		out = io.Discard
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{db: d, out: out, log: log.Named("exercise")}
}

// Run executes every step in order and stops at the first error.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	rep := &Report{}
	steps := []struct {
		name string
		fn   func(context.Context, *Report) error
	}{
		{"create", r.create},
		{"read", r.read},
		{"update", r.update},
		{"delete", r.delete},
		{"aggregate", r.aggregate},
	}
	for _, st := range steps {
		fmt.Fprintf(r.out, "\n%s\n", strings.ToUpper(st.name))
		if err := st.fn(ctx, rep); err != nil {
			return rep, fmt.Errorf("%s: %w", st.name, err)
		}
		r.log.Debug("section complete", zap.String("section", st.name))
	}
	return rep, nil
}

func (r *Runner) create(ctx context.Context, rep *Report) error {
	r.say("1. Insert a new document into the users collection with name and email.")
	res, err := r.db.Collection(Users).InsertOne(ctx, bson.D{
		{Key: "name", Value: "Lisa Simpson"},
		{Key: "email", Value: "lisasimpson@gmail.com"},
	})
	if err != nil {
		return err
	}
	rep.InsertedUserID = res.InsertedID
	r.say("Inserted user id: %s", res.InsertedID)
	return nil
}

func (r *Runner) read(ctx context.Context, rep *Report) error {
	movies := r.db.Collection(Movies)
	var err error

	r.say("1. Movies directed by Christopher Nolan:")
	rep.NolanMovies, err = r.find(ctx, movies,
		bson.D{{Key: "directors", Value: "Christopher Nolan"}},
		db.NewFindOptions().SetProjection(bson.D{{Key: "_id", Value: 0}, {Key: "title", Value: 1}}))
	if err != nil {
		return err
	}
	r.dump(rep.NolanMovies)

	r.say("2. Action movies, newest first:")
	rep.ActionByYear, err = r.find(ctx, movies,
		bson.D{{Key: "genres", Value: "Action"}},
		db.NewFindOptions().
			SetProjection(bson.D{{Key: "_id", Value: 0}, {Key: "title", Value: 1}, {Key: "year", Value: 1}, {Key: "genres", Value: 1}}).
			SetSort(bson.D{{Key: "year", Value: -1}}).
			SetLimit(10))
	if err != nil {
		return err
	}
	r.dump(rep.ActionByYear)

	r.say("3. Movies with an IMDb rating above 8:")
	rep.RatedAbove8, err = r.find(ctx, movies,
		bson.D{{Key: "imdb.rating", Value: bson.D{{Key: "$gt", Value: 8}}}},
		db.NewFindOptions().
			SetProjection(bson.D{{Key: "_id", Value: 0}, {Key: "title", Value: 1}, {Key: "imdb", Value: 1}}).
			SetLimit(10))
	if err != nil {
		return err
	}
	r.dump(rep.RatedAbove8)

	castProjection := bson.D{{Key: "_id", Value: 0}, {Key: "title", Value: 1}, {Key: "cast", Value: 1}}
	both := bson.A{"Tom Hanks", "Tim Allen"}

	r.say(`4. Movies starring both "Tom Hanks" and "Tim Allen":`)
	rep.HanksAndAllen, err = r.find(ctx, movies,
		bson.D{{Key: "cast", Value: bson.D{{Key: "$all", Value: both}}}},
		db.NewFindOptions().SetProjection(castProjection))
	if err != nil {
		return err
	}
	r.dump(rep.HanksAndAllen)

	r.say(`5. Movies starring only "Tom Hanks" and "Tim Allen":`)
	rep.OnlyHanksAndAllen, err = r.find(ctx, movies,
		bson.D{{Key: "cast", Value: bson.D{{Key: "$all", Value: both}, {Key: "$size", Value: 2}}}},
		db.NewFindOptions().SetProjection(castProjection))
	if err != nil {
		return err
	}
	r.dump(rep.OnlyHanksAndAllen)

	r.say("6. Comedies directed by Steven Spielberg:")
	rep.SpielbergComedies, err = r.find(ctx, movies,
		bson.D{{Key: "directors", Value: "Steven Spielberg"}, {Key: "genres", Value: "Comedy"}},
		db.NewFindOptions().SetProjection(bson.D{
			{Key: "_id", Value: 0}, {Key: "title", Value: 1}, {Key: "directors", Value: 1}, {Key: "genres", Value: 1},
		}))
	if err != nil {
		return err
	}
	r.dump(rep.SpielbergComedies)
	return nil
}

func (r *Runner) update(ctx context.Context, rep *Report) error {
	movies := r.db.Collection(Movies)
	matrix := bson.D{{Key: "title", Value: "The Matrix"}}
	var err error

	rep.MatrixAvailableOn, err = movies.UpdateOne(ctx, matrix,
		bson.D{{Key: "$set", Value: bson.D{{Key: "available_on", Value: "Sflix"}}}})
	if err != nil {
		return err
	}
	r.say(`1. Set available_on to "Sflix" for "The Matrix": matched %d, modified %d`,
		rep.MatrixAvailableOn.MatchedCount, rep.MatrixAvailableOn.ModifiedCount)

	rep.MatrixMetacritic, err = movies.UpdateOne(ctx, matrix,
		bson.D{{Key: "$inc", Value: bson.D{{Key: "metacritic", Value: 1}}}})
	if err != nil {
		return err
	}
	r.say(`2. Incremented metacritic for "The Matrix": matched %d, modified %d`,
		rep.MatrixMetacritic.MatchedCount, rep.MatrixMetacritic.ModifiedCount)

	res, err := movies.UpdateMany(ctx, bson.D{{Key: "year", Value: 1997}},
		bson.D{{Key: "$addToSet", Value: bson.D{{Key: "genres", Value: "Gen Z"}}}})
	if err != nil {
		return err
	}
	rep.GenZModified = res.ModifiedCount
	r.say(`3. %d movies from 1997 gained the "Gen Z" genre`, res.ModifiedCount)

	res, err = movies.UpdateMany(ctx, bson.D{{Key: "imdb.rating", Value: bson.D{{Key: "$lt", Value: 5}}}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "imdb.rating", Value: 1}}}})
	if err != nil {
		return err
	}
	rep.RatingsRaised = res.ModifiedCount
	r.say("4. %d movies had their IMDb rating raised by 1", res.ModifiedCount)
	for _, f := range res.Failures {
		r.log.Warn("rating not raised", zap.Error(f))
	}
	return nil
}

func (r *Runner) delete(ctx context.Context, rep *Report) error {
	movies := r.db.Collection(Movies)
	comments := r.db.Collection(Comments)

	commentID := document.MustObjectID(DeletedCommentID)
	res, err := comments.DeleteOne(ctx, bson.D{{Key: "_id", Value: commentID}})
	if err != nil {
		return err
	}
	rep.CommentDeleted = res.DeletedCount
	if res.DeletedCount == 1 {
		r.say("1. Deleted comment %s", commentID.Hex())
	} else {
		r.say("1. Comment %s not found, deleted 0 documents", commentID.Hex())
	}

	r.say(`2. Delete every comment on "The Matrix".`)
	matrix, err := movies.FindOne(ctx, bson.D{{Key: "title", Value: "The Matrix"}},
		db.NewFindOptions().SetProjection(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return err
	}
	if matrix == nil {
		r.say("The Matrix was not found")
	} else {
		rep.MatrixMovieID = matrix.ID()
		r.say("The Matrix _id: %s", rep.MatrixMovieID)
		res, err = comments.DeleteMany(ctx, bson.D{{Key: "movie_id", Value: rep.MatrixMovieID}})
		if err != nil {
			return err
		}
		rep.MatrixCommentsDeleted = res.DeletedCount
		r.say("%d comments were deleted for The Matrix", res.DeletedCount)
	}

	res, err = movies.DeleteMany(ctx, bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "genres", Value: bson.D{{Key: "$exists", Value: false}}}},
		bson.D{{Key: "genres", Value: bson.D{{Key: "$size", Value: 0}}}},
	}}})
	if err != nil {
		return err
	}
	rep.NoGenreDeleted = res.DeletedCount
	r.say("3. %d movies without genres were deleted", res.DeletedCount)
	return nil
}

func (r *Runner) aggregate(ctx context.Context, rep *Report) error {
	movies := r.db.Collection(Movies)
	var err error

	r.say("1. Movies released per year, earliest first:")
	rep.MoviesPerYear, err = r.pipeline(ctx, movies, bson.A{
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$year"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
		bson.D{{Key: "$project", Value: bson.D{{Key: "_id", Value: 0}, {Key: "year", Value: "$_id"}, {Key: "count", Value: 1}}}},
	})
	if err != nil {
		return err
	}
	r.dump(rep.MoviesPerYear)

	r.say("2. Average IMDb rating per director, highest first:")
	rep.DirectorRatings, err = r.pipeline(ctx, movies, bson.A{
		bson.D{{Key: "$unwind", Value: "$directors"}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$directors"},
			{Key: "avgRating", Value: bson.D{{Key: "$avg", Value: "$imdb.rating"}}},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "avgRating", Value: -1}}}},
		bson.D{{Key: "$project", Value: bson.D{{Key: "_id", Value: 0}, {Key: "directors", Value: "$_id"}, {Key: "avgRating", Value: 1}}}},
	})
	if err != nil {
		return err
	}
	r.dump(rep.DirectorRatings)
	return nil
}

func (r *Runner) find(ctx context.Context, c *db.Collection, filter any, opts *db.FindOptions) ([]*document.Document, error) {
	cur, err := c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	return cur.All(ctx)
}

func (r *Runner) pipeline(ctx context.Context, c *db.Collection, stages bson.A) ([]*document.Document, error) {
	cur, err := c.Aggregate(ctx, stages)
	if err != nil {
		return nil, err
	}
	return cur.All(ctx)
}

func (r *Runner) say(format string, args ...any) {
	fmt.Fprintf(r.out, format+"\n", args...)
}

func (r *Runner) dump(docs []*document.Document) {
	if len(docs) == 0 {
		fmt.Fprintln(r.out, "[]")
		return
	}
	for _, d := range docs {
		data, err := json.MarshalIndent(d, "", "  ")
		if err != nil {
			fmt.Fprintf(r.out, "%s\n", d)
			continue
		}
		fmt.Fprintf(r.out, "%s\n", data)
	}
}
