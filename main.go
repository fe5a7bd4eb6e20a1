package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/skshohagmiah/flindoc/internal/db"
	"github.com/skshohagmiah/flindoc/internal/exercise"
	"github.com/skshohagmiah/flindoc/internal/logger"
)

// Runs the sample walkthrough against a throwaway in-memory database.
func main() {
	zl, err := logger.New("warn", true)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer zl.Sync()

	ctx := context.Background()
	database := db.New(db.WithLogger(zl))
	defer database.Close()

	fmt.Println("flindoc document store demo")
	fmt.Println("===========================")

	if err := exercise.Seed(ctx, database); err != nil {
		zl.Fatal("seed failed", zap.Error(err))
	}
	report, err := exercise.NewRunner(database, os.Stdout, zl).Run(ctx)
	if err != nil {
		zl.Fatal("walkthrough failed", zap.Error(err))
	}

	fmt.Println("\nSummary")
	fmt.Printf("  Nolan movies:           %d\n", len(report.NolanMovies))
	fmt.Printf("  rated above 8:          %d\n", len(report.RatedAbove8))
	fmt.Printf("  ratings raised:         %d\n", report.RatingsRaised)
	fmt.Printf("  no-genre movies gone:   %d\n", report.NoGenreDeleted)
	fmt.Printf("  distinct release years: %d\n", len(report.MoviesPerYear))
}
