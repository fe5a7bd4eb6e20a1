package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/skshohagmiah/flindoc/pkg/client"
)

var benchFlags struct {
	addr        string
	concurrency int
	duration    time.Duration
	collection  string
}

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Measure insert and find throughput against a running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := client.DefaultOptions(benchFlags.addr)
		opts.MaxConns = benchFlags.concurrency
		c, err := client.New(opts)
		if err != nil {
			return err
		}
		defer c.Close()
		return runBench(cmd.Context(), c, cmd.OutOrStdout(), benchFlags.collection, benchFlags.concurrency, benchFlags.duration)
	},
}

func init() {
	f := benchCmd.Flags()
	f.StringVar(&benchFlags.addr, "addr", "localhost:7380", "server address")
	f.IntVar(&benchFlags.concurrency, "concurrency", 32, "parallel workers")
	f.DurationVar(&benchFlags.duration, "duration", 10*time.Second, "duration of each phase")
	f.StringVar(&benchFlags.collection, "collection", "bench", "collection to write; dropped first")
}

func runBench(ctx context.Context, c *client.Client, out io.Writer, collection string, workers int, d time.Duration) error {
	coll := c.Collection(collection)
	if err := coll.Drop(ctx); err != nil {
		return err
	}

	fmt.Fprintf(out, "Insert throughput (%d workers, %v)\n", workers, d)
	writes := benchPhase(ctx, workers, d, func(worker, i int) error {
		_, err := coll.InsertOne(ctx, bson.D{
			{Key: "worker", Value: worker},
			{Key: "seq", Value: i},
			{Key: "tags", Value: bson.A{"bench", fmt.Sprintf("w%d", worker)}},
		})
		return err
	})
	report(out, "inserts", writes, d)

	fmt.Fprintf(out, "Find throughput (%d workers, %v)\n", workers, d)
	reads := benchPhase(ctx, workers, d, func(worker, i int) error {
		_, err := coll.FindOne(ctx, bson.D{{Key: "worker", Value: worker}, {Key: "seq", Value: 0}})
		return err
	})
	report(out, "finds", reads, d)
	return nil
}

// benchPhase runs op on every worker until d elapses and returns the number
// of successful calls.
func benchPhase(ctx context.Context, workers int, d time.Duration, op func(worker, i int) error) int64 {
	var (
		ops atomic.Int64
		wg  sync.WaitGroup
	)
	deadline := time.Now().Add(d)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; time.Now().Before(deadline) && ctx.Err() == nil; i++ {
				if op(worker, i) == nil {
					ops.Add(1)
				}
			}
		}(w)
	}
	wg.Wait()
	return ops.Load()
}

func report(out io.Writer, what string, n int64, d time.Duration) {
	fmt.Fprintf(out, "  %s: %s, %s ops/sec\n", what, formatNumber(n), formatNumber(int64(float64(n)/d.Seconds())))
}

func formatNumber(n int64) string {
	switch {
	case n >= 1000000:
		return fmt.Sprintf("%.2fM", float64(n)/1000000)
	case n >= 1000:
		return fmt.Sprintf("%.2fK", float64(n)/1000)
	}
	return fmt.Sprintf("%d", n)
}
