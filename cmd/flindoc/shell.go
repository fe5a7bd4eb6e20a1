package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/skshohagmiah/flindoc/pkg/client"
	"github.com/skshohagmiah/flindoc/pkg/document"
)

var shellAddr string

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive shell against a running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := client.Dial(shellAddr)
		if err != nil {
			return err
		}
		defer c.Close()
		return runShell(cmd.Context(), c, cmd.OutOrStdout())
	},
}

func init() {
	shellCmd.Flags().StringVar(&shellAddr, "addr", "localhost:7380", "server address")
}

var shellCommands = []string{
	"help", "use", "collections", "insert", "find", "findOne", "count",
	"update", "updateMany", "delete", "deleteMany", "aggregate", "drop", "exit",
}

const shellHelp = `Commands (arguments are extended JSON):
  use <collection>
  collections
  insert <doc> [doc...]
  find [filter] [projection] [sort] [limit]
  findOne [filter] [projection]
  count [filter]
  update <filter> <update> [upsert]
  updateMany <filter> <update> [upsert]
  delete <filter>
  deleteMany <filter>
  aggregate <[stage, ...]>
  drop
  exit`

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".flindoc_history")
}

func runShell(ctx context.Context, c *client.Client, out io.Writer) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(func(prefix string) []string {
		var matches []string
		for _, cmd := range shellCommands {
			if strings.HasPrefix(cmd, prefix) {
				matches = append(matches, cmd)
			}
		}
		return matches
	})

	hist := historyPath()
	if hist != "" {
		if f, err := os.Open(hist); err == nil {
			line.ReadHistory(f)
			f.Close()
		}
		defer func() {
			if f, err := os.Create(hist); err == nil {
				line.WriteHistory(f)
				f.Close()
			}
		}()
	}

	sh := &shell{client: c, out: out, coll: "test"}
	fmt.Fprintf(out, "flindoc %s shell, connected to %s. Type help for commands.\n", version, shellAddr)
	for {
		input, err := line.Prompt(sh.coll + "> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)
		if input == "exit" || input == "quit" {
			return nil
		}
		if err := sh.exec(ctx, input); err != nil {
			fmt.Fprintln(out, "error:", err)
		}
	}
}

type shell struct {
	client *client.Client
	out    io.Writer
	coll   string
}

func (sh *shell) exec(ctx context.Context, input string) error {
	words, err := splitArgs(input)
	if err != nil {
		return err
	}
	name, raw := words[0], words[1:]
	coll := sh.client.Collection(sh.coll)

	switch name {
	case "help":
		fmt.Fprintln(sh.out, shellHelp)
		return nil
	case "use":
		if len(raw) != 1 {
			return errors.New("usage: use <collection>")
		}
		sh.coll = strings.Trim(raw[0], `"`)
		return nil
	case "collections":
		names, err := sh.client.ListCollections(ctx)
		if err != nil {
			return err
		}
		for _, n := range names {
			fmt.Fprintln(sh.out, n)
		}
		return nil
	case "drop":
		return coll.Drop(ctx)
	}

	args, err := parseArgs(raw)
	if err != nil {
		return err
	}
	switch name {
	case "insert":
		if len(args) == 0 {
			return errors.New("usage: insert <doc> [doc...]")
		}
		docs := make([]any, len(args))
		for i, a := range args {
			docs[i] = a
		}
		ids, err := coll.InsertMany(ctx, docs)
		for _, id := range ids {
			fmt.Fprintln(sh.out, "inserted", id)
		}
		return err
	case "find":
		opts := client.FindOptions{Projection: arg(args, 1), Sort: arg(args, 2)}
		if l := arg(args, 3); l != nil {
			v, ok := l.(document.Value)
			if !ok || !v.IsInteger() {
				return errors.New("limit must be an integer")
			}
			opts.Limit = int64(v.Number())
		}
		docs, err := coll.Find(ctx, arg(args, 0), opts)
		if err != nil {
			return err
		}
		sh.print(docs...)
		fmt.Fprintf(sh.out, "(%d documents)\n", len(docs))
		return nil
	case "findOne":
		doc, err := coll.FindOne(ctx, arg(args, 0), client.FindOptions{Projection: arg(args, 1)})
		if err != nil {
			return err
		}
		if doc == nil {
			fmt.Fprintln(sh.out, "null")
			return nil
		}
		sh.print(doc)
		return nil
	case "count":
		n, err := coll.CountDocuments(ctx, arg(args, 0))
		if err != nil {
			return err
		}
		fmt.Fprintln(sh.out, n)
		return nil
	case "update", "updateMany":
		if len(args) < 2 {
			return fmt.Errorf("usage: %s <filter> <update> [upsert]", name)
		}
		upsert := false
		if u := arg(args, 2); u != nil {
			v, _ := u.(document.Value)
			upsert = v.Truthy()
		}
		var res *client.UpdateResult
		if name == "update" {
			res, err = coll.UpdateOne(ctx, args[0], args[1], upsert)
		} else {
			res, err = coll.UpdateMany(ctx, args[0], args[1], upsert)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "matched %d, modified %d\n", res.MatchedCount, res.ModifiedCount)
		if !res.UpsertedID.IsAbsent() {
			fmt.Fprintln(sh.out, "upserted", res.UpsertedID)
		}
		for _, f := range res.Failures {
			fmt.Fprintf(sh.out, "failed %s: %s\n", f.ID, f.Message)
		}
		return nil
	case "delete", "deleteMany":
		if len(args) != 1 {
			return fmt.Errorf("usage: %s <filter>", name)
		}
		var n int64
		if name == "delete" {
			n, err = coll.DeleteOne(ctx, args[0])
		} else {
			n, err = coll.DeleteMany(ctx, args[0])
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "deleted %d\n", n)
		return nil
	case "aggregate":
		if len(args) != 1 {
			return errors.New("usage: aggregate <[stage, ...]>")
		}
		docs, err := coll.Aggregate(ctx, args[0])
		if err != nil {
			return err
		}
		sh.print(docs...)
		return nil
	}
	return fmt.Errorf("unknown command %q, type help", name)
}

func (sh *shell) print(docs ...*document.Document) {
	for _, d := range docs {
		data, err := json.MarshalIndent(d, "", "  ")
		if err != nil {
			fmt.Fprintln(sh.out, d)
			continue
		}
		fmt.Fprintln(sh.out, string(data))
	}
}

func arg(args []any, i int) any {
	if i < len(args) {
		return args[i]
	}
	return nil
}

// parseArgs decodes every word as extended JSON. Bare words that are not
// JSON are taken as strings.
func parseArgs(words []string) ([]any, error) {
	out := make([]any, len(words))
	for i, w := range words {
		v, err := document.ParseJSON([]byte(w))
		if err != nil {
			if strings.ContainsAny(w[:1], "{[\"") {
				return nil, fmt.Errorf("argument %d: %w", i+1, err)
			}
			v = document.String(w)
		}
		out[i] = v
	}
	return out, nil
}

// splitArgs splits a command line on whitespace, keeping JSON objects,
// arrays and quoted strings whole.
func splitArgs(input string) ([]string, error) {
	var (
		words []string
		cur   strings.Builder
		depth int
		inStr bool
		esc   bool
	)
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}
	for _, r := range input {
		switch {
		case esc:
			esc = false
		case inStr && r == '\\':
			esc = true
		case r == '"':
			inStr = !inStr
		case inStr:
		case r == '{' || r == '[':
			depth++
		case r == '}' || r == ']':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unbalanced %q", r)
			}
		case depth == 0 && (r == ' ' || r == '\t'):
			flush()
			continue
		}
		cur.WriteRune(r)
	}
	if inStr {
		return nil, errors.New("unterminated string")
	}
	if depth != 0 {
		return nil, errors.New("unbalanced brackets")
	}
	flush()
	if len(words) == 0 {
		return nil, errors.New("empty command")
	}
	return words, nil
}
