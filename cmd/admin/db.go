package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"sketchcraft.ai/internal/gen"
	"sketchcraft.ai/internal/media/cache"
	"sketchcraft.ai/internal/persistence/indexdb"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	state := fs.String("state", string(gen.JobFailed), "job state filter (jobs)")
	hash := fs.String("hash", "", "job hash (job)")
	session := fs.String("session", "", "session id (session)")
	_ = fs.Parse(args)

	q := "media"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "sketchcraft.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer idx.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	enc := json.NewEncoder(os.Stdout)
	switch q {
	case "media":
		counts, err := idx.MediaCount(ctx)
		if err != nil {
			fail("query", err)
		}
		kinds := make([]cache.Kind, 0, len(counts))
		for k := range counts {
			kinds = append(kinds, k)
		}
		sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
		for _, k := range kinds {
			_ = enc.Encode(map[string]any{"kind": k, "count": counts[k]})
		}
	case "jobs":
		rows, err := idx.JobsByState(ctx, gen.JobState(*state), *limit)
		if err != nil {
			fail("query", err)
		}
		for _, r := range rows {
			_ = enc.Encode(r)
		}
	case "job":
		if !gen.ValidHash(*hash) {
			fmt.Fprintln(os.Stderr, "missing or bad -hash")
			os.Exit(2)
		}
		row, ok, err := idx.Job(ctx, *hash)
		if err != nil {
			fail("query", err)
		}
		if !ok {
			fmt.Fprintln(os.Stderr, "unknown job")
			os.Exit(1)
		}
		_ = enc.Encode(row)
	case "session":
		if strings.TrimSpace(*session) == "" {
			fmt.Fprintln(os.Stderr, "missing -session")
			os.Exit(2)
		}
		n, err := idx.SessionEventCount(ctx, *session)
		if err != nil {
			fail("query", err)
		}
		_ = enc.Encode(map[string]any{"session": *session, "events": n})
	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q, "(want media|jobs|job|session)")
		os.Exit(2)
	}
}

func fail(what string, err error) {
	fmt.Fprintln(os.Stderr, what+":", err)
	os.Exit(1)
}
