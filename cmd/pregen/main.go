package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"

	"golang.org/x/sync/errgroup"

	"sketchcraft.ai/internal/gen"
	"sketchcraft.ai/internal/gen/google"
	"sketchcraft.ai/internal/media/cache"
	"sketchcraft.ai/internal/persistence/indexdb"
	"sketchcraft.ai/internal/sim/catalogs"
	"sketchcraft.ai/internal/sim/tuning"
)

// pregen fills the media pools for every catalog type and style so a fresh
// deployment serves cached images from the first sketch on.
func main() {
	var (
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		apiKey     = flag.String("api_key", "", "model API key (or set GOOGLE_API_KEY)")
		backends   = flag.String("backends", "imagen,gemini", "comma separated image backends to fill")
		types      = flag.String("types", "", "comma separated object types (default: every catalog type)")
		styles     = flag.String("styles", "", "comma separated style ids (default: every catalog style)")
		parallel   = flag.Int("parallel", 2, "pools filled concurrently")
		disableDB  = flag.Bool("disable_db", false, "do not index written media")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[pregen] ", log.LstdFlags|log.Lmicroseconds)

	cat, err := catalogs.Load(filepath.Join(*configDir, "ai-config.json"))
	if err != nil {
		logger.Fatalf("load catalog: %v", err)
	}
	path := *tuningPath
	if path == "" {
		path = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		tune = tuning.Defaults()
	}
	bks, err := parseBackends(*backends)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	jobs := plan(pick(cat.SortedTypes(), *types), pick(cat.StyleIDs(), *styles), bks)
	if len(jobs) == 0 {
		logger.Fatalf("nothing to fill")
	}

	key := strings.TrimSpace(*apiKey)
	if key == "" {
		key = strings.TrimSpace(os.Getenv("GOOGLE_API_KEY"))
	}
	if key == "" {
		logger.Fatalf("missing -api_key or GOOGLE_API_KEY")
	}

	mc, err := cache.New(filepath.Join(*dataDir, "cache"), tune.Cache.PoolSize, log.New(os.Stdout, "[cache] ", log.LstdFlags))
	if err != nil {
		logger.Fatalf("media cache: %v", err)
	}
	if !*disableDB {
		idx, err := indexdb.OpenSQLite(filepath.Join(*dataDir, "index", "sketchcraft.sqlite"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
		mc.SetRecorder(idx)
	}
	store, err := gen.NewJobStore(filepath.Join(*dataDir, "generated"), tune.Generation.FrameCount)
	if err != nil {
		logger.Fatalf("job store: %v", err)
	}
	models := google.FromCatalog(google.New(key, log.New(os.Stdout, "[google] ", log.LstdFlags)), cat, tune.Generation)
	coord, err := gen.NewCoordinator(gen.Config{
		Catalog:    cat,
		Cache:      mc,
		Jobs:       store,
		Images:     models.Images,
		Generation: tune.Generation,
		Logger:     log.New(os.Stdout, "[gen] ", log.LstdFlags),
	})
	if err != nil {
		logger.Fatalf("coordinator: %v", err)
	}
	defer coord.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var written, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, *parallel))
	for _, j := range jobs {
		j := j // per-iteration copy; go directive is 1.21 (pre-1.22 loopvar semantics)
		g.Go(func() error {
			n, err := coord.Fill(gctx, j.typ, j.style, j.backend)
			written.Add(int64(n))
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				// One failing pool does not stop the others.
				failed.Add(1)
				logger.Printf("%s: %v (wrote %d)", j, err, n)
				return nil
			}
			if n > 0 {
				logger.Printf("%s: wrote %d", j, n)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Printf("stopped: %v", err)
	}
	logger.Printf("done: pools=%d written=%d failed=%d", len(jobs), written.Load(), failed.Load())
	if failed.Load() > 0 {
		os.Exit(1)
	}
}

type fillJob struct {
	typ     string
	style   string
	backend gen.Backend
}

func (j fillJob) String() string {
	return fmt.Sprintf("%s/%s/%s", j.typ, j.style, j.backend)
}

func plan(types, styles []string, backends []gen.Backend) []fillJob {
	out := make([]fillJob, 0, len(types)*len(styles)*len(backends))
	for _, t := range types {
		for _, s := range styles {
			for _, b := range backends {
				out = append(out, fillJob{typ: t, style: s, backend: b})
			}
		}
	}
	return out
}

// parseBackends accepts the pooled image backends. Veo pools hold frames
// produced from imagen stills, so it has nothing to fill on its own.
func parseBackends(s string) ([]gen.Backend, error) {
	var out []gen.Backend
	seen := map[gen.Backend]bool{}
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		b, err := gen.ParseBackend(p)
		if err != nil {
			return nil, err
		}
		if b == gen.BackendVeo {
			return nil, fmt.Errorf("backend %q cannot be pre-generated", p)
		}
		if !seen[b] {
			seen[b] = true
			out = append(out, b)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no backends")
	}
	return out, nil
}

// pick returns the subset of all named in csv, or all when csv is empty.
func pick(all []string, csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return all
	}
	known := map[string]bool{}
	for _, a := range all {
		known[a] = true
	}
	var out []string
	for _, p := range strings.Split(csv, ",") {
		if p = strings.TrimSpace(p); known[p] {
			out = append(out, p)
		}
	}
	return out
}
