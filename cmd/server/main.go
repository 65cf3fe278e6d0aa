package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"sketchcraft.ai/internal/gen"
	"sketchcraft.ai/internal/gen/ffmpeg"
	"sketchcraft.ai/internal/gen/google"
	"sketchcraft.ai/internal/media/cache"
	"sketchcraft.ai/internal/persistence/indexdb"
	"sketchcraft.ai/internal/persistence/objstore"
	persistlog "sketchcraft.ai/internal/persistence/log"
	"sketchcraft.ai/internal/session"
	"sketchcraft.ai/internal/sim/catalogs"
	"sketchcraft.ai/internal/sim/levels"
	"sketchcraft.ai/internal/sim/tuning"
	"sketchcraft.ai/internal/sim/world"
	"sketchcraft.ai/internal/transport/httpapi"
	"sketchcraft.ai/internal/transport/ws"
)

func main() {
	var (
		addr        = flag.String("addr", ":3000", "http listen address")
		configDir   = flag.String("configs", "./configs", "config directory")
		dataDir     = flag.String("data", "./data", "runtime data directory")
		tuningPath  = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		levelsPath  = flag.String("levels", "", "path to levels.yaml (default: <configs>/levels.yaml)")
		startLevel  = flag.String("start_level", "", "first level of every session (default: first in levels.yaml)")
		seed        = flag.Int64("seed", 1337, "world seed")
		apiKey      = flag.String("api_key", "", "model API key (or set GOOGLE_API_KEY)")
		ffmpegBin   = flag.String("ffmpeg", "ffmpeg", "ffmpeg executable")
		disableDB   = flag.Bool("disable_db", false, "disable the sqlite job/media index")
		autoAdvance = flag.Bool("auto_advance", true, "load the next level after a goal and restart after a game over")

		mirrorEndpoint = flag.String("mirror_endpoint", os.Getenv("MIRROR_ENDPOINT"), "S3-compatible endpoint for the media mirror (optional)")
		mirrorBucket   = flag.String("mirror_bucket", os.Getenv("MIRROR_BUCKET"), "media mirror bucket")
		mirrorPrefix   = flag.String("mirror_prefix", "cache", "object key prefix of mirrored media")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cat, err := catalogs.Load(filepath.Join(*configDir, "ai-config.json"))
	if err != nil {
		logger.Fatalf("load catalog: %v", err)
	}
	tune := loadTuning(orDefault(*tuningPath, filepath.Join(*configDir, "tuning.yaml")), logger)
	lv, err := levels.Load(orDefault(*levelsPath, filepath.Join(*configDir, "levels.yaml")))
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load levels: %v", err)
		}
		logger.Printf("no levels file; sessions start in the sandbox")
		lv = nil
	}

	key := strings.TrimSpace(*apiKey)
	if key == "" {
		key = strings.TrimSpace(os.Getenv("GOOGLE_API_KEY"))
	}
	if key == "" {
		logger.Printf("no API key; generation calls will fail")
	}

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(*dataDir, "index", "sketchcraft.sqlite"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
		if err := idx.UpsertCatalogs(*configDir, cat, tune); err != nil {
			logger.Printf("index catalogs: %v", err)
		}
	}

	mc, err := cache.New(filepath.Join(*dataDir, "cache"), tune.Cache.PoolSize, log.New(os.Stdout, "[cache] ", log.LstdFlags))
	if err != nil {
		logger.Fatalf("media cache: %v", err)
	}
	jobs, err := gen.NewJobStore(filepath.Join(*dataDir, "generated"), tune.Generation.FrameCount)
	if err != nil {
		logger.Fatalf("job store: %v", err)
	}

	genLog := log.New(os.Stdout, "[gen] ", log.LstdFlags)
	backends := google.FromCatalog(google.New(key, log.New(os.Stdout, "[google] ", log.LstdFlags)), cat, tune.Generation)
	if backends.Text == nil {
		logger.Fatalf("catalog names no %q model", catalogs.ModelAnalysis)
	}
	analyzer, err := gen.NewAnalyzer(cat, backends.Text, genLog)
	if err != nil {
		logger.Fatalf("analyzer: %v", err)
	}

	router := session.NewRouter()
	gcfg := gen.Config{
		Catalog:    cat,
		Cache:      mc,
		Jobs:       jobs,
		Images:     backends.Images,
		Frames:     ffmpeg.New(*ffmpegBin, 0, log.New(os.Stdout, "[ffmpeg] ", log.LstdFlags)),
		Generation: tune.Generation,
		Logger:     genLog,
		Progress:   router.OnProgress,
	}
	if backends.Video != nil {
		gcfg.Video = backends.Video
	}
	var media mediaFanout
	if idx != nil {
		media = append(media, idx)
		gcfg.Recorder = idx
	}
	mirror, err := openMirror(*mirrorEndpoint, *mirrorBucket, *mirrorPrefix, mc.Root(), logger)
	if err != nil {
		logger.Fatalf("media mirror: %v", err)
	}
	if mirror != nil {
		defer mirror.Close()
		media = append(media, mirror)
	}
	if len(media) > 0 {
		mc.SetRecorder(media)
	}
	coord, err := gen.NewCoordinator(gcfg)
	if err != nil {
		logger.Fatalf("coordinator: %v", err)
	}
	defer coord.Close()

	tickLog := persistlog.NewTickLogger(*dataDir)
	defer tickLog.Close()
	sessLog := persistlog.NewSessionLogger(*dataDir)
	defer sessLog.Close()
	events := eventFanout{sessLog}
	if idx != nil {
		events = append(events, idx)
	}

	rt := &runtime{
		sessionCfg: session.Config{
			World:        world.Config{Tuning: tune, Seed: *seed, Logger: log.New(os.Stdout, "[world] ", log.LstdFlags)},
			Levels:       lv,
			Start:        *startLevel,
			Classifier:   analyzer,
			Generator:    coord,
			Jobs:         jobs,
			Events:       events,
			Logger:       log.New(os.Stdout, "[session] ", log.LstdFlags),
			Router:       router,
			DefaultStyle: defaultStyle(cat),
			AutoAdvance:  *autoAdvance,
		},
		ticks:  tickLog,
		router: router,
		index:  idx,
		mirror: mirror,
		log:    logger,
	}

	info := ws.Info{
		TickRateHz:    tune.TickRateHz,
		Backends:      []string{string(gen.BackendGemini), string(gen.BackendImagen), string(gen.BackendVeo)},
		Styles:        cat.StyleIDs(),
		CatalogDigest: cat.Digest,
		FrameTotal:    tune.Generation.FrameCount,
	}
	if lv != nil {
		info.Levels = lv.IDs()
	}
	wsSrv := ws.NewServer(rt.newSession, info, ws.Options{}, log.New(os.Stdout, "[ws] ", log.LstdFlags))
	rt.ws = wsSrv

	api := httpapi.New(httpapi.Config{
		Catalog:      cat,
		Classifier:   analyzer,
		Generator:    coord,
		Jobs:         jobs,
		Index:        jobIndex(idx),
		Logger:       log.New(os.Stdout, "[http] ", log.LstdFlags),
		DefaultStyle: defaultStyle(cat),
	})

	mux := http.NewServeMux()
	api.Register(mux)
	rt.register(mux)
	mux.HandleFunc("/v1/ws", wsSrv.Handler())

	ctx, cancel := signalContext()
	defer cancel()

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (catalog %s, %d levels)", *addr, shortDigest(cat.Digest), len(info.Levels))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func loadTuning(path string, logger *log.Logger) tuning.Tuning {
	tune, err := tuning.Load(path)
	if err == nil {
		return tune
	}
	if os.IsNotExist(err) {
		logger.Printf("tuning not found (%s); using defaults", path)
		return tuning.Defaults()
	}
	logger.Fatalf("load tuning: %v", err)
	return tuning.Tuning{}
}

func orDefault(v, def string) string {
	if s := strings.TrimSpace(v); s != "" {
		return s
	}
	return def
}

// defaultStyle prefers "realistic", then the catalog's first style.
func defaultStyle(cat *catalogs.Catalog) string {
	for _, id := range cat.StyleIDs() {
		if id == "realistic" {
			return id
		}
	}
	if ids := cat.StyleIDs(); len(ids) > 0 {
		return ids[0]
	}
	return "realistic"
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}

// openMirror builds the optional media mirror. Credentials come from the
// environment only.
func openMirror(endpoint, bucket, prefix, root string, logger *log.Logger) (*objstore.Mirror, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, nil
	}
	c, err := objstore.New(objstore.Config{
		Endpoint:        endpoint,
		Bucket:          bucket,
		Region:          os.Getenv("MIRROR_REGION"),
		AccessKeyID:     os.Getenv("MIRROR_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("MIRROR_SECRET_ACCESS_KEY"),
	})
	if err != nil {
		return nil, err
	}
	logger.Printf("mirroring media to %s/%s", endpoint, bucket)
	return objstore.NewMirror(c, objstore.MirrorConfig{
		Root:   root,
		Prefix: prefix,
		Logger: log.New(os.Stdout, "[mirror] ", log.LstdFlags),
	}), nil
}

// jobIndex avoids handing httpapi a typed nil.
func jobIndex(idx *indexdb.SQLiteIndex) httpapi.JobIndex {
	if idx == nil {
		return nil
	}
	return idx
}
