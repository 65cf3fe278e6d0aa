package gen

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"sketchcraft.ai/internal/media/cache"
	"sketchcraft.ai/internal/media/imaging"
	"sketchcraft.ai/internal/sim/catalogs"
	"sketchcraft.ai/internal/sim/tuning"
)

type JobState string

const (
	JobQueued  JobState = "queued"
	JobRunning JobState = "running"
	JobDone    JobState = "done"
	JobFailed  JobState = "failed"
)

// JobStatus is one state change of a background animation job.
type JobStatus struct {
	Hash      string
	Type      string
	Style     string
	State     JobState
	Frames    int
	FromCache bool
	Error     string
	UpdatedAt time.Time
}

type JobRecorder interface {
	RecordJob(s JobStatus)
}

// ProgressFunc is told about frame progress for a job hash. It must not
// block.
type ProgressFunc func(hash string, ready bool, framesReady int)

type Config struct {
	Catalog *catalogs.Catalog
	Cache   *cache.Cache
	Jobs    *JobStore

	Images map[Backend]ImageGenerator
	Video  VideoGenerator
	Frames FrameExtractor

	Imaging    imaging.Options
	Generation tuning.Generation

	Logger   *log.Logger
	Progress ProgressFunc
	Recorder JobRecorder

	// Sleep waits between video polls. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Coordinator consults the media cache before every generator call and
// fills it afterwards. Animated requests return a pool image at once and
// produce their frames in the background.
type Coordinator struct {
	cfg Config
	log *log.Logger
	sf  singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewCoordinator(cfg Config) (*Coordinator, error) {
	if cfg.Catalog == nil || cfg.Cache == nil || cfg.Jobs == nil {
		return nil, fmt.Errorf("coordinator needs a catalog, a cache and a job store")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[gen] ", log.LstdFlags)
	}
	if cfg.Generation.FrameCount == 0 {
		cfg.Generation = tuning.Defaults().Generation
	}
	if cfg.Imaging.InnerSize == 0 {
		opts, err := imaging.OptionsFrom(cfg.Generation)
		if err != nil {
			return nil, err
		}
		cfg.Imaging = opts
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepCtx
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{cfg: cfg, log: cfg.Logger, ctx: ctx, cancel: cancel}, nil
}

// Close cancels background jobs and waits for them to unwind.
func (c *Coordinator) Close() {
	c.cancel()
	c.wg.Wait()
}

// Wait blocks until every background job has finished.
func (c *Coordinator) Wait() { c.wg.Wait() }

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type staticResult struct {
	image     []byte
	source    []byte
	fromCache bool
}

// GenerateStatic returns the processed thumbnail for (typ, style) on the
// given backend, generating it only when the pool is empty.
func (c *Coordinator) GenerateStatic(ctx context.Context, typ, style string, backend Backend, sketch []byte) ([]byte, error) {
	if backend == BackendVeo {
		return nil, fmt.Errorf("veo is animated; use GenerateAnimated")
	}
	r, err := c.static(ctx, typ, style, backend, sketch)
	if err != nil {
		return nil, err
	}
	return r.image, nil
}

func (c *Coordinator) static(ctx context.Context, typ, style string, backend Backend, sketch []byte) (staticResult, error) {
	k := cache.Key{Type: typ, Style: style, Kind: backend.cacheKind()}
	if b, _, ok := c.cfg.Cache.Pick(k); ok {
		return staticResult{image: b, source: b, fromCache: true}, nil
	}
	v, err, _ := c.sf.Do(k.Normalize().String(), func() (any, error) {
		if b, _, ok := c.cfg.Cache.Pick(k); ok {
			return staticResult{image: b, source: b, fromCache: true}, nil
		}
		raw, processed, err := c.render(ctx, typ, style, backend, sketch)
		if err != nil {
			return staticResult{}, err
		}
		if _, err := c.cfg.Cache.Put(k, processed); err != nil {
			c.log.Printf("cache: %v", err)
		}
		return staticResult{image: processed, source: raw}, nil
	})
	if err != nil {
		return staticResult{}, err
	}
	return v.(staticResult), nil
}

// render calls the generator and post-processes its output.
func (c *Coordinator) render(ctx context.Context, typ, style string, backend Backend, sketch []byte) (raw, processed []byte, err error) {
	g := c.cfg.Images[backend]
	if g == nil {
		return nil, nil, &GenerationError{Kind: InvalidRequest, Op: string(backend), Err: errors.New("backend not configured")}
	}
	promptKey := catalogs.PromptImagen
	if backend == BackendGemini {
		promptKey = catalogs.PromptGemini
	}
	prompt := c.cfg.Catalog.BuildPrompt(promptKey, map[string]string{
		"type":        typ,
		"visualStyle": c.cfg.Catalog.Style(style),
	})
	c.log.Printf("generating %s/%s with %s", typ, style, backend)
	raw, err = g.Generate(ctx, ImageRequest{Prompt: prompt, Input: sketch})
	if err != nil {
		return nil, nil, wrapGen(string(backend), err)
	}
	processed, err = imaging.Process(raw, c.cfg.Imaging)
	if err != nil {
		return nil, nil, &GenerationError{Kind: Unknown, Op: "postprocess", Err: err}
	}
	return raw, processed, nil
}

// Fill generates fresh variants until the pool for (typ, style, backend)
// is full. It returns how many it wrote.
func (c *Coordinator) Fill(ctx context.Context, typ, style string, backend Backend) (int, error) {
	k := cache.Key{Type: typ, Style: style, Kind: backend.cacheKind()}
	written := 0
	for len(c.cfg.Cache.Slots(k)) < c.cfg.Cache.PoolSize() {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		_, processed, err := c.render(ctx, typ, style, backend, nil)
		if err != nil {
			return written, err
		}
		if _, err := c.cfg.Cache.Put(k, processed); err != nil {
			if errors.Is(err, cache.ErrPoolFull) {
				break
			}
			return written, err
		}
		written++
	}
	return written, nil
}

// Animated is the immediate answer to a veo request.
type Animated struct {
	Hash  string
	Image []byte
}

type animJob struct {
	hash   string
	typ    string
	style  string
	source []byte
}

// GenerateAnimated serves a static image from the Imagen pool, generating
// one when the pool is empty, and schedules frame production for it.
func (c *Coordinator) GenerateAnimated(ctx context.Context, typ, style string) (Animated, error) {
	st, err := c.static(ctx, typ, style, BackendImagen, nil)
	if err != nil {
		return Animated{}, err
	}
	hash := NewHash()
	if err := c.cfg.Jobs.WriteImage(hash, st.image); err != nil {
		c.log.Printf("job %s: write image: %v", hash, err)
	}
	c.record(JobStatus{Hash: hash, Type: typ, Style: style, State: JobQueued})

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.produceFrames(animJob{hash: hash, typ: typ, style: style, source: st.source})
	}()
	return Animated{Hash: hash, Image: st.image}, nil
}

func (c *Coordinator) produceFrames(job animJob) {
	c.record(JobStatus{Hash: job.hash, Type: job.typ, Style: job.style, State: JobRunning})

	frames, fromCache, err := c.frames(c.ctx, job)
	if err != nil {
		c.fail(job, err)
		return
	}
	for i, f := range frames {
		if err := c.cfg.Jobs.WriteFrame(job.hash, i, f); err != nil {
			c.fail(job, fmt.Errorf("write frame %d: %w", i, err))
			return
		}
		c.progress(job.hash, i+1 == len(frames), i+1)
	}
	if anim, err := imaging.LoopGIF(frames, c.cfg.Generation.LoopFrameDelayMs); err != nil {
		c.log.Printf("job %s: loop: %v", job.hash, err)
	} else if err := c.cfg.Jobs.WriteAnimation(job.hash, anim); err != nil {
		c.log.Printf("job %s: write loop: %v", job.hash, err)
	}
	c.record(JobStatus{Hash: job.hash, Type: job.typ, Style: job.style, State: JobDone, Frames: len(frames), FromCache: fromCache})
	c.log.Printf("job %s: %d frames ready (cached=%v)", job.hash, len(frames), fromCache)
}

// frames returns the processed frame set for job, from the frame cache or
// from a fresh video.
func (c *Coordinator) frames(ctx context.Context, job animJob) ([][]byte, bool, error) {
	if cached, ok := c.cfg.Cache.GetFrames(job.typ, job.style); ok {
		return cached, true, nil
	}
	if c.cfg.Video == nil || c.cfg.Frames == nil {
		return nil, false, &GenerationError{Kind: InvalidRequest, Op: "veo", Err: errors.New("video backend not configured")}
	}
	g := c.cfg.Generation
	padded, err := imaging.PadToAspect(job.source, g.VideoWidth, g.VideoHeight)
	if err != nil {
		return nil, false, &GenerationError{Kind: Unknown, Op: "veo pad", Err: err}
	}
	op, err := c.cfg.Video.Start(ctx, padded, c.cfg.Catalog.Prompts[catalogs.PromptVeo])
	if err != nil {
		return nil, false, wrapGen("veo start", err)
	}
	uri, err := c.awaitVideo(ctx, op)
	if err != nil {
		return nil, false, err
	}
	video, err := c.cfg.Video.Download(ctx, uri)
	if err != nil {
		return nil, false, wrapGen("veo download", err)
	}
	raw, err := c.cfg.Frames.Extract(ctx, video, FrameTimestamps(g.FrameCount, g.VideoSeconds, g.FrameEpsilon))
	if err != nil {
		return nil, false, err
	}
	if len(raw) != g.FrameCount {
		return nil, false, &ExtractionError{Frame: len(raw), Err: fmt.Errorf("got %d of %d frames", len(raw), g.FrameCount)}
	}
	out := make([][]byte, len(raw))
	for i, f := range raw {
		p, err := imaging.ProcessFrame(f, c.cfg.Imaging)
		if err != nil {
			return nil, false, &ExtractionError{Frame: i, Err: err}
		}
		out[i] = p
	}
	if err := c.cfg.Cache.PutFrames(job.typ, job.style, out); err != nil {
		c.log.Printf("cache: %v", err)
	}
	return out, false, nil
}

// awaitVideo polls op at a fixed interval up to the configured attempt cap.
func (c *Coordinator) awaitVideo(ctx context.Context, op Operation) (string, error) {
	g := c.cfg.Generation
	interval := time.Duration(g.PollIntervalMs) * time.Millisecond
	for attempt := 1; attempt <= g.PollMaxAttempts; attempt++ {
		if err := c.cfg.Sleep(ctx, interval); err != nil {
			return "", &GenerationError{Kind: Unknown, Op: "veo poll", Err: err}
		}
		st, err := c.cfg.Video.Poll(ctx, op)
		if err != nil {
			return "", wrapGen("veo poll", err)
		}
		if !st.Done {
			continue
		}
		if st.URI == "" {
			return "", &GenerationError{Kind: Unknown, Op: "veo poll", Err: errors.New("no video uri in response")}
		}
		return st.URI, nil
	}
	return "", &GenerationError{Kind: Unknown, Op: "veo poll", Err: fmt.Errorf("not done after %d polls", g.PollMaxAttempts)}
}

func (c *Coordinator) fail(job animJob, err error) {
	c.log.Printf("job %s: %v", job.hash, err)
	if werr := c.cfg.Jobs.WriteError(job.hash, err); werr != nil {
		c.log.Printf("job %s: write error marker: %v", job.hash, werr)
	}
	c.record(JobStatus{Hash: job.hash, Type: job.typ, Style: job.style, State: JobFailed, Error: err.Error()})
	c.progress(job.hash, false, 0)
}

func (c *Coordinator) record(s JobStatus) {
	if c.cfg.Recorder == nil {
		return
	}
	s.UpdatedAt = time.Now().UTC()
	c.cfg.Recorder.RecordJob(s)
}

func (c *Coordinator) progress(hash string, ready bool, n int) {
	if c.cfg.Progress != nil {
		c.cfg.Progress(hash, ready, n)
	}
}
