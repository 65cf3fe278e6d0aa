package gen

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"sketchcraft.ai/internal/media/cache"
	"sketchcraft.ai/internal/sim/catalogs"
	"sketchcraft.ai/internal/sim/tuning"
)

var quiet = log.New(io.Discard, "", 0)

func pngOf(t testing.TB, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func repoCatalog(t *testing.T) *catalogs.Catalog {
	t.Helper()
	_, file, _, _ := runtime.Caller(0)
	c, err := catalogs.Load(filepath.Join(filepath.Dir(file), "..", "..", "configs", "ai-config.json"))
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return c
}

type fakeImages struct {
	calls atomic.Int32
	img   []byte
	err   error
	gate  chan struct{}
}

func (f *fakeImages) Generate(ctx context.Context, req ImageRequest) ([]byte, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.img, nil
}

// fakeText answers each schema from a queue.
type fakeText struct {
	mu      sync.Mutex
	answers map[ResponseSchema][]string
	reqs    []TextRequest
}

func (f *fakeText) GenerateJSON(ctx context.Context, req TextRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	q := f.answers[req.Schema]
	if len(q) == 0 {
		return "", errors.New("no scripted answer")
	}
	f.answers[req.Schema] = q[1:]
	return q[0], nil
}

type fakeVideo struct {
	starts    atomic.Int32
	polls     atomic.Int32
	doneAfter int32
	video     []byte
}

func (f *fakeVideo) Start(ctx context.Context, img []byte, prompt string) (Operation, error) {
	f.starts.Add(1)
	return Operation{Name: "operations/1"}, nil
}

func (f *fakeVideo) Poll(ctx context.Context, op Operation) (VideoStatus, error) {
	n := f.polls.Add(1)
	if f.doneAfter > 0 && n >= f.doneAfter {
		return VideoStatus{Done: true, URI: "https://example.invalid/video?alt=media"}, nil
	}
	return VideoStatus{}, nil
}

func (f *fakeVideo) Download(ctx context.Context, uri string) ([]byte, error) {
	return f.video, nil
}

type fakeFrames struct {
	calls  atomic.Int32
	frames [][]byte
	err    error
	stamps []float64
}

func (f *fakeFrames) Extract(ctx context.Context, video []byte, timestamps []float64) ([][]byte, error) {
	f.calls.Add(1)
	f.stamps = timestamps
	if f.err != nil {
		return nil, f.err
	}
	return f.frames, nil
}

type jobLog struct {
	mu     sync.Mutex
	states []JobState
}

func (j *jobLog) RecordJob(s JobStatus) {
	j.mu.Lock()
	j.states = append(j.states, s.State)
	j.mu.Unlock()
}

type rig struct {
	coord  *Coordinator
	cache  *cache.Cache
	jobs   *JobStore
	imagen *fakeImages
	gemini *fakeImages
	video  *fakeVideo
	frames *fakeFrames
	log    *jobLog
}

func newRig(t *testing.T) *rig {
	t.Helper()
	dir := t.TempDir()
	c, err := cache.New(filepath.Join(dir, "cache"), 3, quiet)
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	jobs, err := NewJobStore(filepath.Join(dir, "generated"), 4)
	if err != nil {
		t.Fatalf("jobs: %v", err)
	}
	frame := pngOf(t, 64, 64, color.RGBA{G: 0xff, A: 0xff})
	r := &rig{
		cache:  c,
		jobs:   jobs,
		imagen: &fakeImages{img: pngOf(t, 256, 256, color.RGBA{R: 0xff, A: 0xff})},
		gemini: &fakeImages{img: pngOf(t, 256, 256, color.RGBA{B: 0xff, A: 0xff})},
		video:  &fakeVideo{doneAfter: 2, video: []byte("mp4")},
		frames: &fakeFrames{frames: [][]byte{frame, frame, frame, frame}},
		log:    &jobLog{},
	}
	g := tuning.Defaults().Generation
	coord, err := NewCoordinator(Config{
		Catalog:    repoCatalog(t),
		Cache:      c,
		Jobs:       jobs,
		Images:     map[Backend]ImageGenerator{BackendImagen: r.imagen, BackendGemini: r.gemini},
		Video:      r.video,
		Frames:     r.frames,
		Generation: g,
		Logger:     quiet,
		Recorder:   r.log,
		Sleep:      func(ctx context.Context, d time.Duration) error { return ctx.Err() },
	})
	if err != nil {
		t.Fatalf("coordinator: %v", err)
	}
	t.Cleanup(coord.Close)
	r.coord = coord
	return r
}
