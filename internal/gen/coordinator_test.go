package gen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"sketchcraft.ai/internal/media/cache"
)

func TestGenerateStatic_CachedAfterFirstCall(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	a, err := r.coord.GenerateStatic(ctx, "X", "cartoon", BackendImagen, nil)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	b, err := r.coord.GenerateStatic(ctx, "x", "Cartoon", BackendImagen, nil)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if n := r.imagen.calls.Load(); n != 1 {
		t.Fatalf("generator calls = %d, want 1", n)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("second call returned different bytes")
	}
}

func TestGenerateStatic_ConcurrentDeduped(t *testing.T) {
	r := newRig(t)
	r.imagen.gate = make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.coord.GenerateStatic(context.Background(), "tree", "pixel", BackendImagen, nil); err != nil {
				t.Errorf("generate: %v", err)
			}
		}()
	}
	close(r.imagen.gate)
	wg.Wait()
	if n := r.imagen.calls.Load(); n != 1 {
		t.Fatalf("generator calls = %d, want 1", n)
	}
	if got := r.cache.Slots(cache.Key{Type: "tree", Style: "pixel", Kind: cache.KindImagen}); len(got) != 1 {
		t.Fatalf("slots = %v", got)
	}
}

func TestGenerateStatic_BackendsKeepSeparatePools(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	if _, err := r.coord.GenerateStatic(ctx, "fan", "pixel", BackendGemini, []byte("sketch")); err != nil {
		t.Fatalf("gemini: %v", err)
	}
	if _, err := r.coord.GenerateStatic(ctx, "fan", "pixel", BackendImagen, nil); err != nil {
		t.Fatalf("imagen: %v", err)
	}
	if r.gemini.calls.Load() != 1 || r.imagen.calls.Load() != 1 {
		t.Fatalf("calls gemini=%d imagen=%d", r.gemini.calls.Load(), r.imagen.calls.Load())
	}
}

func TestGenerateStatic_ErrorNotCached(t *testing.T) {
	r := newRig(t)
	r.imagen.err = &GenerationError{Kind: RateLimited, Op: "imagen"}
	_, err := r.coord.GenerateStatic(context.Background(), "bomb", "pixel", BackendImagen, nil)
	if KindOf(err) != RateLimited {
		t.Fatalf("err = %v", err)
	}
	if got := r.cache.Slots(cache.Key{Type: "bomb", Style: "pixel", Kind: cache.KindImagen}); len(got) != 0 {
		t.Fatalf("failed generation cached: %v", got)
	}

	r.imagen.err = errors.New("boom")
	_, err = r.coord.GenerateStatic(context.Background(), "bomb", "pixel", BackendImagen, nil)
	var ge *GenerationError
	if !errors.As(err, &ge) || ge.Kind != Unknown {
		t.Fatalf("plain error not wrapped: %v", err)
	}
}

func TestFill_StopsAtPoolSize(t *testing.T) {
	r := newRig(t)
	n, err := r.coord.Fill(context.Background(), "cloud", "cartoon", BackendImagen)
	if err != nil || n != 3 {
		t.Fatalf("fill = %d, %v", n, err)
	}
	n, err = r.coord.Fill(context.Background(), "cloud", "cartoon", BackendImagen)
	if err != nil || n != 0 {
		t.Fatalf("refill = %d, %v", n, err)
	}
	if r.imagen.calls.Load() != 3 {
		t.Fatalf("calls = %d", r.imagen.calls.Load())
	}
}

func TestGenerateAnimated_EmptyPoolCreatesSlotZero(t *testing.T) {
	r := newRig(t)
	var mu sync.Mutex
	var ready bool
	r.coord.cfg.Progress = func(hash string, ok bool, n int) {
		mu.Lock()
		ready = ready || (ok && n == 4)
		mu.Unlock()
	}

	res, err := r.coord.GenerateAnimated(context.Background(), "lamp", "realistic")
	if err != nil {
		t.Fatalf("animated: %v", err)
	}
	if !ValidHash(res.Hash) || len(res.Image) == 0 {
		t.Fatalf("result = %+v", res)
	}
	slot0, ok := r.cache.Get(cache.Key{Type: "lamp", Style: "realistic", Kind: cache.KindImagen}, 0)
	if !ok || !bytes.Equal(slot0, res.Image) {
		t.Fatalf("static image not served from pool slot 0")
	}

	r.coord.Wait()
	if p := r.jobs.Progress(res.Hash); !p.Ready || p.Progress != 4 {
		t.Fatalf("progress = %+v", p)
	}
	if !ready {
		t.Fatalf("progress callback never reported ready")
	}
	if _, ok := r.cache.GetFrames("lamp", "realistic"); !ok {
		t.Fatalf("frames not cached")
	}
	want := []float64{0, 1.67, 3.33, 4.95}
	for i, ts := range r.frames.stamps {
		if ts != want[i] {
			t.Fatalf("timestamps = %v, want %v", r.frames.stamps, want)
		}
	}
	if r.video.starts.Load() != 1 || r.imagen.calls.Load() != 1 {
		t.Fatalf("starts=%d imagen=%d", r.video.starts.Load(), r.imagen.calls.Load())
	}
	if _, bad := r.jobs.ReadError(res.Hash); bad {
		t.Fatalf("unexpected error marker")
	}
}

func TestGenerateAnimated_FrameCacheSkipsModel(t *testing.T) {
	r := newRig(t)
	first, err := r.coord.GenerateAnimated(context.Background(), "lamp", "realistic")
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	r.coord.Wait()
	second, err := r.coord.GenerateAnimated(context.Background(), "lamp", "realistic")
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	r.coord.Wait()
	if first.Hash == second.Hash {
		t.Fatalf("hash reused")
	}
	if r.video.starts.Load() != 1 || r.frames.calls.Load() != 1 || r.imagen.calls.Load() != 1 {
		t.Fatalf("starts=%d extracts=%d imagen=%d", r.video.starts.Load(), r.frames.calls.Load(), r.imagen.calls.Load())
	}
	if !r.jobs.Progress(second.Hash).Ready {
		t.Fatalf("cached frames not published for second job")
	}
}

func TestGenerateAnimated_PollCapWritesMarker(t *testing.T) {
	r := newRig(t)
	r.video.doneAfter = 0
	res, err := r.coord.GenerateAnimated(context.Background(), "rocket", "pixel")
	if err != nil {
		t.Fatalf("animated: %v", err)
	}
	r.coord.Wait()
	raw, ok := r.jobs.ReadError(res.Hash)
	if !ok {
		t.Fatalf("no error marker")
	}
	var m ErrorMarker
	if err := json.Unmarshal(raw, &m); err != nil || m.Error == "" || m.Timestamp.IsZero() {
		t.Fatalf("marker = %s, %v", raw, err)
	}
	if got := r.video.polls.Load(); got != 30 {
		t.Fatalf("polls = %d, want cap of 30", got)
	}
	if p := r.jobs.Progress(res.Hash); p.Progress != 0 {
		t.Fatalf("progress = %+v", p)
	}
	r.log.mu.Lock()
	last := r.log.states[len(r.log.states)-1]
	r.log.mu.Unlock()
	if last != JobFailed {
		t.Fatalf("last state = %s", last)
	}
}

func TestGenerateAnimated_ExtractionFailure(t *testing.T) {
	r := newRig(t)
	r.frames.err = &ExtractionError{Frame: 2, Err: errors.New("empty frame")}
	res, err := r.coord.GenerateAnimated(context.Background(), "bird", "pixel")
	if err != nil {
		t.Fatalf("animated: %v", err)
	}
	r.coord.Wait()
	if _, ok := r.jobs.ReadError(res.Hash); !ok {
		t.Fatalf("no error marker")
	}
	if _, ok := r.cache.GetFrames("bird", "pixel"); ok {
		t.Fatalf("failed job cached frames")
	}
}

func TestFrameTimestamps(t *testing.T) {
	got := FrameTimestamps(4, 5, 0.05)
	want := []float64{0, 1.67, 3.33, 4.95}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestParseBackend(t *testing.T) {
	for _, s := range []string{"gemini", "IMAGEN", " veo "} {
		if _, err := ParseBackend(s); err != nil {
			t.Fatalf("%q: %v", s, err)
		}
	}
	if _, err := ParseBackend("dalle"); err == nil {
		t.Fatalf("unsupported backend accepted")
	}
}
