package ffmpeg

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"sketchcraft.ai/internal/gen"
)

func TestArgs_FilterAndSeek(t *testing.T) {
	e := New("", 1080, log.New(io.Discard, "", 0))
	args := strings.Join(e.args("in.mp4", "out.png", 1.67), " ")
	for _, want := range []string{"-ss 1.67", "-i in.mp4", "-frames:v 1", "scale=1080:1080", "pad=1080:1080", "-y out.png"} {
		if !strings.Contains(args, want) {
			t.Fatalf("args %q missing %q", args, want)
		}
	}
}

func TestExtract_EmptyVideo(t *testing.T) {
	e := New("", 0, log.New(io.Discard, "", 0))
	_, err := e.Extract(context.Background(), nil, []float64{0})
	var xe *gen.ExtractionError
	if !errors.As(err, &xe) {
		t.Fatalf("err = %v", err)
	}
}

// fakeBin writes a shell script that stands in for ffmpeg: it writes body
// to its last argument.
func fakeBin(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in")
	}
	p := filepath.Join(t.TempDir(), "ffmpeg")
	script := "#!/bin/sh\nfor last; do :; done\nprintf '" + body + "' > \"$last\"\n"
	if err := os.WriteFile(p, []byte(script), 0o755); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestExtract_WithStandIn(t *testing.T) {
	e := New(fakeBin(t, "PNG"), 64, log.New(io.Discard, "", 0))
	frames, err := e.Extract(context.Background(), []byte("mp4"), []float64{0, 1.67, 3.33, 4.95})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(frames) != 4 || string(frames[3]) != "PNG" {
		t.Fatalf("frames = %q", frames)
	}
}

func TestExtract_EmptyFrameFails(t *testing.T) {
	e := New(fakeBin(t, ""), 64, log.New(io.Discard, "", 0))
	_, err := e.Extract(context.Background(), []byte("mp4"), []float64{0, 1})
	var xe *gen.ExtractionError
	if !errors.As(err, &xe) || xe.Frame != 0 {
		t.Fatalf("err = %v", err)
	}
}
