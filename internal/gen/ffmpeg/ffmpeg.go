// Package ffmpeg extracts still frames from a video with the ffmpeg binary.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"sketchcraft.ai/internal/gen"
)

// squareFilter center-crops to a square and fits it into size x size.
func squareFilter(size int) string {
	s := strconv.Itoa(size)
	return `crop=min(iw\,ih):min(iw\,ih):(iw-min(iw\,ih))/2:(ih-min(iw\,ih))/2,` +
		"scale=" + s + ":" + s + ":force_original_aspect_ratio=decrease," +
		"pad=" + s + ":" + s + ":(ow-iw)/2:(oh-ih)/2"
}

type Extractor struct {
	// Bin is the ffmpeg executable; empty means "ffmpeg" on PATH.
	Bin string
	// Size is the square edge of extracted frames.
	Size int
	Log  *log.Logger
}

func New(bin string, size int, logger *log.Logger) *Extractor {
	if bin == "" {
		bin = "ffmpeg"
	}
	if size <= 0 {
		size = 1080
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[ffmpeg] ", log.LstdFlags)
	}
	return &Extractor{Bin: bin, Size: size, Log: logger}
}

func (e *Extractor) args(in, out string, ts float64) []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-ss", strconv.FormatFloat(ts, 'f', -1, 64),
		"-i", in,
		"-frames:v", "1",
		"-vf", squareFilter(e.Size),
		"-q:v", "2",
		"-y", out,
	}
}

// Extract writes video to a scratch directory and cuts one PNG per
// timestamp. Any missing or empty frame fails the whole call.
func (e *Extractor) Extract(ctx context.Context, video []byte, timestamps []float64) ([][]byte, error) {
	if len(video) == 0 {
		return nil, &gen.ExtractionError{Frame: -1, Err: errors.New("empty video")}
	}
	dir, err := os.MkdirTemp("", "frames-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "input.mp4")
	if err := os.WriteFile(in, video, 0o644); err != nil {
		return nil, err
	}
	out := make([][]byte, len(timestamps))
	for i, ts := range timestamps {
		path := filepath.Join(dir, fmt.Sprintf("frame%d.png", i))
		cmd := exec.CommandContext(ctx, e.Bin, e.args(in, path, ts)...)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			msg := strings.TrimSpace(stderr.String())
			if msg != "" {
				e.Log.Printf("frame %d at %.2fs: %s", i, ts, msg)
			}
			return nil, &gen.ExtractionError{Frame: i, Err: err}
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, &gen.ExtractionError{Frame: i, Err: err}
		}
		if len(b) == 0 {
			return nil, &gen.ExtractionError{Frame: i, Err: errors.New("empty frame")}
		}
		out[i] = b
	}
	return out, nil
}

var _ gen.FrameExtractor = (*Extractor)(nil)
