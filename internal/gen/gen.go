// Package gen turns sketches into object descriptions and generated media.
// Model access sits behind small capability interfaces; the concrete REST
// clients live in gen/google and frame extraction in gen/ffmpeg.
package gen

import (
	"context"
	"fmt"
	"strings"

	"sketchcraft.ai/internal/media/cache"
)

// Backend is the generation model family a request asks for.
type Backend string

const (
	BackendGemini Backend = "gemini"
	BackendImagen Backend = "imagen"
	BackendVeo    Backend = "veo"
)

func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case BackendGemini, BackendImagen, BackendVeo:
		return b, nil
	default:
		return "", fmt.Errorf("unsupported backend: %q", s)
	}
}

func (b Backend) cacheKind() cache.Kind {
	if b == BackendGemini {
		return cache.KindGemini
	}
	return cache.KindImagen
}

// ResponseSchema names the JSON shape a text model must answer with.
type ResponseSchema string

const (
	SchemaTypeGuess  ResponseSchema = "type_guess"
	SchemaAttributes ResponseSchema = "attributes"
	SchemaCommand    ResponseSchema = "command"
)

type TextRequest struct {
	Prompt string
	// Image is an optional PNG sent alongside the prompt.
	Image  []byte
	Schema ResponseSchema
}

// TextModel answers a prompt with raw JSON text.
type TextModel interface {
	GenerateJSON(ctx context.Context, req TextRequest) (string, error)
}

type ImageRequest struct {
	Prompt string
	// Input is the player's sketch, used by backends that edit an image.
	Input []byte
}

// ImageGenerator returns encoded image bytes.
type ImageGenerator interface {
	Generate(ctx context.Context, req ImageRequest) ([]byte, error)
}

type Operation struct {
	Name string
}

type VideoStatus struct {
	Done bool
	URI  string
}

// VideoGenerator runs a long-running image-to-video job.
type VideoGenerator interface {
	Start(ctx context.Context, image []byte, prompt string) (Operation, error)
	Poll(ctx context.Context, op Operation) (VideoStatus, error)
	Download(ctx context.Context, uri string) ([]byte, error)
}

// FrameExtractor cuts still frames out of an encoded video.
type FrameExtractor interface {
	Extract(ctx context.Context, video []byte, timestamps []float64) ([][]byte, error)
}

// FrameTimestamps spreads n frames evenly over a clip of the given length,
// pulling the last one back by epsilon so it lands inside the clip.
func FrameTimestamps(n int, seconds, epsilon float64) []float64 {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []float64{0}
	}
	out := make([]float64, n)
	for i := 0; i < n-1; i++ {
		t := float64(i) * seconds / float64(n-1)
		out[i] = float64(int(t*100+0.5)) / 100
	}
	out[n-1] = seconds - epsilon
	return out
}
