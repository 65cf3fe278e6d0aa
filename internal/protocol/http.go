package protocol

import (
	"encoding/base64"
	"errors"
	"strings"
)

// HTTP request and response bodies.

// AnalyseImageRequest carries the sketch as a PNG data URL in Prompt.
type AnalyseImageRequest struct {
	Prompt string `json:"prompt"`
}

type AnalysisResponse struct {
	Type       string   `json:"type"`
	Attributes []string `json:"attributes,omitempty"`
}

// GenerateImageRequest names the object type in Prompt. ImageData is the
// optional sketch for image-to-image backends.
type GenerateImageRequest struct {
	Prompt    string `json:"prompt"`
	ImageData string `json:"imageData,omitempty"`
	Backend   string `json:"backend"`
	Style     string `json:"style,omitempty"`
}

// AnimatedResponse answers a veo request: the pool image now, frames later
// under Hash.
type AnimatedResponse struct {
	Hash           string `json:"hash"`
	ProcessedImage string `json:"processedImage"`
}

type TextToCommandRequest struct {
	Command        string   `json:"command"`
	CurrentTargets []string `json:"currentTargets,omitempty"`
}

type CommandResponse struct {
	Verb   string `json:"verb"`
	Target string `json:"target"`
}

type FramesResponse struct {
	Ready    bool `json:"ready"`
	Progress int  `json:"progress"`
	Total    int  `json:"total"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// BlockedResponse is the dedicated answer for content the safety rules
// reject. It is sent with status 200.
type BlockedResponse struct {
	Type    string `json:"type"`
	Blocked bool   `json:"blocked"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func Blocked() BlockedResponse {
	return BlockedResponse{
		Type:    "blocked",
		Blocked: true,
		Code:    ErrBlocked,
		Message: "content blocked by safety settings",
	}
}

var ErrBadImageData = errors.New("invalid image data format")

// DecodeImageData accepts a data URL ("data:image/png;base64,...") or bare
// base64 and returns the raw bytes.
func DecodeImageData(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		i := strings.IndexByte(s, ',')
		if i < 0 || !strings.Contains(s[:i], ";base64") {
			return nil, ErrBadImageData
		}
		s = s[i+1:]
	}
	if s == "" {
		return nil, ErrBadImageData
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		if b, err2 := base64.RawStdEncoding.DecodeString(s); err2 == nil {
			return b, nil
		}
		return nil, ErrBadImageData
	}
	return b, nil
}

// EncodePNG renders b as a PNG data URL.
func EncodePNG(b []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(b)
}
