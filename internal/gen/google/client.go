// Package google talks to the Generative Language REST API: Gemini for
// analysis and image editing, Imagen for text-to-image and Veo for
// image-to-video.
package google

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"sketchcraft.ai/internal/gen"
)

const DefaultBaseURL = "https://generativelanguage.googleapis.com"

// maxBody caps any response we read into memory, videos included.
const maxBody = 256 << 20

type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
	Log     *log.Logger
}

func New(apiKey string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(os.Stderr, "[google] ", log.LstdFlags)
	}
	return &Client{
		BaseURL: DefaultBaseURL,
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 2 * time.Minute},
		Log:     logger,
	}
}

func (c *Client) url(path string) string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

// apiError is the error envelope of the REST API.
type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, op, method, url string, body any, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &gen.GenerationError{Kind: gen.InvalidRequest, Op: op, Err: err}
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return &gen.GenerationError{Kind: gen.InvalidRequest, Op: op, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("x-goog-api-key", c.APIKey)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return &gen.GenerationError{Kind: gen.Unknown, Op: op, Err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return &gen.GenerationError{Kind: gen.Unknown, Op: op, Err: err}
	}
	if resp.StatusCode/100 != 2 {
		c.Log.Printf("%s: %s", op, resp.Status)
		msg := strings.TrimSpace(string(raw))
		var ae apiError
		if json.Unmarshal(raw, &ae) == nil && ae.Error.Message != "" {
			msg = ae.Error.Message
		}
		return &gen.GenerationError{
			Kind: gen.KindForStatus(resp.StatusCode),
			Op:   op,
			Err:  fmt.Errorf("%s: %s", resp.Status, msg),
		}
	}
	if out == nil {
		return nil
	}
	if b, ok := out.(*[]byte); ok {
		*b = raw
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &gen.GenerationError{Kind: gen.Unknown, Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type safetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type generationConfig struct {
	ResponseMimeType   string   `json:"responseMimeType,omitempty"`
	ResponseSchema     any      `json:"responseSchema,omitempty"`
	ResponseModalities []string `json:"responseModalities,omitempty"`
	Temperature        *float64 `json:"temperature,omitempty"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
	SafetySettings   []safetySetting  `json:"safetySettings,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// blocked reports a safety stop as a content-blocked error.
func (r generateResponse) blocked(op string) error {
	if r.PromptFeedback.BlockReason != "" {
		return &gen.GenerationError{Kind: gen.ContentBlocked, Op: op, Err: errors.New(r.PromptFeedback.BlockReason)}
	}
	if len(r.Candidates) > 0 {
		switch r.Candidates[0].FinishReason {
		case "SAFETY", "PROHIBITED_CONTENT", "IMAGE_SAFETY", "BLOCKLIST":
			return &gen.GenerationError{Kind: gen.ContentBlocked, Op: op, Err: errors.New(r.Candidates[0].FinishReason)}
		}
	}
	return nil
}

var relaxedSafety = []safetySetting{
	{Category: "HARM_CATEGORY_HARASSMENT", Threshold: "BLOCK_NONE"},
	{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: "BLOCK_NONE"},
	{Category: "HARM_CATEGORY_SEXUALLY_EXPLICIT", Threshold: "BLOCK_NONE"},
	{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: "BLOCK_NONE"},
}

func imagePart(png []byte) part {
	return part{InlineData: &inlineData{MimeType: "image/png", Data: base64.StdEncoding.EncodeToString(png)}}
}

func (c *Client) generateContent(ctx context.Context, op, model string, req generateRequest) (generateResponse, error) {
	var resp generateResponse
	err := c.do(ctx, op, http.MethodPost, c.url("/v1beta/models/"+model+":generateContent"), req, &resp)
	if err != nil {
		return resp, err
	}
	if err := resp.blocked(op); err != nil {
		return resp, err
	}
	return resp, nil
}

// TextModel answers prompts with schema-constrained JSON.
type TextModel struct {
	Client *Client
	Model  string
	// AttributeKeys shapes the attribute answer schema.
	AttributeKeys []string
}

type schemaNode struct {
	Type       string                `json:"type"`
	Properties map[string]schemaNode `json:"properties,omitempty"`
}

func (m *TextModel) schema(s gen.ResponseSchema) any {
	switch s {
	case gen.SchemaTypeGuess:
		return schemaNode{Type: "OBJECT", Properties: map[string]schemaNode{"type": {Type: "STRING"}}}
	case gen.SchemaCommand:
		return schemaNode{Type: "OBJECT", Properties: map[string]schemaNode{
			"verb":   {Type: "STRING"},
			"target": {Type: "STRING"},
		}}
	case gen.SchemaAttributes:
		props := map[string]schemaNode{}
		for _, k := range m.AttributeKeys {
			props[k] = schemaNode{Type: "INTEGER"}
		}
		if len(props) == 0 {
			return nil
		}
		return schemaNode{Type: "OBJECT", Properties: props}
	}
	return nil
}

func (m *TextModel) GenerateJSON(ctx context.Context, req gen.TextRequest) (string, error) {
	parts := []part{{Text: req.Prompt}}
	if len(req.Image) > 0 {
		parts = append(parts, imagePart(req.Image))
	}
	resp, err := m.Client.generateContent(ctx, "analysis", m.Model, generateRequest{
		Contents: []content{{Role: "user", Parts: parts}},
		GenerationConfig: generationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   m.schema(req.Schema),
		},
		SafetySettings: relaxedSafety,
	})
	if err != nil {
		return "", err
	}
	for _, cand := range resp.Candidates {
		for _, p := range cand.Content.Parts {
			if p.Text != "" {
				return p.Text, nil
			}
		}
	}
	return "", &gen.GenerationError{Kind: gen.Unknown, Op: "analysis", Err: errors.New("invalid response format")}
}

// GeminiImages edits the player's sketch into a rendered image.
type GeminiImages struct {
	Client *Client
	Model  string
}

func (g *GeminiImages) Generate(ctx context.Context, req gen.ImageRequest) ([]byte, error) {
	parts := []part{{Text: req.Prompt}}
	if len(req.Input) > 0 {
		parts = append(parts, imagePart(req.Input))
	}
	temp := 1.0
	resp, err := g.Client.generateContent(ctx, "gemini", g.Model, generateRequest{
		Contents: []content{{Role: "user", Parts: parts}},
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"TEXT", "IMAGE"},
			Temperature:        &temp,
		},
		SafetySettings: relaxedSafety,
	})
	if err != nil {
		return nil, err
	}
	for _, cand := range resp.Candidates {
		for _, p := range cand.Content.Parts {
			if p.InlineData == nil || p.InlineData.Data == "" {
				continue
			}
			b, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
			if err != nil {
				return nil, &gen.GenerationError{Kind: gen.Unknown, Op: "gemini", Err: err}
			}
			return b, nil
		}
	}
	return nil, &gen.GenerationError{Kind: gen.Unknown, Op: "gemini", Err: errors.New("no image in response")}
}

type Imagen struct {
	Client *Client
	Model  string
}

type imagenResponse struct {
	Predictions []struct {
		BytesBase64Encoded string `json:"bytesBase64Encoded"`
		RaiFilteredReason  string `json:"raiFilteredReason"`
	} `json:"predictions"`
}

func (g *Imagen) Generate(ctx context.Context, req gen.ImageRequest) ([]byte, error) {
	body := map[string]any{
		"instances": []map[string]any{{"prompt": req.Prompt}},
		"parameters": map[string]any{
			"sampleCount": 1,
			"aspectRatio": "1:1",
		},
	}
	var resp imagenResponse
	if err := g.Client.do(ctx, "imagen", http.MethodPost, g.Client.url("/v1beta/models/"+g.Model+":predict"), body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Predictions) == 0 {
		return nil, &gen.GenerationError{Kind: gen.Unknown, Op: "imagen", Err: errors.New("no image was generated")}
	}
	p := resp.Predictions[0]
	if p.BytesBase64Encoded == "" {
		if p.RaiFilteredReason != "" {
			return nil, &gen.GenerationError{Kind: gen.ContentBlocked, Op: "imagen", Err: errors.New(p.RaiFilteredReason)}
		}
		return nil, &gen.GenerationError{Kind: gen.Unknown, Op: "imagen", Err: errors.New("generated image is empty")}
	}
	b, err := base64.StdEncoding.DecodeString(p.BytesBase64Encoded)
	if err != nil {
		return nil, &gen.GenerationError{Kind: gen.Unknown, Op: "imagen", Err: err}
	}
	return b, nil
}

type Veo struct {
	Client          *Client
	Model           string
	DurationSeconds int
}

type operationResponse struct {
	Name     string `json:"name"`
	Done     bool   `json:"done"`
	Response struct {
		GenerateVideoResponse struct {
			GeneratedSamples []struct {
				Video struct {
					URI string `json:"uri"`
				} `json:"video"`
			} `json:"generatedSamples"`
			RaiMediaFilteredCount   int      `json:"raiMediaFilteredCount"`
			RaiMediaFilteredReasons []string `json:"raiMediaFilteredReasons"`
		} `json:"generateVideoResponse"`
	} `json:"response"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (v *Veo) Start(ctx context.Context, image []byte, prompt string) (gen.Operation, error) {
	dur := v.DurationSeconds
	if dur <= 0 {
		dur = 5
	}
	body := map[string]any{
		"instances": []map[string]any{{
			"prompt": prompt,
			"image": map[string]any{
				"bytesBase64Encoded": base64.StdEncoding.EncodeToString(image),
				"mimeType":           "image/png",
			},
		}},
		"parameters": map[string]any{
			"aspectRatio":      "9:16",
			"sampleCount":      1,
			"durationSeconds":  dur,
			"personGeneration": "dont_allow",
		},
	}
	var resp operationResponse
	if err := v.Client.do(ctx, "veo start", http.MethodPost, v.Client.url("/v1beta/models/"+v.Model+":predictLongRunning"), body, &resp); err != nil {
		return gen.Operation{}, err
	}
	if resp.Name == "" {
		return gen.Operation{}, &gen.GenerationError{Kind: gen.Unknown, Op: "veo start", Err: errors.New("no operation name")}
	}
	return gen.Operation{Name: resp.Name}, nil
}

func (v *Veo) Poll(ctx context.Context, op gen.Operation) (gen.VideoStatus, error) {
	var resp operationResponse
	if err := v.Client.do(ctx, "veo poll", http.MethodGet, v.Client.url("/v1beta/"+op.Name), nil, &resp); err != nil {
		return gen.VideoStatus{}, err
	}
	if !resp.Done {
		return gen.VideoStatus{}, nil
	}
	if resp.Error != nil {
		return gen.VideoStatus{}, &gen.GenerationError{Kind: gen.KindForStatus(resp.Error.Code), Op: "veo", Err: errors.New(resp.Error.Message)}
	}
	r := resp.Response.GenerateVideoResponse
	if len(r.GeneratedSamples) == 0 {
		if r.RaiMediaFilteredCount > 0 {
			return gen.VideoStatus{}, &gen.GenerationError{Kind: gen.ContentBlocked, Op: "veo", Err: errors.New(strings.Join(r.RaiMediaFilteredReasons, "; "))}
		}
		return gen.VideoStatus{}, &gen.GenerationError{Kind: gen.Unknown, Op: "veo", Err: errors.New("no videos generated in response")}
	}
	return gen.VideoStatus{Done: true, URI: r.GeneratedSamples[0].Video.URI}, nil
}

func (v *Veo) Download(ctx context.Context, uri string) ([]byte, error) {
	var b []byte
	if err := v.Client.do(ctx, "veo download", http.MethodGet, uri, nil, &b); err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, &gen.GenerationError{Kind: gen.Unknown, Op: "veo download", Err: errors.New("empty video")}
	}
	return b, nil
}

var (
	_ gen.TextModel      = (*TextModel)(nil)
	_ gen.ImageGenerator = (*GeminiImages)(nil)
	_ gen.ImageGenerator = (*Imagen)(nil)
	_ gen.VideoGenerator = (*Veo)(nil)
)
