// Package httpapi serves the stateless generation endpoints: sketch
// analysis, image generation, frame polling, error markers, text commands
// and the generated media directory.
package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"sketchcraft.ai/internal/gen"
	"sketchcraft.ai/internal/persistence/indexdb"
	"sketchcraft.ai/internal/protocol"
	"sketchcraft.ai/internal/session"
	"sketchcraft.ai/internal/sim/catalogs"
)

const maxBody = 16 << 20

// JobIndex answers job lookups from the read model.
type JobIndex interface {
	Job(ctx context.Context, hash string) (indexdb.JobRow, bool, error)
}

type Config struct {
	Catalog    *catalogs.Catalog
	Classifier session.Classifier
	Generator  session.Generator
	Jobs       *gen.JobStore
	// Index is optional; without it /jobs/ answers 404.
	Index  JobIndex
	Logger *log.Logger

	DefaultStyle string
	Timeout      time.Duration
}

type Server struct {
	cfg Config
	log *log.Logger
}

func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[http] ", log.LstdFlags)
	}
	if cfg.DefaultStyle == "" {
		cfg.DefaultStyle = "realistic"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return &Server{cfg: cfg, log: cfg.Logger}
}

// Register mounts every endpoint on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/analyseImage", s.analyseImage)
	mux.HandleFunc("/generateImage", s.generateImage)
	mux.HandleFunc("/textToCommand", s.textToCommand)
	mux.HandleFunc("/checkFrames/", s.checkFrames)
	mux.HandleFunc("/checkError/", s.checkError)
	mux.HandleFunc("/jobs/", s.job)
	mux.Handle("/generated/", http.StripPrefix("/generated/", http.FileServer(http.Dir(s.cfg.Jobs.Dir()))))
}

func (s *Server) analyseImage(rw http.ResponseWriter, r *http.Request) {
	if !allow(rw, r, http.MethodPost) {
		return
	}
	var req protocol.AnalyseImageRequest
	if !decode(rw, r, &req) {
		return
	}
	if req.Prompt == "" {
		badRequest(rw, "Image data is required")
		return
	}
	png, err := protocol.DecodeImageData(req.Prompt)
	if err != nil {
		badRequest(rw, "Invalid image data format")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Timeout)
	defer cancel()

	a, err := s.cfg.Classifier.Classify(ctx, png)
	if err != nil {
		s.fail(rw, "analyseImage", err)
		return
	}
	if a.Blocked || s.cfg.Catalog.IsBlocked(a.Type) {
		writeJSON(rw, http.StatusOK, protocol.Blocked())
		return
	}
	writeJSON(rw, http.StatusOK, protocol.AnalysisResponse{Type: a.Type, Attributes: a.Attributes})
}

func (s *Server) generateImage(rw http.ResponseWriter, r *http.Request) {
	if !allow(rw, r, http.MethodPost) {
		return
	}
	var req protocol.GenerateImageRequest
	if !decode(rw, r, &req) {
		return
	}
	typ := strings.TrimSpace(req.Prompt)
	if typ == "" {
		badRequest(rw, "Prompt is required")
		return
	}
	if s.cfg.Catalog.IsBlocked(typ) {
		writeJSON(rw, http.StatusOK, protocol.Blocked())
		return
	}
	backend, err := gen.ParseBackend(req.Backend)
	if err != nil {
		badRequest(rw, "Unsupported backend: "+req.Backend)
		return
	}
	style := req.Style
	if style == "" {
		style = s.cfg.DefaultStyle
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Timeout)
	defer cancel()

	if backend == gen.BackendVeo {
		a, err := s.cfg.Generator.GenerateAnimated(ctx, typ, style)
		if err != nil {
			s.fail(rw, "generateImage", err)
			return
		}
		writeJSON(rw, http.StatusOK, protocol.AnimatedResponse{
			Hash:           a.Hash,
			ProcessedImage: base64.StdEncoding.EncodeToString(a.Image),
		})
		return
	}

	var sketch []byte
	if req.ImageData != "" {
		if sketch, err = protocol.DecodeImageData(req.ImageData); err != nil {
			badRequest(rw, "Invalid image data format")
			return
		}
	}
	img, err := s.cfg.Generator.GenerateStatic(ctx, typ, style, backend, sketch)
	if err != nil {
		s.fail(rw, "generateImage", err)
		return
	}
	if err := s.cfg.Jobs.WriteImage(gen.NewHash(), img); err != nil {
		s.log.Printf("generateImage: store: %v", err)
	}
	rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
	rw.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(rw, base64.StdEncoding.EncodeToString(img))
}

func (s *Server) textToCommand(rw http.ResponseWriter, r *http.Request) {
	if !allow(rw, r, http.MethodPost) {
		return
	}
	var req protocol.TextToCommandRequest
	if !decode(rw, r, &req) {
		return
	}
	if strings.TrimSpace(req.Command) == "" {
		badRequest(rw, "Command text is required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Timeout)
	defer cancel()
	cmd, err := s.cfg.Classifier.TextToCommand(ctx, req.Command, req.CurrentTargets)
	if err != nil {
		s.fail(rw, "textToCommand", err)
		return
	}
	writeJSON(rw, http.StatusOK, protocol.CommandResponse{Verb: cmd.Verb, Target: cmd.Target})
}

func (s *Server) checkFrames(rw http.ResponseWriter, r *http.Request) {
	hash, ok := hashParam(rw, r, "/checkFrames/")
	if !ok {
		return
	}
	p := s.cfg.Jobs.Progress(hash)
	writeJSON(rw, http.StatusOK, protocol.FramesResponse{Ready: p.Ready, Progress: p.Progress, Total: p.Total})
}

// checkError answers the raw marker of a failed job, or 404 with no body.
func (s *Server) checkError(rw http.ResponseWriter, r *http.Request) {
	hash, ok := hashParam(rw, r, "/checkError/")
	if !ok {
		return
	}
	b, found := s.cfg.Jobs.ReadError(hash)
	if !found {
		rw.WriteHeader(http.StatusNotFound)
		return
	}
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(http.StatusOK)
	_, _ = rw.Write(b)
}

func (s *Server) job(rw http.ResponseWriter, r *http.Request) {
	hash, ok := hashParam(rw, r, "/jobs/")
	if !ok {
		return
	}
	if s.cfg.Index == nil {
		writeError(rw, http.StatusNotFound, protocol.ErrNotFound, "job index disabled")
		return
	}
	row, found, err := s.cfg.Index.Job(r.Context(), hash)
	if err != nil {
		s.fail(rw, "job", err)
		return
	}
	if !found {
		writeError(rw, http.StatusNotFound, protocol.ErrNotFound, "unknown job")
		return
	}
	writeJSON(rw, http.StatusOK, row)
}

// fail logs err and answers with the status its code maps to. Blocked
// generator answers are not failures.
func (s *Server) fail(rw http.ResponseWriter, op string, err error) {
	if gen.IsBlocked(err) {
		writeJSON(rw, http.StatusOK, protocol.Blocked())
		return
	}
	s.log.Printf("%s: %v", op, err)
	code := protocol.CodeFor(err)
	if errors.Is(err, context.Canceled) {
		code = protocol.ErrTimeout
	}
	writeError(rw, protocol.HTTPStatus(code), code, err.Error())
}

// --- helpers ---

func allow(rw http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	rw.Header().Set("Allow", method)
	rw.WriteHeader(http.StatusMethodNotAllowed)
	return false
}

func decode(rw http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(v); err != nil {
		badRequest(rw, "invalid JSON body")
		return false
	}
	return true
}

func hashParam(rw http.ResponseWriter, r *http.Request, prefix string) (string, bool) {
	if !allow(rw, r, http.MethodGet) {
		return "", false
	}
	hash := strings.TrimPrefix(r.URL.Path, prefix)
	if hash == "" {
		badRequest(rw, "Hash parameter is required")
		return "", false
	}
	if !gen.ValidHash(hash) {
		badRequest(rw, "Invalid hash")
		return "", false
	}
	return hash, true
}

func badRequest(rw http.ResponseWriter, msg string) {
	writeError(rw, http.StatusBadRequest, protocol.ErrBadRequest, msg)
}

func writeError(rw http.ResponseWriter, status int, code, msg string) {
	writeJSON(rw, status, protocol.ErrorResponse{
		Error:     msg,
		Code:      code,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
