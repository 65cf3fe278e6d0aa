package gen

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"
)

var ErrBadHash = errors.New("bad job hash")

var hashPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// NewHash returns a fresh job id.
func NewHash() string { return uuid.NewString() }

func ValidHash(h string) bool { return hashPattern.MatchString(h) }

// ErrorMarker is the durable record of a failed background job.
type ErrorMarker struct {
	Error     string    `json:"error"`
	Kind      ErrorKind `json:"kind,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Progress is what a polling client sees for a job.
type Progress struct {
	Ready    bool `json:"ready"`
	Progress int  `json:"progress"`
	Total    int  `json:"total"`
}

// JobStore keeps per-job artifacts on disk, addressed by hash: the
// processed frames, the looping animation and the error marker.
type JobStore struct {
	dir    string
	frames int
}

func NewJobStore(dir string, frames int) (*JobStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("empty job dir")
	}
	if frames <= 0 {
		return nil, fmt.Errorf("frame count must be > 0")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &JobStore{dir: dir, frames: frames}, nil
}

func (s *JobStore) Dir() string     { return s.dir }
func (s *JobStore) FrameTotal() int { return s.frames }

func (s *JobStore) FramePath(hash string, i int) string {
	return filepath.Join(s.dir, "output_"+hash+"_frame"+strconv.Itoa(i)+".png")
}

func (s *JobStore) ImagePath(hash string) string {
	return filepath.Join(s.dir, "output_"+hash+".png")
}

func (s *JobStore) AnimationPath(hash string) string {
	return filepath.Join(s.dir, "output_"+hash+".gif")
}

func (s *JobStore) errorPath(hash string) string {
	return filepath.Join(s.dir, "error_"+hash+".json")
}

func (s *JobStore) WriteImage(hash string, data []byte) error {
	if !ValidHash(hash) {
		return ErrBadHash
	}
	return writeFileAtomic(s.ImagePath(hash), data)
}

func (s *JobStore) WriteFrame(hash string, i int, data []byte) error {
	if !ValidHash(hash) {
		return ErrBadHash
	}
	if i < 0 || i >= s.frames {
		return fmt.Errorf("frame index %d out of range", i)
	}
	return writeFileAtomic(s.FramePath(hash, i), data)
}

func (s *JobStore) WriteAnimation(hash string, data []byte) error {
	if !ValidHash(hash) {
		return ErrBadHash
	}
	return writeFileAtomic(s.AnimationPath(hash), data)
}

// WriteError records a terminal failure for hash.
func (s *JobStore) WriteError(hash string, cause error) error {
	if !ValidHash(hash) {
		return ErrBadHash
	}
	m := ErrorMarker{Error: "failed to generate video", Timestamp: time.Now().UTC()}
	if cause != nil {
		m.Error = cause.Error()
		m.Kind = KindOf(cause)
	}
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return writeFileAtomic(s.errorPath(hash), b)
}

// ReadError returns the raw error marker, if the job failed.
func (s *JobStore) ReadError(hash string) ([]byte, bool) {
	if !ValidHash(hash) {
		return nil, false
	}
	b, err := os.ReadFile(s.errorPath(hash))
	if err != nil {
		return nil, false
	}
	return b, true
}

// Progress counts the frames already published for hash.
func (s *JobStore) Progress(hash string) Progress {
	p := Progress{Total: s.frames}
	if !ValidHash(hash) {
		return p
	}
	for i := 0; i < s.frames; i++ {
		if _, err := os.Stat(s.FramePath(hash, i)); err == nil {
			p.Progress++
		}
	}
	p.Ready = p.Progress == p.Total
	return p
}

func writeFileAtomic(path string, b []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
