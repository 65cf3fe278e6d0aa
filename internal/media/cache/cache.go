package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Kind is the generator family an entry came from.
type Kind string

const (
	KindImagen Kind = "imagen"
	KindGemini Kind = "gemini"
	KindFrames Kind = "veo-frames"
)

// FrameCount is the fixed size of an animation frame set.
const FrameCount = 4

var (
	ErrPoolFull  = errors.New("pool full")
	ErrSlotTaken = errors.New("slot already written")
	ErrBadSlot   = errors.New("slot out of range")
	ErrEmpty     = errors.New("empty media")
)

// WriteError reports a failed cache write. It is always soft: callers log it
// and keep the media they generated.
type WriteError struct {
	Key  Key
	Slot int
	Err  error
}

func (e *WriteError) Error() string {
	if e.Slot < 0 {
		return fmt.Sprintf("cache write %s: %v", e.Key, e.Err)
	}
	return fmt.Sprintf("cache write %s slot %d: %v", e.Key, e.Slot, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Key addresses one pool. Type and Style are case-folded by Normalize.
type Key struct {
	Type  string
	Style string
	Kind  Kind
}

func (k Key) String() string {
	return string(k.Kind) + "/" + k.Type + "/" + k.Style
}

// Normalize case-folds and trims the key and replaces anything that is not
// safe in a file name.
func (k Key) Normalize() Key {
	return Key{Type: normPart(k.Type), Style: normPart(k.Style), Kind: k.Kind}
}

func normPart(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "_"
	}
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	return sb.String()
}

// Entry describes a successful write. It is handed to the Recorder.
type Entry struct {
	Key       Key
	Slot      int
	Path      string
	Size      int
	WrittenAt time.Time
}

// Recorder receives every successful write, e.g. for a queryable index.
type Recorder interface {
	RecordMedia(e Entry)
}

// Cache is a disk-backed, write-once media store. Each key holds a bounded
// pool of distinct variants; animation frame sets live under KindFrames.
type Cache struct {
	root     string
	poolSize int
	log      *log.Logger
	rec      Recorder

	mu    sync.Mutex
	locks map[Key]*sync.Mutex
	next  map[Key]int
}

func New(root string, poolSize int, logger *log.Logger) (*Cache, error) {
	if root == "" {
		return nil, fmt.Errorf("empty cache root")
	}
	if poolSize <= 0 {
		return nil, fmt.Errorf("pool size must be > 0")
	}
	for _, k := range []Kind{KindImagen, KindGemini, KindFrames} {
		if err := os.MkdirAll(filepath.Join(root, string(k)), 0o755); err != nil {
			return nil, err
		}
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[cache] ", log.LstdFlags)
	}
	return &Cache{
		root:     root,
		poolSize: poolSize,
		log:      logger,
		locks:    map[Key]*sync.Mutex{},
		next:     map[Key]int{},
	}, nil
}

func (c *Cache) SetRecorder(r Recorder) { c.rec = r }

func (c *Cache) Root() string  { return c.root }
func (c *Cache) PoolSize() int { return c.poolSize }

// Path is the deterministic file name for a pool slot.
func (c *Cache) Path(k Key, slot int) string {
	k = k.Normalize()
	name := k.Type + "__" + k.Style + "__" + strconv.Itoa(slot) + ".png"
	return filepath.Join(c.root, string(k.Kind), name)
}

// FramePath is the file name of frame i of a frame set.
func (c *Cache) FramePath(typ, style string, i int) string {
	k := Key{Type: typ, Style: style, Kind: KindFrames}.Normalize()
	name := k.Type + "__" + k.Style + "__frame" + strconv.Itoa(i) + ".png"
	return filepath.Join(c.root, string(KindFrames), name)
}

// keyLock serializes slot selection for one key inside this process.
func (c *Cache) keyLock(k Key) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[k]
	if !ok {
		l = &sync.Mutex{}
		c.locks[k] = l
	}
	return l
}

// Slots lists the written slots of a pool in ascending order.
func (c *Cache) Slots(k Key) []int {
	var out []int
	for i := 0; i < c.poolSize; i++ {
		if exists(c.Path(k, i)) {
			out = append(out, i)
		}
	}
	return out
}

// Get reads one slot. It never generates anything.
func (c *Cache) Get(k Key, slot int) ([]byte, bool) {
	if slot < 0 || slot >= c.poolSize {
		return nil, false
	}
	b, err := os.ReadFile(c.Path(k, slot))
	if err != nil || len(b) == 0 {
		return nil, false
	}
	return b, true
}

// Pick returns any written variant of the pool, rotating across calls so
// repeated reads do not always show the same one.
func (c *Cache) Pick(k Key) ([]byte, int, bool) {
	k = k.Normalize()
	slots := c.Slots(k)
	if len(slots) == 0 {
		return nil, -1, false
	}
	c.mu.Lock()
	n := c.next[k]
	c.next[k] = n + 1
	c.mu.Unlock()
	for i := 0; i < len(slots); i++ {
		s := slots[(n+i)%len(slots)]
		if b, ok := c.Get(k, s); ok {
			return b, s, true
		}
	}
	return nil, -1, false
}

// Put writes data into the first free slot of the pool and returns it. A
// full pool yields a *WriteError wrapping ErrPoolFull.
func (c *Cache) Put(k Key, data []byte) (int, error) {
	k = k.Normalize()
	if len(data) == 0 {
		return -1, &WriteError{Key: k, Slot: -1, Err: ErrEmpty}
	}
	l := c.keyLock(k)
	l.Lock()
	defer l.Unlock()

	for i := 0; i < c.poolSize; i++ {
		err := c.writeOnce(c.Path(k, i), data)
		if err == nil {
			c.record(k, i, data)
			return i, nil
		}
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		return -1, &WriteError{Key: k, Slot: i, Err: err}
	}
	c.log.Printf("pool full for %s (%d slots); dropping write", k, c.poolSize)
	return -1, &WriteError{Key: k, Slot: -1, Err: ErrPoolFull}
}

// PutSlot writes data into exactly one slot. An occupied slot is never
// overwritten.
func (c *Cache) PutSlot(k Key, slot int, data []byte) error {
	k = k.Normalize()
	if slot < 0 || slot >= c.poolSize {
		return &WriteError{Key: k, Slot: slot, Err: ErrBadSlot}
	}
	if len(data) == 0 {
		return &WriteError{Key: k, Slot: slot, Err: ErrEmpty}
	}
	l := c.keyLock(k)
	l.Lock()
	defer l.Unlock()

	if err := c.writeOnce(c.Path(k, slot), data); err != nil {
		if errors.Is(err, fs.ErrExist) {
			err = ErrSlotTaken
		}
		return &WriteError{Key: k, Slot: slot, Err: err}
	}
	c.record(k, slot, data)
	return nil
}

// GetFrames returns the ordered frame set. Anything short of all frames is
// a miss.
func (c *Cache) GetFrames(typ, style string) ([][]byte, bool) {
	out := make([][]byte, 0, FrameCount)
	for i := 0; i < FrameCount; i++ {
		b, err := os.ReadFile(c.FramePath(typ, style, i))
		if err != nil || len(b) == 0 {
			return nil, false
		}
		out = append(out, b)
	}
	return out, true
}

// PutFrames stores a complete frame set. Frames already on disk are kept,
// so a retried job only fills the gaps.
func (c *Cache) PutFrames(typ, style string, frames [][]byte) error {
	k := Key{Type: typ, Style: style, Kind: KindFrames}.Normalize()
	if len(frames) != FrameCount {
		return &WriteError{Key: k, Slot: -1, Err: fmt.Errorf("want %d frames, got %d", FrameCount, len(frames))}
	}
	for i, f := range frames {
		if len(f) == 0 {
			return &WriteError{Key: k, Slot: i, Err: ErrEmpty}
		}
	}
	l := c.keyLock(k)
	l.Lock()
	defer l.Unlock()

	for i, f := range frames {
		p := c.FramePath(typ, style, i)
		err := c.writeOnce(p, f)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return &WriteError{Key: k, Slot: i, Err: err}
		}
		c.record(k, i, f)
	}
	return nil
}

// writeOnce publishes data at path only if path does not exist yet. The
// bytes land in a temp file first so readers never see a partial image.
func (c *Cache) writeOnce(path string, data []byte) error {
	if exists(path) {
		return fs.ErrExist
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	// Link fails when path exists, which makes the publish write-once even
	// across processes sharing the directory.
	if err := os.Link(tmpName, path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fs.ErrExist
		}
		return err
	}
	return nil
}

func (c *Cache) record(k Key, slot int, data []byte) {
	if c.rec == nil {
		return
	}
	path := c.Path(k, slot)
	if k.Kind == KindFrames {
		path = c.FramePath(k.Type, k.Style, slot)
	}
	c.rec.RecordMedia(Entry{Key: k, Slot: slot, Path: path, Size: len(data), WrittenAt: time.Now().UTC()})
}

// Keys lists every pool that has at least one entry on disk.
func (c *Cache) Keys(kind Kind) ([]Key, error) {
	ents, err := os.ReadDir(filepath.Join(c.root, string(kind)))
	if err != nil {
		return nil, err
	}
	seen := map[Key]bool{}
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".png") {
			continue
		}
		parts := strings.Split(strings.TrimSuffix(name, ".png"), "__")
		if len(parts) != 3 {
			continue
		}
		seen[Key{Type: parts[0], Style: parts[1], Kind: kind}] = true
	}
	out := make([]Key, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
