// Package session ties a player's scene to the generation pipeline. It owns
// the world runner, turns sketches into placeholders and then generated
// objects, routes text commands, and forwards scene signals to the
// presentation layer.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"sketchcraft.ai/internal/gen"
	"sketchcraft.ai/internal/sim/levels"
	"sketchcraft.ai/internal/sim/world"
)

var ErrUnknownLevel = errors.New("unknown level")

// Callbacks receives the outbound signals. Implementations must not block;
// they run on the tick goroutine or a generation goroutine.
type Callbacks interface {
	GoalReached(next string)
	GameOver(reason string)
	GenerationProgress(hash string, ready bool, framesReady int)
}

type Classifier interface {
	Classify(ctx context.Context, sketch []byte) (gen.Analysis, error)
	TextToCommand(ctx context.Context, text string, currentTargets []string) (gen.Command, error)
}

type Generator interface {
	GenerateStatic(ctx context.Context, typ, style string, backend gen.Backend, sketch []byte) ([]byte, error)
	GenerateAnimated(ctx context.Context, typ, style string) (gen.Animated, error)
}

// EventLog persists session entries.
type EventLog interface {
	WriteSession(e LogEntry) error
}

type Config struct {
	// World is the template for the owned world; Signals is overwritten.
	World  world.Config
	Levels *levels.Set
	// Start is the first level id. Empty means the first level of Levels,
	// or the sandbox.
	Start string

	Classifier Classifier
	Generator  Generator
	Jobs       *gen.JobStore

	Callbacks Callbacks
	Events    EventLog
	// Router, when set, is where a shared coordinator's progress arrives.
	// Without it the owner wires OnProgress directly.
	Router *Router
	Logger *log.Logger

	DefaultStyle    string
	FallbackTexture string
	// MediaURL turns a generated file name into a texture reference.
	MediaURL func(name string) string

	// AutoAdvance loads the next level after a goal and restarts the
	// current one after a game over.
	AutoAdvance  bool
	AdvanceDelay time.Duration
	RestartDelay time.Duration

	SketchTimeout time.Duration
}

type anim struct {
	id         world.ObjectID
	epoch      uint64
	registered bool
	done       bool
	ok         bool
}

// Orchestrator is one player's session.
type Orchestrator struct {
	cfg    Config
	id     string
	log    *log.Logger
	runner *world.Runner

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once

	mu        sync.Mutex
	anims     map[string]*anim
	goalEpoch uint64
	overEpoch uint64
}

func New(cfg Config) (*Orchestrator, error) {
	if cfg.Classifier == nil || cfg.Generator == nil || cfg.Jobs == nil {
		return nil, fmt.Errorf("session needs a classifier, a generator and a job store")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[session] ", log.LstdFlags)
	}
	if cfg.DefaultStyle == "" {
		cfg.DefaultStyle = "realistic"
	}
	if cfg.FallbackTexture == "" {
		cfg.FallbackTexture = "placeholder"
	}
	if cfg.MediaURL == nil {
		cfg.MediaURL = func(name string) string { return "/generated/" + name }
	}
	if cfg.AdvanceDelay <= 0 {
		cfg.AdvanceDelay = 2 * time.Second
	}
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = 500 * time.Millisecond
	}
	if cfg.SketchTimeout <= 0 {
		cfg.SketchTimeout = 2 * time.Minute
	}

	s := &Orchestrator{
		cfg:   cfg,
		id:    uuid.NewString(),
		log:   cfg.Logger,
		anims: map[string]*anim{},
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	wcfg := cfg.World
	wcfg.Signals = s
	if wcfg.Logger == nil {
		wcfg.Logger = cfg.Logger
	}
	w := world.New(wcfg)
	lvl, err := s.startLevel()
	if err != nil {
		return nil, err
	}
	if err := w.Load(lvl); err != nil {
		return nil, err
	}
	s.runner = world.NewRunner(w)
	return s, nil
}

func (s *Orchestrator) startLevel() (levels.Level, error) {
	if s.cfg.Start != "" {
		return s.level(s.cfg.Start)
	}
	if s.cfg.Levels != nil {
		if l, ok := s.cfg.Levels.First(); ok {
			return l, nil
		}
	}
	return levels.Sandbox(), nil
}

func (s *Orchestrator) level(id string) (levels.Level, error) {
	if s.cfg.Levels != nil {
		if l, ok := s.cfg.Levels.Get(id); ok {
			return l, nil
		}
	}
	if id == levels.Sandbox().ID {
		return levels.Sandbox(), nil
	}
	return levels.Level{}, fmt.Errorf("%w: %q", ErrUnknownLevel, id)
}

func (s *Orchestrator) ID() string { return s.id }

// Run drives the tick loop until ctx ends or Close is called.
func (s *Orchestrator) Run(ctx context.Context) error { return s.runner.Run(ctx) }

// Close stops the tick loop and waits for scheduled transitions and
// in-flight sketches to unwind.
func (s *Orchestrator) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		if s.cfg.Router != nil {
			s.cfg.Router.Release(s)
		}
		s.runner.Stop()
		s.wg.Wait()
	})
}

// Done is closed once Close has been called.
func (s *Orchestrator) Done() <-chan struct{} { return s.ctx.Done() }

func (s *Orchestrator) Subscribe(buf int) (<-chan world.Observation, func()) {
	return s.runner.Subscribe(buf)
}

func (s *Orchestrator) Observe(ctx context.Context) (world.Observation, error) {
	var obs world.Observation
	err := s.runner.Do(ctx, func(w *world.World) { obs = w.Observe() })
	return obs, err
}

// --- Signals ---

func (s *Orchestrator) GoalReached(epoch uint64, next string) {
	s.mu.Lock()
	if s.goalEpoch == epoch {
		s.mu.Unlock()
		return
	}
	s.goalEpoch = epoch
	s.mu.Unlock()

	s.write(LogEntry{Kind: EntryGoal, Epoch: epoch, Detail: next})
	if s.cfg.Callbacks != nil {
		s.cfg.Callbacks.GoalReached(next)
	}
	if s.cfg.AutoAdvance && next != "" {
		s.after(s.cfg.AdvanceDelay, func(ctx context.Context) {
			if err := s.loadIfEpoch(ctx, next, epoch); err != nil {
				s.log.Printf("advance to %s: %v", next, err)
			}
		})
	}
}

func (s *Orchestrator) GameOver(epoch uint64, reason string) {
	s.mu.Lock()
	if s.overEpoch == epoch {
		s.mu.Unlock()
		return
	}
	s.overEpoch = epoch
	s.mu.Unlock()

	s.write(LogEntry{Kind: EntryGameOver, Epoch: epoch, Detail: reason})
	if s.cfg.Callbacks != nil {
		s.cfg.Callbacks.GameOver(reason)
	}
	if s.cfg.AutoAdvance {
		s.after(s.cfg.RestartDelay, func(ctx context.Context) {
			if err := s.loadIfEpoch(ctx, "", epoch); err != nil {
				s.log.Printf("restart: %v", err)
			}
		})
	}
}

// after runs fn once d has passed, unless the session closes first.
func (s *Orchestrator) after(d time.Duration, fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-s.ctx.Done():
			return
		case <-t.C:
		}
		fn(s.ctx)
	}()
}

// loadIfEpoch loads id (empty means the current level) only while the
// scene is still the one that scheduled it.
func (s *Orchestrator) loadIfEpoch(ctx context.Context, id string, epoch uint64) error {
	var lvl levels.Level
	if id != "" {
		l, err := s.level(id)
		if err != nil {
			return err
		}
		lvl = l
	}
	var loadErr error
	var loaded bool
	err := s.runner.Do(ctx, func(w *world.World) {
		if w.Epoch() != epoch {
			return
		}
		if id == "" {
			lvl = w.Level()
		}
		loadErr = w.Load(lvl)
		loaded = true
	})
	if err != nil {
		return err
	}
	if loaded {
		s.write(LogEntry{Kind: EntryLevel, Level: lvl.ID})
	}
	return loadErr
}

// --- Levels ---

// LoadLevel tears down the scene and builds the level id.
func (s *Orchestrator) LoadLevel(ctx context.Context, id string) error {
	lvl, err := s.level(id)
	if err != nil {
		return err
	}
	return s.load(ctx, lvl)
}

// Restart reloads the current level.
func (s *Orchestrator) Restart(ctx context.Context) error {
	var lvl levels.Level
	if err := s.runner.Do(ctx, func(w *world.World) { lvl = w.Level() }); err != nil {
		return err
	}
	return s.load(ctx, lvl)
}

// Next loads the level after the current one. It fails when the current
// level is the last.
func (s *Orchestrator) Next(ctx context.Context) error {
	var next string
	if err := s.runner.Do(ctx, func(w *world.World) { next = w.Level().Next }); err != nil {
		return err
	}
	if next == "" {
		return fmt.Errorf("%w: no level after the current one", ErrUnknownLevel)
	}
	return s.LoadLevel(ctx, next)
}

func (s *Orchestrator) load(ctx context.Context, lvl levels.Level) error {
	var loadErr error
	if err := s.runner.Do(ctx, func(w *world.World) { loadErr = w.Load(lvl) }); err != nil {
		return err
	}
	if loadErr != nil {
		return loadErr
	}
	s.write(LogEntry{Kind: EntryLevel, Level: lvl.ID})
	return nil
}

// --- Scene actions ---

// Bulk actions accepted by Bulk.
const (
	BulkSetFire         = "set_fire_all"
	BulkDestroyBurnable = "destroy_burnable"
	BulkDestroyIce      = "destroy_ice"
	BulkClearUser       = "clear_user"
)

// Bulk runs one of the scene-wide actions and returns how many objects it
// touched.
func (s *Orchestrator) Bulk(ctx context.Context, action string) (int, error) {
	var fn func(*world.World) int
	switch action {
	case BulkSetFire:
		fn = (*world.World).SetFireToEverything
	case BulkDestroyBurnable:
		fn = (*world.World).DestroyAllBurnable
	case BulkDestroyIce:
		fn = (*world.World).DestroyAllIce
	case BulkClearUser:
		fn = (*world.World).RemoveUserObjects
	default:
		return 0, fmt.Errorf("unknown action %q", action)
	}
	var n int
	if err := s.runner.Do(ctx, func(w *world.World) { n = fn(w) }); err != nil {
		return 0, err
	}
	s.write(LogEntry{Kind: EntryCommand, Detail: action, Count: n})
	return n, nil
}

// Spawn places a catalog kind directly, bypassing generation.
func (s *Orchestrator) Spawn(ctx context.Context, kind string, x, y float64) (world.ObjectID, error) {
	var id world.ObjectID
	var spawnErr error
	err := s.runner.Do(ctx, func(w *world.World) {
		o, err := w.Spawn(kind, x, y, 0, 0, nil)
		if err != nil {
			spawnErr = err
			return
		}
		id = o.ID
	})
	if err != nil {
		return 0, err
	}
	return id, spawnErr
}

func (s *Orchestrator) write(e LogEntry) {
	if s.cfg.Events == nil {
		return
	}
	e.Session = s.id
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	if err := s.cfg.Events.WriteSession(e); err != nil {
		s.log.Printf("event log: %v", err)
	}
}

func (s *Orchestrator) mediaURL(path string) string {
	return s.cfg.MediaURL(filepath.Base(path))
}
