package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"sketchcraft.ai/internal/gen"
	"sketchcraft.ai/internal/sim/world"
)

// Sketch is one drawing dropped into the scene.
type Sketch struct {
	PNG     []byte
	X, Y    float64
	Backend gen.Backend
	Style   string
}

// Result describes what became of a sketch.
type Result struct {
	Object   world.ObjectID
	Analysis gen.Analysis
	Hash     string
	Texture  string
	Animated bool
	Blocked  bool
	// Stale is set when the scene changed while the sketch was processed;
	// nothing was placed.
	Stale bool
}

// HandleSketch places a generating placeholder at once, then classifies and
// renders the sketch and finalizes the placeholder. It blocks until the
// static result is in the scene; animation frames arrive later through
// OnProgress. Failures revert the placeholder to the fallback texture.
func (s *Orchestrator) HandleSketch(ctx context.Context, sk Sketch) (Result, error) {
	if len(sk.PNG) == 0 {
		return Result{}, &gen.ClassificationError{Stage: "input", Err: errors.New("no image data")}
	}
	if sk.Backend == "" {
		sk.Backend = gen.BackendImagen
	}
	if sk.Style == "" {
		sk.Style = s.cfg.DefaultStyle
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.SketchTimeout)
	defer cancel()

	var id world.ObjectID
	var epoch uint64
	if err := s.runner.Do(ctx, func(w *world.World) {
		id = w.SpawnPlaceholder(sk.X, sk.Y).ID
		epoch = w.Epoch()
	}); err != nil {
		return Result{}, err
	}
	res := Result{Object: id}

	analysis, err := s.cfg.Classifier.Classify(ctx, sk.PNG)
	if err != nil {
		s.abort(id, epoch, err)
		return res, err
	}
	res.Analysis = analysis
	if analysis.Blocked {
		res.Blocked = true
		s.abort(id, epoch, nil)
		s.write(LogEntry{Kind: EntryBlocked, Epoch: epoch, Type: analysis.Type})
		return res, nil
	}

	app := world.Appearance{Type: analysis.Type, Attrs: analysis.Set()}
	if sk.Backend == gen.BackendVeo {
		a, err := s.cfg.Generator.GenerateAnimated(ctx, analysis.Type, sk.Style)
		if err != nil {
			return s.generationFailed(res, id, epoch, err)
		}
		res.Hash, res.Animated = a.Hash, true
		if s.cfg.Router != nil {
			s.cfg.Router.Claim(a.Hash, s)
		}
		app.Animating = true
	} else {
		img, err := s.cfg.Generator.GenerateStatic(ctx, analysis.Type, sk.Style, sk.Backend, sk.PNG)
		if err != nil {
			return s.generationFailed(res, id, epoch, err)
		}
		res.Hash = gen.NewHash()
		if err := s.cfg.Jobs.WriteImage(res.Hash, img); err != nil {
			s.abort(id, epoch, err)
			return res, fmt.Errorf("store image: %w", err)
		}
	}
	res.Texture = s.mediaURL(s.cfg.Jobs.ImagePath(res.Hash))
	app.Hash, app.Texture = res.Hash, res.Texture

	var finErr error
	if err := s.runner.Do(ctx, func(w *world.World) {
		_, finErr = w.Finalize(id, epoch, app)
	}); err != nil {
		return res, err
	}
	switch {
	case errors.Is(finErr, world.ErrStale), errors.Is(finErr, world.ErrUnknownObject):
		res.Stale = true
		if res.Animated {
			s.forget(res.Hash)
		}
		s.log.Printf("sketch %s: scene moved on: %v", analysis.Type, finErr)
		return res, nil
	case finErr != nil:
		return res, finErr
	}
	if res.Animated {
		s.register(res.Hash, id, epoch)
	}
	s.write(LogEntry{Kind: EntrySketch, Epoch: epoch, Object: uint64(id), Type: analysis.Type, Hash: res.Hash, Detail: string(sk.Backend)})
	return res, nil
}

// generationFailed maps a generator failure onto the sketch result. Blocked
// content is an outcome, not an error.
func (s *Orchestrator) generationFailed(res Result, id world.ObjectID, epoch uint64, err error) (Result, error) {
	if gen.IsBlocked(err) {
		res.Blocked = true
		s.abort(id, epoch, nil)
		s.write(LogEntry{Kind: EntryBlocked, Epoch: epoch, Type: res.Analysis.Type})
		return res, nil
	}
	s.abort(id, epoch, err)
	return res, err
}

// abort reverts the placeholder. A stale scene has already removed it.
func (s *Orchestrator) abort(id world.ObjectID, epoch uint64, cause error) {
	if cause != nil {
		s.log.Printf("sketch failed: %v", cause)
		s.write(LogEntry{Kind: EntryFailed, Epoch: epoch, Object: uint64(id), Detail: cause.Error()})
	}
	// Not the caller's ctx: its expiry may be what failed.
	actx, cancel := context.WithTimeout(s.ctx, s.cfg.SketchTimeout)
	defer cancel()
	var abortErr error
	if err := s.runner.Do(actx, func(w *world.World) {
		abortErr = w.Abort(id, epoch, s.cfg.FallbackTexture)
	}); err != nil {
		return
	}
	if abortErr != nil && !errors.Is(abortErr, world.ErrStale) {
		s.log.Printf("abort %d: %v", id, abortErr)
	}
}

// --- Animation progress ---

// OnProgress receives frame progress from the generation coordinator. A
// finished set is attached to its object; a failed job stops the waiting
// blink and leaves the static image. It never blocks.
func (s *Orchestrator) OnProgress(hash string, ready bool, framesReady int) {
	if s.cfg.Callbacks != nil {
		s.cfg.Callbacks.GenerationProgress(hash, ready, framesReady)
	}
	if !ready && framesReady > 0 {
		return
	}
	s.mu.Lock()
	a := s.anims[hash]
	if a == nil {
		a = &anim{}
		s.anims[hash] = a
	}
	a.done, a.ok = true, ready
	apply := a.registered
	if apply {
		delete(s.anims, hash)
	}
	s.mu.Unlock()
	if apply {
		s.attach(hash, *a)
	}
}

// register binds a job hash to its object once the object is final.
// Progress may already have finished.
func (s *Orchestrator) register(hash string, id world.ObjectID, epoch uint64) {
	s.mu.Lock()
	a := s.anims[hash]
	if a == nil {
		a = &anim{}
		s.anims[hash] = a
	}
	a.id, a.epoch, a.registered = id, epoch, true
	apply := a.done
	if apply {
		delete(s.anims, hash)
	}
	s.mu.Unlock()
	if apply {
		s.attach(hash, *a)
	}
}

func (s *Orchestrator) forget(hash string) {
	s.mu.Lock()
	delete(s.anims, hash)
	s.mu.Unlock()
}

func (s *Orchestrator) attach(hash string, a anim) {
	if s.ctx.Err() != nil {
		return
	}
	var frames []string
	if a.ok {
		for i := 0; i < s.cfg.Jobs.FrameTotal(); i++ {
			frames = append(frames, s.mediaURL(s.cfg.Jobs.FramePath(hash, i)))
		}
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		var setErr error
		if err := s.runner.Do(s.ctx, func(w *world.World) {
			setErr = w.SetAnimation(a.id, a.epoch, frames)
		}); err != nil {
			return
		}
		switch {
		case errors.Is(setErr, world.ErrStale), errors.Is(setErr, world.ErrUnknownObject):
			// scene changed or the object is gone; the frames stay cached
		case setErr != nil:
			s.log.Printf("animation %s: %v", hash, setErr)
		default:
			s.write(LogEntry{Kind: EntryAnimation, Epoch: a.epoch, Object: uint64(a.id), Hash: hash, Count: len(frames)})
		}
	}()
}

// --- Commands ---

// CommandResult is the outcome of a text command.
type CommandResult struct {
	Verb     string           `json:"verb"`
	Target   string           `json:"target"`
	Affected []world.ObjectID `json:"affected"`
}

// HandleCommand parses free text against the scene's current targets and
// applies it.
func (s *Orchestrator) HandleCommand(ctx context.Context, text string) (CommandResult, error) {
	var targets []string
	if err := s.runner.Do(ctx, func(w *world.World) { targets = w.Targets() }); err != nil {
		return CommandResult{}, err
	}
	cmd, err := s.cfg.Classifier.TextToCommand(ctx, text, targets)
	if err != nil {
		return CommandResult{}, err
	}
	s.write(LogEntry{Kind: EntryCommandText, Detail: strings.TrimSpace(text)})
	return s.Apply(ctx, world.Command{Verb: cmd.Verb, Target: cmd.Target})
}

// Apply runs an already parsed command.
func (s *Orchestrator) Apply(ctx context.Context, cmd world.Command) (CommandResult, error) {
	var ids []world.ObjectID
	var applyErr error
	if err := s.runner.Do(ctx, func(w *world.World) { ids, applyErr = w.Apply(cmd) }); err != nil {
		return CommandResult{}, err
	}
	if applyErr != nil {
		return CommandResult{}, applyErr
	}
	s.write(LogEntry{Kind: EntryCommand, Detail: cmd.Verb + " " + cmd.Target, Count: len(ids)})
	return CommandResult{Verb: cmd.Verb, Target: cmd.Target, Affected: ids}, nil
}
