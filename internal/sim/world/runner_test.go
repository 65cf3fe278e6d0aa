package world

import (
	"context"
	"testing"
	"time"
)

func TestRunner_DoAndSubscribe(t *testing.T) {
	w, _ := newTestWorld(t, flatLevel())
	r := NewRunner(w)
	obs, cancelSub := r.Subscribe(8)
	defer cancelSub()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx) }()

	var id ObjectID
	if err := r.Do(ctx, func(w *World) {
		o, err := w.Spawn("boat", 100, 100, 0, 0, nil)
		if err == nil {
			id = o.ID
		}
	}); err != nil {
		t.Fatalf("do: %v", err)
	}
	if id == 0 {
		t.Fatalf("spawn did not run")
	}

	for {
		select {
		case o := <-obs:
			for _, s := range o.Objects {
				if s.ID == id {
					r.Stop()
					if err := <-errCh; err != nil {
						t.Fatalf("run: %v", err)
					}
					if err := r.Do(context.Background(), func(*World) {}); err != ErrStopped {
						t.Fatalf("do after stop = %v", err)
					}
					return
				}
			}
		case <-ctx.Done():
			t.Fatalf("no observation with the spawned object")
		}
	}
}
