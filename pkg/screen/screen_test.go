package screen

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/qqqlq/itf-ensyu/pkg/board"
	perrors "github.com/qqqlq/itf-ensyu/pkg/errors"
	"github.com/qqqlq/itf-ensyu/pkg/observability"
)

func sampleCatalog() board.Catalog {
	return board.Catalog{
		{Name: "p1", Metadata: board.Metadata{PostTime: "t1", Tags: []string{"x"}, AspectRatio: 2.0}},
		{Name: "p2", Metadata: board.Metadata{PostTime: "t2", Tags: []string{"y"}, AspectRatio: 1.0}},
	}
}

func staticSource(c board.Catalog, err error) Source {
	return SourceFunc(func(context.Context) (board.Catalog, error) { return c, err })
}

// startScreen runs s until the test ends.
func startScreen(t *testing.T, s *Screen) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ctx
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		Idle:       "idle",
		Loading:    "loading",
		Loaded:     "loaded",
		LoadFailed: "load_failed",
		State(9):   "state(9)",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}

func TestMountLoads(t *testing.T) {
	s := New(staticSource(sampleCatalog(), nil), WithPolicy(board.PolicyTiled), WithVariant("second"))
	startScreen(t, s)
	ctx := waitCtx(t)

	if err := s.Mount(ctx); err != nil {
		t.Fatalf("Mount() error: %v", err)
	}
	state, err := s.Wait(ctx)
	if err != nil || state != Loaded {
		t.Fatalf("Wait() = %v, %v; want loaded", state, err)
	}

	snap, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot() error: %v", err)
	}
	if snap.Variant != "second" || snap.ID == "" {
		t.Errorf("snapshot identity = %q/%q", snap.Variant, snap.ID)
	}
	if len(snap.Entities) != 2 || len(snap.Visible) != 2 {
		t.Fatalf("entities=%d visible=%d, want 2/2", len(snap.Entities), len(snap.Visible))
	}
	if p := snap.Entities[1].Position; p.X != 470 || p.Y != 100 {
		t.Errorf("tiled position = %+v, want (470,100)", p)
	}
	if strings.Join(snap.Tags, ",") != "x,y" {
		t.Errorf("tags = %v", snap.Tags)
	}
}

func TestMountTwice(t *testing.T) {
	s := New(staticSource(sampleCatalog(), nil))
	startScreen(t, s)
	ctx := waitCtx(t)

	if err := s.Mount(ctx); err != nil {
		t.Fatalf("Mount() error: %v", err)
	}
	err := s.Mount(ctx)
	if !perrors.Is(err, perrors.ErrCodeAlreadyMounted) {
		t.Errorf("second Mount() error = %v, want ALREADY_MOUNTED", err)
	}
}

func TestFetchFailure(t *testing.T) {
	fetchErr := perrors.New(perrors.ErrCodeFetchFailed, "HTTP error! status: 500")
	s := New(staticSource(nil, fetchErr))
	startScreen(t, s)
	ctx := waitCtx(t)

	s.Mount(ctx)
	state, err := s.Wait(ctx)
	if state != LoadFailed {
		t.Fatalf("state = %v, want load_failed", state)
	}
	if !perrors.Is(err, perrors.ErrCodeFetchFailed) {
		t.Errorf("err = %v, want FETCH_FAILED", err)
	}

	snap, _ := s.Snapshot(ctx)
	if snap.Error != "HTTP error! status: 500" {
		t.Errorf("snapshot error = %q", snap.Error)
	}
	if err := s.Do(ctx, "toggle", func(e *board.Engine) error { e.ToggleTag("x"); return nil }); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("Do() after failure = %v, want ErrNotLoaded", err)
	}
}

func TestPlainFetchErrorIsFetchFailed(t *testing.T) {
	s := New(staticSource(nil, errors.New("connection refused")))
	startScreen(t, s)
	ctx := waitCtx(t)

	s.Mount(ctx)
	if _, err := s.Wait(ctx); !perrors.Is(err, perrors.ErrCodeFetchFailed) {
		t.Errorf("err = %v, want FETCH_FAILED", err)
	}
}

func TestInvalidMetadataFailsLoad(t *testing.T) {
	bad := board.Catalog{{Name: "p", Metadata: board.Metadata{AspectRatio: 0}}}
	s := New(staticSource(bad, nil))
	startScreen(t, s)
	ctx := waitCtx(t)

	s.Mount(ctx)
	state, err := s.Wait(ctx)
	if state != LoadFailed || !perrors.Is(err, perrors.ErrCodeInvalidMetadata) {
		t.Errorf("Wait() = %v, %v; want load_failed INVALID_METADATA", state, err)
	}
}

func TestDoBeforeLoad(t *testing.T) {
	s := New(staticSource(sampleCatalog(), nil))
	startScreen(t, s)
	ctx := waitCtx(t)

	err := s.Do(ctx, "move", func(e *board.Engine) error { return e.ApplyMove(1, board.Position{}) })
	if !errors.Is(err, ErrNotLoaded) {
		t.Errorf("Do() = %v, want ErrNotLoaded", err)
	}
}

func TestDoMutationErrorKeepsBoard(t *testing.T) {
	s := New(staticSource(sampleCatalog(), nil), WithPolicy(board.PolicyTiled))
	startScreen(t, s)
	ctx := waitCtx(t)
	s.Mount(ctx)
	s.Wait(ctx)

	err := s.Do(ctx, "resize", func(e *board.Engine) error { return e.ApplyResize(1, -5) })
	if !perrors.Is(err, perrors.ErrCodeInvalidSize) {
		t.Fatalf("Do() = %v, want INVALID_SIZE", err)
	}
	snap, _ := s.Snapshot(ctx)
	if snap.State != Loaded || snap.Entities[0].Size.Width != board.BaseWidth {
		t.Errorf("board changed after rejected resize: %+v", snap.Entities[0])
	}

	if err := s.Do(ctx, "toggle", func(e *board.Engine) error { e.ToggleTag("x"); return nil }); err != nil {
		t.Fatalf("toggle error: %v", err)
	}
	snap, _ = s.Snapshot(ctx)
	if len(snap.Visible) != 1 || snap.Visible[0].Name != "p1" {
		t.Errorf("visible after toggle = %+v", snap.Visible)
	}
}

func TestUnmountIgnoresLateResult(t *testing.T) {
	release := make(chan struct{})
	fetched := make(chan struct{})
	src := SourceFunc(func(context.Context) (board.Catalog, error) {
		<-release
		defer close(fetched)
		return sampleCatalog(), nil
	})
	s := New(src)
	startScreen(t, s)
	ctx := waitCtx(t)

	s.Mount(ctx)
	if err := s.Unmount(ctx); err != nil {
		t.Fatalf("Unmount() error: %v", err)
	}
	close(release)
	<-fetched

	state, err := s.Wait(ctx)
	if state != Loading || !errors.Is(err, ErrUnmounted) {
		t.Errorf("Wait() = %v, %v; want loading, ErrUnmounted", state, err)
	}
	snap, _ := s.Snapshot(ctx)
	if len(snap.Entities) != 0 {
		t.Errorf("late result applied: %d entities", len(snap.Entities))
	}
}

func TestFetchTimeout(t *testing.T) {
	src := SourceFunc(func(ctx context.Context) (board.Catalog, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	s := New(src, WithFetchTimeout(10*time.Millisecond))
	startScreen(t, s)
	ctx := waitCtx(t)

	s.Mount(ctx)
	state, err := s.Wait(ctx)
	if state != LoadFailed || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() = %v, %v; want load_failed with deadline", state, err)
	}
}

func TestSubmitAfterStop(t *testing.T) {
	s := New(staticSource(sampleCatalog(), nil))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()
	cancel()
	<-done

	if _, err := s.Snapshot(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("Snapshot() after stop = %v, want ErrStopped", err)
	}
}

func TestSnapshotJSON(t *testing.T) {
	s := New(staticSource(nil, nil))
	startScreen(t, s)
	ctx := waitCtx(t)

	snap, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"state":"idle"`, `"tags":[]`, `"visible":[]`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("snapshot JSON %s missing %s", data, want)
		}
	}
}

type recordingHooks struct {
	observability.NoopBoardHooks
	mu        sync.Mutex
	loaded    int
	mutations []string
}

func (h *recordingHooks) OnLoadComplete(_ context.Context, _ string, count int, _ time.Duration, _ error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.loaded = count
}

func (h *recordingHooks) OnMutation(_ context.Context, _, op string, _ error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.mutations = append(h.mutations, op)
}

func TestBoardHooks(t *testing.T) {
	hooks := &recordingHooks{}
	observability.SetBoardHooks(hooks)
	t.Cleanup(observability.Reset)

	s := New(staticSource(sampleCatalog(), nil))
	startScreen(t, s)
	ctx := waitCtx(t)
	s.Mount(ctx)
	s.Wait(ctx)
	s.Do(ctx, "toggle", func(e *board.Engine) error { e.ToggleTag("x"); return nil })

	hooks.mu.Lock()
	defer hooks.mu.Unlock()
	if hooks.loaded != 2 {
		t.Errorf("OnLoadComplete count = %d, want 2", hooks.loaded)
	}
	if len(hooks.mutations) != 1 || hooks.mutations[0] != "toggle" {
		t.Errorf("mutations = %v", hooks.mutations)
	}
}
