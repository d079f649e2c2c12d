package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/qqqlq/itf-ensyu/pkg/board"
	"github.com/qqqlq/itf-ensyu/pkg/cache"
	"github.com/qqqlq/itf-ensyu/pkg/config"
	perrors "github.com/qqqlq/itf-ensyu/pkg/errors"
	"github.com/qqqlq/itf-ensyu/pkg/screen"
)

const posterInfo = `{
  "p1": {"post_time": "t1", "tags": ["x"], "aspect_ratio": 2.0},
  "p2": {"post_time": "t2", "tags": ["y"], "aspect_ratio": 1.0}
}`

func newPosterAPI(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(posterInfo))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestCLI(t *testing.T, origin string) *CLI {
	t.Helper()
	var buf bytes.Buffer
	c := New(&buf, LogInfo)
	c.cfg = config.Default()
	c.cfg.Origin = origin
	return c
}

func TestLoadConfigOriginFlag(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	c := New(&bytes.Buffer{}, LogInfo)
	c.origin = "http://flag.example:9000"

	if err := c.loadConfig(); err != nil {
		t.Fatalf("loadConfig() error: %v", err)
	}
	if c.cfg.Origin != "http://flag.example:9000" {
		t.Errorf("origin = %q, want flag value", c.cfg.Origin)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	c := New(&bytes.Buffer{}, LogInfo)
	c.origin = "not a url"

	if err := c.loadConfig(); !perrors.Is(err, perrors.ErrCodeInvalidConfig) {
		t.Errorf("loadConfig() error = %v, want INVALID_CONFIG", err)
	}
}

func TestLoadBoard(t *testing.T) {
	api := newPosterAPI(t, http.StatusOK)
	c := newTestCLI(t, api.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	lb, err := c.loadBoard(ctx, "second", false)
	if err != nil {
		t.Fatalf("loadBoard() error: %v", err)
	}
	defer lb.close()

	snap, err := lb.screen.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if snap.State != screen.Loaded || len(snap.Entities) != 2 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if p := snap.Entities[0].Position; p.X != 50 || p.Y != 100 {
		t.Errorf("second variant should tile, got %+v", p)
	}
}

func TestLoadBoardFailure(t *testing.T) {
	api := newPosterAPI(t, http.StatusBadGateway)
	c := newTestCLI(t, api.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := c.loadBoard(ctx, "default", false)
	if !perrors.Is(err, perrors.ErrCodeFetchFailed) {
		t.Fatalf("loadBoard() error = %v, want FETCH_FAILED", err)
	}
	if !strings.Contains(err.Error(), "HTTP error! status: 502") {
		t.Errorf("error = %v, want status text", err)
	}
}

func TestOpenBoardUnknownVariant(t *testing.T) {
	c := newTestCLI(t, "http://localhost:1")
	_, _, _, err := c.openBoard(context.Background(), "third")
	if !perrors.Is(err, perrors.ErrCodeInvalidInput) {
		t.Errorf("openBoard() error = %v, want INVALID_INPUT", err)
	}
}

func TestNewCacheSelection(t *testing.T) {
	c := newTestCLI(t, "http://localhost:1")
	ctx := context.Background()

	cc, err := c.newCache(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := cc.(*cache.NullCache); !ok {
		t.Errorf("zero TTL should use NullCache, got %T", cc)
	}

	c.cfg.Cache.TTL = time.Minute
	c.cfg.Cache.Dir = filepath.Join(t.TempDir(), "cache")
	cc, err = c.newCache(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := cc.(*cache.FileCache); !ok {
		t.Errorf("TTL with dir should use FileCache, got %T", cc)
	}

	c.noCache = true
	cc, _ = c.newCache(ctx)
	if _, ok := cc.(*cache.NullCache); !ok {
		t.Errorf("--no-cache should use NullCache, got %T", cc)
	}
}

func TestRefreshBypassesCache(t *testing.T) {
	var requests atomic.Int32
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := requests.Add(1)
		fmt.Fprintf(w, `{"p1": {"post_time": "t1", "tags": ["v%d"], "aspect_ratio": 1.0}}`, n)
	}))
	t.Cleanup(api.Close)

	c := newTestCLI(t, api.URL)
	c.cfg.Cache.TTL = time.Hour
	c.cfg.Cache.Dir = filepath.Join(t.TempDir(), "cache")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tagsOf := func() []string {
		t.Helper()
		lb, err := c.loadBoard(ctx, "second", false)
		if err != nil {
			t.Fatalf("loadBoard() error: %v", err)
		}
		defer lb.close()
		snap, err := lb.screen.Snapshot(ctx)
		if err != nil {
			t.Fatal(err)
		}
		return snap.Tags
	}

	if got := tagsOf(); len(got) != 1 || got[0] != "v1" {
		t.Fatalf("first load tags = %v, want [v1]", got)
	}
	if got := tagsOf(); got[0] != "v1" || requests.Load() != 1 {
		t.Fatalf("cached load tags = %v after %d requests, want [v1] after 1", got, requests.Load())
	}

	c.refresh = true
	if got := tagsOf(); got[0] != "v2" || requests.Load() != 2 {
		t.Fatalf("refresh tags = %v after %d requests, want [v2] after 2", got, requests.Load())
	}

	c.refresh = false
	if got := tagsOf(); got[0] != "v2" || requests.Load() != 2 {
		t.Errorf("load after refresh = %v after %d requests, want cached [v2]", got, requests.Load())
	}
}

func TestServeStopsWhenCanceled(t *testing.T) {
	api := newPosterAPI(t, http.StatusOK)
	c := newTestCLI(t, api.URL)
	c.cfg.Listen = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- c.serve(ctx) }()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("serve() error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancellation")
	}
}

func TestRootCommandRegistersCommands(t *testing.T) {
	root := New(os.Stderr, LogInfo).RootCommand()
	for _, name := range []string{"board", "tags", "tui", "serve", "cache", "completion"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Errorf("command %q not registered", name)
		}
	}
	for _, flag := range []string{"config", "origin", "no-cache"} {
		if root.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("flag --%s not registered", flag)
		}
	}
}

func TestFormatTags(t *testing.T) {
	got := formatTags([]string{"art", "music"}, []string{"music"})
	if got != "#art #music*" {
		t.Errorf("formatTags() = %q", got)
	}
}

func TestDisplayAddr(t *testing.T) {
	tests := map[string]string{
		":8080":          "localhost:8080",
		"127.0.0.1:9000": "127.0.0.1:9000",
	}
	for in, want := range tests {
		if got := displayAddr(in); got != want {
			t.Errorf("displayAddr(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTagKey(t *testing.T) {
	tests := map[string]int{"1": 1, "9": 9, "0": 0, "a": 0, "10": 0}
	for in, want := range tests {
		if got := tagKey(in); got != want {
			t.Errorf("tagKey(%q) = %d, want %d", in, got, want)
		}
	}
}

// =============================================================================
// BoardModel
// =============================================================================

func runningScreen(t *testing.T) (*screen.Screen, context.Context) {
	t.Helper()
	src := screen.SourceFunc(func(context.Context) (board.Catalog, error) {
		return board.Catalog{
			{Name: "p1", Metadata: board.Metadata{Tags: []string{"x"}, AspectRatio: 2.0}},
			{Name: "p2", Metadata: board.Metadata{Tags: []string{"y"}, AspectRatio: 1.0}},
		}, nil
	})
	s := screen.New(src, screen.WithPolicy(board.PolicyTiled))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return s, ctx
}

// step feeds msg to the model and runs any resulting command once.
func step(t *testing.T, m BoardModel, msg tea.Msg) BoardModel {
	t.Helper()
	next, cmd := m.Update(msg)
	m = next.(BoardModel)
	if cmd != nil {
		next, _ = m.Update(cmd())
		m = next.(BoardModel)
	}
	return m
}

func key(s string) tea.KeyMsg {
	switch s {
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestBoardModelLoadAndInteract(t *testing.T) {
	s, ctx := runningScreen(t)
	m := NewBoardModel(ctx, s)

	if !strings.Contains(m.View(), "Loading") {
		t.Errorf("initial view should show loading, got %q", m.View())
	}

	next, _ := m.Update(m.Init()())
	m = next.(BoardModel)
	if m.snap.State != screen.Loaded || len(m.snap.Visible) != 2 {
		t.Fatalf("after load: %+v", m.snap)
	}

	m = step(t, m, key("right"))
	if got := m.snap.Visible[0].Position.X; got != 50+moveStep {
		t.Errorf("x after move = %v, want %v", got, 50+moveStep)
	}

	m = step(t, m, key("+"))
	if got := m.snap.Visible[0].Size.Width; math.Abs(got-330) > 1e-9 {
		t.Errorf("width after grow = %v, want 330", got)
	}
	if ent := m.snap.Visible[0]; math.Abs(ent.Size.Width/ent.Size.Height-ent.AspectRatio) > 1e-9 {
		t.Errorf("aspect lock broken: %+v", ent.Size)
	}

	m = step(t, m, key("1"))
	if len(m.snap.Visible) != 1 || m.snap.Visible[0].Name != "p1" {
		t.Errorf("visible after toggling tag 1 = %+v", m.snap.Visible)
	}

	m = step(t, m, key("x"))
	if len(m.snap.Tags) != 1 || len(m.snap.Selected) != 0 || len(m.snap.Visible) != 2 {
		t.Errorf("after removing tag chip: tags=%v selected=%v visible=%d", m.snap.Tags, m.snap.Selected, len(m.snap.Visible))
	}

	m = step(t, m, key("a"))
	if len(m.snap.Entities) != 3 {
		t.Errorf("entities after add = %d, want 3", len(m.snap.Entities))
	}

	m = step(t, m, key("tab"))
	if m.Cursor != 1 {
		t.Errorf("cursor after tab = %d, want 1", m.Cursor)
	}
}

func TestBoardModelLoadFailure(t *testing.T) {
	src := screen.SourceFunc(func(context.Context) (board.Catalog, error) {
		return nil, perrors.New(perrors.ErrCodeFetchFailed, "HTTP error! status: 404")
	})
	s := screen.New(src)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go s.Run(ctx)

	m := NewBoardModel(ctx, s)
	next, _ := m.Update(m.Init()())
	m = next.(BoardModel)

	if m.snap.State != screen.LoadFailed {
		t.Fatalf("state = %v, want load_failed", m.snap.State)
	}
	if view := m.View(); !strings.Contains(view, "HTTP error! status: 404") {
		t.Errorf("error view = %q", view)
	}

	// Keys other than quit are ignored once the load failed.
	next, cmd := m.Update(key("a"))
	if cmd != nil || next.(BoardModel).snap.State != screen.LoadFailed {
		t.Error("intent accepted after load failure")
	}
}

func TestBoardModelRejectedResizeShowsStatus(t *testing.T) {
	s, ctx := runningScreen(t)
	m := NewBoardModel(ctx, s)
	next, _ := m.Update(m.Init()())
	m = next.(BoardModel)

	id := m.snap.Visible[0].ID
	next, _ = m.Update(m.intent("resize", func(e *board.Engine) error { return e.ApplyResize(id, 0) })())
	m = next.(BoardModel)
	if m.status == "" {
		t.Error("rejected resize should set a status message")
	}
	if m.snap.State != screen.Loaded {
		t.Errorf("state = %v after rejected resize", m.snap.State)
	}
}
