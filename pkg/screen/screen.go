package screen

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/qqqlq/itf-ensyu/pkg/board"
	perrors "github.com/qqqlq/itf-ensyu/pkg/errors"
	"github.com/qqqlq/itf-ensyu/pkg/observability"
)

var (
	// ErrNotLoaded is returned for intents dispatched before the board loaded
	// or after the load failed.
	ErrNotLoaded = perrors.New(perrors.ErrCodeNotLoaded, "board is not loaded")

	// ErrUnmounted is returned once the screen has been unmounted.
	ErrUnmounted = errors.New("screen unmounted")

	// ErrStopped is returned when the event loop is no longer running.
	ErrStopped = errors.New("screen event loop stopped")
)

// Source provides the poster catalog for a screen.
type Source interface {
	FetchCatalog(ctx context.Context) (board.Catalog, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context) (board.Catalog, error)

// FetchCatalog calls f(ctx).
func (f SourceFunc) FetchCatalog(ctx context.Context) (board.Catalog, error) { return f(ctx) }

// Option configures a Screen.
type Option func(*Screen)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *log.Logger) Option {
	return func(s *Screen) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithVariant names the board variant, used in logs and hooks.
func WithVariant(name string) Option {
	return func(s *Screen) { s.variant = name }
}

// WithPolicy sets the initial layout policy. The default is random.
func WithPolicy(p board.Policy) Option {
	return func(s *Screen) { s.policy = p }
}

// WithViewport sets the viewport used by the random layout policy.
func WithViewport(vp board.Size) Option {
	return func(s *Screen) { s.viewport = &vp }
}

// WithFetchTimeout bounds the catalog fetch. Zero means no bound.
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Screen) { s.fetchTimeout = d }
}

// WithEngineOptions passes options through to the board engine.
func WithEngineOptions(opts ...board.Option) Option {
	return func(s *Screen) { s.engineOpts = append(s.engineOpts, opts...) }
}

// Screen is one mounted board view.
type Screen struct {
	id           string
	variant      string
	policy       board.Policy
	viewport     *board.Size
	fetchTimeout time.Duration
	engineOpts   []board.Option
	source       Source
	logger       *log.Logger

	ops      chan func()
	stopped  chan struct{}
	settled  chan struct{}
	stopOnce sync.Once
	settle   sync.Once

	// Owned by the event loop.
	engine    *board.Engine
	state     State
	loadErr   error
	unmounted bool
	loadStart time.Time
}

// New creates an idle screen reading its catalog from src.
func New(src Source, opts ...Option) *Screen {
	s := &Screen{
		id:      uuid.NewString(),
		variant: "default",
		policy:  board.PolicyRandom,
		source:  src,
		logger:  log.New(io.Discard),
		ops:     make(chan func()),
		stopped: make(chan struct{}),
		settled: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("variant", s.variant)
	s.engine = board.NewEngine(s.engineOpts...)
	return s
}

// ID returns the screen's instance id.
func (s *Screen) ID() string { return s.id }

// Variant returns the board variant name.
func (s *Screen) Variant() string { return s.variant }

// Run executes submitted operations until ctx is cancelled. It must be
// called exactly once.
func (s *Screen) Run(ctx context.Context) error {
	defer s.stopOnce.Do(func() { close(s.stopped) })
	for {
		select {
		case op := <-s.ops:
			op()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// submit runs fn on the event loop and waits for it to finish.
func (s *Screen) submit(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	op := func() {
		defer close(done)
		fn()
	}
	select {
	case s.ops <- op:
	case <-s.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-done
	return nil
}

// post queues fn without waiting. It is dropped if the loop has stopped.
func (s *Screen) post(fn func()) {
	select {
	case s.ops <- fn:
	case <-s.stopped:
	}
}

// Mount moves the screen from Idle to Loading and starts the catalog fetch
// in the background. It returns ALREADY_MOUNTED on any later call.
func (s *Screen) Mount(ctx context.Context) error {
	var err error
	serr := s.submit(ctx, func() {
		if s.unmounted {
			err = ErrUnmounted
			return
		}
		if s.state != Idle {
			err = perrors.New(perrors.ErrCodeAlreadyMounted, "screen %s is %s", s.variant, s.state)
			return
		}
		s.state = Loading
		s.loadStart = time.Now()
		observability.Board().OnLoadStart(ctx, s.variant)
		s.logger.Debug("loading posters")

		fctx := context.WithoutCancel(ctx)
		go s.fetch(fctx)
	})
	if serr != nil {
		return serr
	}
	return err
}

func (s *Screen) fetch(ctx context.Context) {
	if s.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.fetchTimeout)
		defer cancel()
	}
	catalog, err := s.source.FetchCatalog(ctx)
	s.post(func() { s.applyLoad(ctx, catalog, err) })
}

// applyLoad runs on the event loop.
func (s *Screen) applyLoad(ctx context.Context, catalog board.Catalog, err error) {
	if s.unmounted {
		s.logger.Debug("ignoring poster info for unmounted screen")
		return
	}
	if err == nil {
		err = s.engine.Initialize(catalog, s.policy.Viewport(s.viewport))
	}
	elapsed := time.Since(s.loadStart)
	if err != nil {
		if !perrors.Is(err, perrors.ErrCodeFetchFailed) && !perrors.Is(err, perrors.ErrCodeInvalidMetadata) {
			err = perrors.Wrap(perrors.ErrCodeFetchFailed, err, "load posters")
		}
		s.state = LoadFailed
		s.loadErr = err
		s.logger.Error("failed to load posters", "err", err)
	} else {
		s.state = Loaded
		for _, ent := range s.engine.Entities() {
			s.logger.Debug("poster",
				"name", ent.Name,
				"aspect_ratio", ent.AspectRatio,
				"width", ent.Size.Width,
				"height", ent.Size.Height)
		}
		s.logger.Info("loaded posters", "count", s.engine.Len(), "tags", len(s.engine.Tags()))
	}
	observability.Board().OnLoadComplete(ctx, s.variant, s.engine.Len(), elapsed, err)
	s.settle.Do(func() { close(s.settled) })
}

// Unmount marks the screen as gone. A fetch still in flight is not
// cancelled, but its result is discarded.
func (s *Screen) Unmount(ctx context.Context) error {
	return s.submit(ctx, func() {
		if s.unmounted {
			return
		}
		s.unmounted = true
		s.logger.Debug("unmounted", "state", s.state)
		s.settle.Do(func() { close(s.settled) })
	})
}

// Do runs fn against the engine on the event loop. It returns ErrNotLoaded
// unless the board is loaded. A mutation error is logged and returned; the
// board keeps its state.
func (s *Screen) Do(ctx context.Context, op string, fn func(*board.Engine) error) error {
	var err error
	serr := s.submit(ctx, func() {
		switch {
		case s.unmounted:
			err = ErrUnmounted
			return
		case s.state != Loaded:
			err = ErrNotLoaded
			return
		}
		err = fn(s.engine)
		observability.Board().OnMutation(ctx, s.variant, op, err)
		if err != nil {
			s.logger.Warn("rejected "+op, "err", err)
		}
	})
	if serr != nil {
		return serr
	}
	return err
}

// Snapshot is an immutable copy of a screen's observable state.
type Snapshot struct {
	ID       string         `json:"id"`
	Variant  string         `json:"variant"`
	State    State          `json:"state"`
	Error    string         `json:"error,omitempty"`
	Tags     []string       `json:"tags"`
	Selected []string       `json:"selected"`
	Visible  []board.Entity `json:"visible"`
	Entities []board.Entity `json:"entities"`
}

// Snapshot captures the screen state on the event loop.
func (s *Screen) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.submit(ctx, func() { snap = s.snapshot() })
	return snap, err
}

func (s *Screen) snapshot() Snapshot {
	snap := Snapshot{
		ID:       s.id,
		Variant:  s.variant,
		State:    s.state,
		Tags:     s.engine.Tags(),
		Selected: s.engine.Selected(),
		Entities: s.engine.Entities(),
		Visible:  []board.Entity{},
	}
	if snap.Tags == nil {
		snap.Tags = []string{}
	}
	if s.loadErr != nil {
		snap.Error = perrors.UserMessage(s.loadErr)
	}
	for ent := range s.engine.VisibleEntities() {
		snap.Visible = append(snap.Visible, ent)
	}
	return snap
}

// Wait blocks until the load settles (Loaded or LoadFailed) or the screen
// is unmounted. It returns the resulting state and the load error, if any.
func (s *Screen) Wait(ctx context.Context) (State, error) {
	select {
	case <-s.settled:
	case <-s.stopped:
		return Idle, ErrStopped
	case <-ctx.Done():
		return Idle, ctx.Err()
	}
	var (
		state State
		err   error
	)
	if serr := s.submit(ctx, func() {
		state, err = s.state, s.loadErr
		if s.unmounted && state == Loading {
			err = ErrUnmounted
		}
	}); serr != nil {
		return Idle, serr
	}
	return state, err
}
