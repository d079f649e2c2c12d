package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Spinner animates on stderr while a board variant loads. It stops on its
// own when the context is cancelled.
type Spinner struct {
	w       io.Writer
	variant string
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	stopped chan struct{}

	mu      sync.Mutex
	message string
	width   int // widest message drawn, for clearing
}

// newBoardSpinner returns a stopped spinner announcing the load of variant.
func newBoardSpinner(ctx context.Context, variant string) *Spinner {
	spinnerCtx, cancel := context.WithCancel(ctx)
	msg := fmt.Sprintf("Loading %s board...", variant)
	return &Spinner{
		w:       os.Stderr,
		variant: variant,
		ctx:     spinnerCtx,
		cancel:  cancel,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		message: msg,
		width:   len(msg),
	}
}

// SetMessage replaces the text shown next to the spinner.
func (s *Spinner) SetMessage(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = msg
	s.width = max(s.width, len(msg))
}

// Start begins the spinner animation.
func (s *Spinner) Start() {
	go func() {
		defer close(s.stopped)
		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()

		for i := 0; ; {
			select {
			case <-s.ctx.Done():
				s.clearLine()
				return
			case <-s.done:
				return
			case <-ticker.C:
				s.mu.Lock()
				frame := spinnerFrames[i%len(spinnerFrames)]
				fmt.Fprintf(s.w, "\r%s %s", styleIconSpinner.Render(frame), StyleDim.Render(s.message))
				s.mu.Unlock()
				i++
			}
		}
	}()
}

// Stop stops the spinner and clears the line. It is safe to call twice.
func (s *Spinner) Stop() {
	s.cancel()
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	<-s.stopped
	s.clearLine()
}

func (s *Spinner) clearLine() {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, "\r%s\r", strings.Repeat(" ", s.width+4))
}

// StopWithError stops the spinner and reports that the variant failed to load.
func (s *Spinner) StopWithError() {
	s.Stop()
	printError("%s board failed to load", s.variant)
}

// Cancelled reports whether the spinner's context is done. Stop also ends it.
func (s *Spinner) Cancelled() bool {
	return s.ctx.Err() != nil
}
