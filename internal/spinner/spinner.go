// Package spinner draws a one-line progress indicator on a terminal.
package spinner

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-runewidth"
)

var frames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Spinner animates a message until Stop is called. The message can be
// replaced while it runs.
type Spinner struct {
	w        io.Writer
	interval time.Duration

	mu      sync.Mutex
	message string
	width   int

	done     chan struct{}
	cleared  chan struct{}
	stopOnce sync.Once
}

// Start displays an animated spinner with the given message on w.
func Start(w io.Writer, message string) *Spinner {
	s := &Spinner{
		w:        w,
		interval: 80 * time.Millisecond,
		message:  message,
		done:     make(chan struct{}),
		cleared:  make(chan struct{}),
	}
	go s.loop()
	return s
}

// Update replaces the message shown next to the spinner.
func (s *Spinner) Update(message string) {
	s.mu.Lock()
	s.message = message
	s.mu.Unlock()
}

// Stop halts the animation and clears the line. It is safe to call more than once.
func (s *Spinner) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
	<-s.cleared
}

func (s *Spinner) loop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for i := 0; ; i++ {
		select {
		case <-s.done:
			s.mu.Lock()
			fmt.Fprintf(s.w, "\r%s\r", strings.Repeat(" ", s.width)) //nolint:errcheck
			s.mu.Unlock()
			close(s.cleared)
			return
		case <-ticker.C:
			s.mu.Lock()
			line := frames[i%len(frames)] + " " + s.message
			// Pad over the tail of a longer previous message.
			w := runewidth.StringWidth(line)
			pad := max(0, s.width-w)
			s.width = max(s.width, w)
			fmt.Fprintf(s.w, "\r%s%s", line, strings.Repeat(" ", pad)) //nolint:errcheck
			s.mu.Unlock()
		}
	}
}
