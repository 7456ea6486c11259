// Package progress reports the advance of long-running scan steps.
// A sink only observes; it never influences control flow.
package progress

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v2"
)

// Sink receives progress events.
type Sink interface {
	// EmitTask starts a new task of total steps.
	EmitTask(total int, label string)

	// Increment advances the current task by n steps.
	Increment(n int)

	// SetFinished marks the current task as done.
	SetFinished()
}

// Nop discards every event.
type Nop struct{}

func (Nop) EmitTask(int, string) {}
func (Nop) Increment(int)        {}
func (Nop) SetFinished()         {}

// Bar renders tasks as terminal progress bars.
type Bar struct {
	mu  sync.Mutex
	log zerolog.Logger
	bar *progressbar.ProgressBar
}

// NewBar returns a sink drawing progress bars; task labels go to the logger.
func NewBar(log zerolog.Logger) *Bar {
	return &Bar{log: log}
}

func (b *Bar) EmitTask(total int, label string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bar != nil {
		b.bar.Finish()
	}
	b.log.Info().Int("steps", total).Msg(label)
	b.bar = progressbar.New(total)
}

func (b *Bar) Increment(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bar != nil {
		b.bar.Add(n)
	}
}

func (b *Bar) SetFinished() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bar != nil {
		b.bar.Finish()
		b.bar = nil
	}
}

// Counter records events; it is safe for concurrent use.
type Counter struct {
	mu       sync.Mutex
	Tasks    []string
	Total    int
	Done     int
	Finished int
}

func (c *Counter) EmitTask(total int, label string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Tasks = append(c.Tasks, label)
	c.Total += total
}

func (c *Counter) Increment(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Done += n
}

func (c *Counter) SetFinished() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Finished++
}

// OrNop returns s, or Nop when s is nil.
func OrNop(s Sink) Sink {
	if s == nil {
		return Nop{}
	}
	return s
}
