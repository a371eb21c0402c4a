// Package notificationstest provides a recording Notifier for tests.
package notificationstest

import (
	"context"
	"sync"

	"seatnext/internal/notifications"
)

// Notice is one recorded Notify call
type Notice struct {
	Title   string
	Body    string
	Options notifications.Options
}

// Vibration is one recorded Vibrate call
type Vibration struct {
	Channel string
	Pattern []int
}

// Recorder captures every notification it receives
type Recorder struct {
	mu         sync.Mutex
	notices    []Notice
	vibrations []Vibration
	err        error
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

// FailWith makes every later call return err after recording it
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

func (r *Recorder) Notify(_ context.Context, title, body string, opts notifications.Options) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, Notice{Title: title, Body: body, Options: opts})
	return r.err
}

func (r *Recorder) Vibrate(_ context.Context, channel string, pattern []int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vibrations = append(r.vibrations, Vibration{Channel: channel, Pattern: append([]int(nil), pattern...)})
	return r.err
}

// Notices returns a copy of the recorded notices
func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

// NoticesOn returns the notices sent to channel
func (r *Recorder) NoticesOn(channel string) []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Notice
	for _, n := range r.notices {
		if n.Options.Channel == channel {
			out = append(out, n)
		}
	}
	return out
}

// Vibrations returns a copy of the recorded vibrations
func (r *Recorder) Vibrations() []Vibration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Vibration(nil), r.vibrations...)
}

// Reset forgets everything recorded so far
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.notices = nil
	r.vibrations = nil
	r.mu.Unlock()
}
