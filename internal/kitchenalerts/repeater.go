package kitchenalerts

import (
	"sync"
	"time"
)

// Repeater runs fn every interval until the returned stop is called. Stop
// must be safe to call more than once.
type Repeater interface {
	Start(interval time.Duration, fn func()) (stop func())
}

// TickerRepeater runs each repetition on its own goroutine and ticker
type TickerRepeater struct{}

func (TickerRepeater) Start(interval time.Duration, fn func()) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fn()
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

func tickerChan(d time.Duration) (<-chan struct{}, func()) {
	ticker := time.NewTicker(d)
	out := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				select {
				case out <- struct{}{}:
				case <-done:
					return
				}
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return out, func() { once.Do(func() { close(done) }) }
}
