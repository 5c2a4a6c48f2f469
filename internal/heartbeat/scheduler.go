// Package heartbeat runs periodic callbacks for session keep-alive and
// reliable-packet retry.
package heartbeat

import (
	"sync"
	"time"
)

// Ticker is the scheduler surface the controller consumes.
type Ticker interface {
	OnTick(fn func(now time.Time), interval time.Duration) (cancel func())
}

// Scheduler runs each registered callback on its own time.Ticker goroutine.
// Callbacks for one registration never overlap.
type Scheduler struct {
	mu      sync.Mutex
	wg      sync.WaitGroup
	stops   map[int]chan struct{}
	next    int
	stopped bool
}

var _ Ticker = (*Scheduler)(nil)

func NewScheduler() *Scheduler {
	return &Scheduler{stops: make(map[int]chan struct{})}
}

// OnTick calls fn every interval until cancel or Stop. Non-positive intervals
// register nothing.
func (s *Scheduler) OnTick(fn func(now time.Time), interval time.Duration) func() {
	if fn == nil || interval <= 0 {
		return func() {}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return func() {}
	}
	id := s.next
	s.next++
	stop := make(chan struct{})
	s.stops[id] = stop

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case now := <-t.C:
				fn(now)
			}
		}
	}()

	return func() { s.cancel(id) }
}

func (s *Scheduler) cancel(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stop, ok := s.stops[id]; ok {
		close(stop)
		delete(s.stops, id)
	}
}

// Stop cancels every registration and waits for running callbacks to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for id, stop := range s.stops {
		close(stop)
		delete(s.stops, id)
	}
	s.mu.Unlock()
	s.wg.Wait()
}
