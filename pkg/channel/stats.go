package channel

import (
	"sync"
	"time"
)

// Stats tracks channel activity for both endpoints. The reader side uses
// LastGrowth to implement idle detection: a stream is "complete for now"
// when no growth has been observed for a threshold, since a still-running
// writer never emits an end-of-stream marker.
type Stats struct {
	mu sync.Mutex

	bytesAppended int64
	appends       int64
	lastAppend    time.Time

	bytesRead  int64
	chunks     int64
	lastGrowth time.Time
}

func newStats() *Stats {
	return &Stats{}
}

func (s *Stats) addAppend(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appends++
	s.bytesAppended += int64(n)
	s.lastAppend = time.Now()
}

func (s *Stats) addGrowth(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks++
	s.bytesRead += int64(n)
	s.lastGrowth = time.Now()
}

// BytesAppended returns the total bytes written through this process's
// writer handle.
func (s *Stats) BytesAppended() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.bytesAppended
}

// Appends returns the number of append calls.
func (s *Stats) Appends() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.appends
}

// BytesRead returns the total bytes observed by followers.
func (s *Stats) BytesRead() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.bytesRead
}

// Chunks returns the number of growth chunks yielded to followers.
func (s *Stats) Chunks() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.chunks
}

// LastGrowth returns when a follower last observed new bytes.
func (s *Stats) LastGrowth() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastGrowth
}

// IdleFor reports whether no growth has been observed for at least d.
// Before any growth it reports false, because the upstream writer may
// simply not have produced anything yet.
func (s *Stats) IdleFor(d time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastGrowth.IsZero() {
		return false
	}

	return time.Since(s.lastGrowth) >= d
}
