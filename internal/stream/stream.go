// Package stream provides the ordered execution queue that all GEMM and
// epilogue kernels are scheduled on. A Stream plays the role of a device
// stream: work enqueued on it runs asynchronously with respect to the caller
// but strictly in program order with respect to other work on the same
// stream, so kernels within one multiply call never need to synchronize with
// each other.
package stream

import "sync"

// Stream is an ordered asynchronous work queue. The zero value is not usable;
// construct with New and release with Close.
type Stream struct {
	mu     sync.Mutex
	tasks  chan func()
	closed bool
	done   chan struct{}
}

// New starts a stream backed by a single worker goroutine.
func New() *Stream {
	s := &Stream{
		tasks: make(chan func(), 64),
		done:  make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Stream) run() {
	defer close(s.done)
	for task := range s.tasks {
		task()
	}
}

// Enqueue schedules fn after all previously enqueued work. It blocks only
// when the queue is full, never until fn runs.
func (s *Stream) Enqueue(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		panic("stream: enqueue on closed stream")
	}
	s.tasks <- fn
}

// Synchronize blocks the calling goroutine until every previously enqueued
// task has completed. This is the only blocking point in the engine; the
// scale-factor readback in the precision resolver depends on it and pays its
// full latency cost.
func (s *Stream) Synchronize() {
	ch := make(chan struct{})
	s.Enqueue(func() { close(ch) })
	<-ch
}

// Close drains the stream and stops its worker. The stream must not be used
// afterwards.
func (s *Stream) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.tasks)
	s.mu.Unlock()
	<-s.done
}
