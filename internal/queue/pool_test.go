package queue

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestPoolRunsSubmittedJobsConcurrently(t *testing.T) {
	p := NewPool(4)

	var wg sync.WaitGroup
	var count int32
	wg.Add(10)
	for i := 0; i < 10; i++ {
		p.Submit(func() {
			defer wg.Done()
			atomic.AddInt32(&count, 1)
		})
	}
	wg.Wait()
	p.Stop()

	if got := atomic.LoadInt32(&count); got != 10 {
		t.Fatalf("expected 10 jobs run, got %d", got)
	}
}

func TestNewPoolClampsSizeToAtLeastOne(t *testing.T) {
	p := NewPool(0)
	done := make(chan struct{})
	p.Submit(func() { close(done) })
	<-done
	p.Stop()
}

func TestPoolStopWaitsForInFlightJobs(t *testing.T) {
	p := NewPool(2)
	var finished int32
	block := make(chan struct{})
	p.Submit(func() {
		<-block
		atomic.AddInt32(&finished, 1)
	})
	close(block)
	p.Stop()

	if atomic.LoadInt32(&finished) != 1 {
		t.Fatalf("expected in-flight job to complete before Stop returned")
	}
}
