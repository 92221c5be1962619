package modem

import (
	"testing"
	"time"
)

func TestWorkerRunsSubmissionsInOrder(t *testing.T) {
	w := newWorker()
	defer w.Close()

	done := make(chan int, 3)
	for i := 1; i <= 3; i++ {
		w.Submit(func() { done <- i })
	}

	for want := 1; want <= 3; want++ {
		select {
		case got := <-done:
			if got != want {
				t.Errorf("execution order: got %d, want %d", got, want)
			}
		case <-time.After(time.Second):
			t.Fatal("submission never ran")
		}
	}
}

func TestWorkerSubmitAfter(t *testing.T) {
	w := newWorker()
	defer w.Close()

	done := make(chan struct{})
	start := time.Now()
	w.SubmitAfter(20*time.Millisecond, func() { close(done) })

	select {
	case <-done:
		if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
			t.Errorf("ran after %v, want at least 20ms", elapsed)
		}
	case <-time.After(time.Second):
		t.Fatal("delayed submission never ran")
	}
}

func TestWorkerDropsSubmissionsAfterClose(t *testing.T) {
	w := newWorker()
	w.Close()

	// Must not panic or block.
	w.Submit(func() { t.Error("submission ran after close") })
	time.Sleep(10 * time.Millisecond)
}

func TestWorkerSubmitNeverBlocks(t *testing.T) {
	w := newWorker()

	// Stall the worker inside a step.
	release := make(chan struct{})
	w.Submit(func() { <-release })

	done := make(chan struct{})
	go func() {
		for range 256 {
			w.Submit(func() {})
		}
		w.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Submit or Close blocked behind a stalled step")
	}
	close(release)
}
