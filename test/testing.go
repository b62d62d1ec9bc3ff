// Package test holds integration tests that exercise the full
// session/transport/transfer stack together, rather than one package at a
// time.
package test

import (
	"runtime"
	"testing"
	"time"
)

// PrintStackTrace dumps every goroutine's stack, for diagnosing a test that
// timed out waiting on an actor that should have replied.
func PrintStackTrace(t *testing.T) {
	buf := make([]byte, 1<<16)
	runtime.Stack(buf, true)
	t.Errorf("%s", buf)
}

// WaitThisOrTimeout runs cb and reports whether it finished before
// duration elapsed.
func WaitThisOrTimeout(cb func(), duration time.Duration) bool {
	done := make(chan bool)
	go func() {
		cb()
		done <- true
	}()
	select {
	case <-done:
		return true
	case <-time.After(duration):
		return false
	}
}
