//go:build !linux

// File: internal/concurrency/pin.go
// License: Apache-2.0
//
// Fallback for platforms without sched_setaffinity: threads are locked but
// never pinned.

package concurrency

import "runtime"

// LockThread wires the calling goroutine to its OS thread. Pinning to cpuID is
// unsupported here and reported as ErrAffinityNotSupported.
func LockThread(cpuID int) (release func(), err error) {
	runtime.LockOSThread()
	if cpuID >= 0 {
		return runtime.UnlockOSThread, ErrAffinityNotSupported
	}
	return runtime.UnlockOSThread, nil
}

// CurrentCPUSet is unsupported on this platform.
func CurrentCPUSet() ([]int, error) {
	return nil, ErrAffinityNotSupported
}
