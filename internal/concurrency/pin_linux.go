//go:build linux

// File: internal/concurrency/pin_linux.go
// License: Apache-2.0
//
// Linux implementation of thread pinning through sched_setaffinity.

package concurrency

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// LockThread wires the calling goroutine to its OS thread and, when cpuID is
// non-negative, restricts that thread to the given CPU. The returned function
// undoes both.
func LockThread(cpuID int) (release func(), err error) {
	runtime.LockOSThread()
	release = runtime.UnlockOSThread
	if cpuID < 0 {
		return release, nil
	}

	var previous unix.CPUSet
	if err := unix.SchedGetaffinity(0, &previous); err != nil {
		return release, fmt.Errorf("pin: get affinity: %w", err)
	}
	if !previous.IsSet(cpuID) {
		return release, fmt.Errorf("%w: %d", ErrInvalidCPU, cpuID)
	}
	var mask unix.CPUSet
	mask.Zero()
	mask.Set(cpuID)
	if err := unix.SchedSetaffinity(0, &mask); err != nil {
		return release, fmt.Errorf("pin: set affinity: %w", err)
	}
	return func() {
		_ = unix.SchedSetaffinity(0, &previous)
		runtime.UnlockOSThread()
	}, nil
}

// CurrentCPUSet returns the CPUs the calling thread may run on.
func CurrentCPUSet() ([]int, error) {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return nil, err
	}
	out := make([]int, 0, set.Count())
	for i := 0; len(out) < cap(out); i++ {
		if set.IsSet(i) {
			out = append(out, i)
		}
	}
	return out, nil
}
