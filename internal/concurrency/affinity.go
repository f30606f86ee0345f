// File: internal/concurrency/affinity.go
// License: Apache-2.0
//
// Cross-platform CPU selection helpers.

package concurrency

import (
	"runtime"
)

// NumCPUs returns the number of logical CPUs.
func NumCPUs() int {
	return runtime.NumCPU()
}

// CPUFor spreads successive thread indices over the CPUs the process may run
// on.
func CPUFor(index int) int {
	if index < 0 {
		index = 0
	}
	if cpus, err := CurrentCPUSet(); err == nil && len(cpus) > 0 {
		return cpus[index%len(cpus)]
	}
	n := NumCPUs()
	if n <= 0 {
		return 0
	}
	return index % n
}
