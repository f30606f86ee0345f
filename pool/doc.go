// Package pool
// License: Apache-2.0
//
// Bounded pool of fixed-length I/O buffers. A BufferProvider leases
// DataBuffers to connections and takes their storage back on Recycle; the
// total memory it ever allocates is capped by maximalMemoryUsage. See
// provider.go for the exhaustion policies.
package pool
