//go:build !linux

package affinity

// Apply is a no-op on non-Linux platforms: CPU affinity pinning has no
// portable syscall, so the pool degrades to "no pinning" rather than
// failing the Job.
func Apply(_ Map, _, _ int) error { return nil }
