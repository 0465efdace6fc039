//go:build linux

package affinity

import "golang.org/x/sys/unix"

// Apply pins pid to the CPU resolved for slot. It is a no-op (nil
// error) when the Map is disabled or Resolve found nothing for the
// slot, matching the spec's "affinity disabled -> skip pinning" rule.
func Apply(m Map, slot, pid int) error {
	cpu, ok := m.Resolve(slot)
	if !ok {
		return nil
	}
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	return unix.SchedSetaffinity(pid, &set)
}
