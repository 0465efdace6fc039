// Package affinity maps a worker slot index to a CPU id honoring NUMA
// node layout and an optional affinity step, and applies the result to
// a live process on Linux via golang.org/x/sys/unix.
package affinity

import "github.com/guti2010/execpool/internal/perr"

// Map is an AffinityMap: (slot_index, core_threads, nodes,
// cross_nodes) -> cpu id. The zero value is disabled (afn_step
// absent): Resolve always reports ok=false and Apply is a no-op.
type Map struct {
	enabled     bool
	coreThreads int // hardware threads per physical core (2 = SMT/HT)
	nodes       int // NUMA node count
	crossNodes  bool
	step        int // affinity step; >1 skips slots, may reduce effective worker count
}

// New builds an enabled Map. coreThreads and nodes must be >= 1; step
// must be >= 1 (step 1 pins every slot to a distinct CPU in sequence).
func New(coreThreads, nodes, step int, crossNodes bool) (Map, error) {
	if coreThreads < 1 || nodes < 1 || step < 1 {
		return Map{}, perr.New(perr.ConfigInvalid, "affinity.New: coreThreads, nodes and step must be >= 1")
	}
	return Map{
		enabled:     true,
		coreThreads: coreThreads,
		nodes:       nodes,
		crossNodes:  crossNodes,
		step:        step,
	}, nil
}

// Disabled returns a no-op Map, matching the spec's "afn_step absent"
// case: pinning is skipped entirely.
func Disabled() Map { return Map{} }

// Enabled reports whether this Map will produce CPU ids at all.
func (m Map) Enabled() bool { return m.enabled }

// Resolve returns the CPU id for the given worker slot. When CPUs are
// enumerated across nodes (node 0 gets even ids, node 1 odd ids, etc.)
// the map skips non-primary hardware threads:
//
//	cpu = i + (i / nodes) * nodes * (coreThreads - 1)
//
// where i = slot * step (the affinity step may widen the spacing
// between consecutive slots, which is why a large step can reduce the
// effective usable worker count — callers must pre-size wks_num for
// the step they configure).
func (m Map) Resolve(slot int) (cpu int, ok bool) {
	if !m.enabled || slot < 0 {
		return 0, false
	}
	i := slot * m.step
	if !m.crossNodes {
		// Stay resident on a single node (node 0): every slot advances
		// by a full physical core, never touching a second hardware
		// thread or a second node. Maximizes cache locality per worker
		// at the cost of the worker count a single node can host.
		return i * m.coreThreads, true
	}
	cpu = i + (i/m.nodes)*m.nodes*(m.coreThreads-1)
	return cpu, true
}
