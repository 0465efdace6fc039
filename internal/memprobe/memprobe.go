// Package memprobe samples the resident + shared memory footprint of a
// process tree (root pid plus all descendants), tolerating processes
// that exit mid-walk.
package memprobe

import (
	"context"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/guti2010/execpool/internal/perr"
)

// Sample is a single memory reading in bytes.
type Sample struct {
	ResidentBytes uint64
	SharedBytes   uint64
}

// Total returns ResidentBytes + SharedBytes, the quantity the spec's
// smoothing formula and vm_limit_bytes budget operate on.
func (s Sample) Total() uint64 { return s.ResidentBytes + s.SharedBytes }

// Probe samples a process tree's memory footprint.
type Probe interface {
	// SampleTree returns the best-effort sum of resident+shared bytes
	// over root and all of its descendants. A descendant that
	// vanishes mid-walk is skipped, not an error; only a failure to
	// read the root itself is returned as an error.
	SampleTree(ctx context.Context, rootPID int) (Sample, error)
}

// GopsutilProbe implements Probe via github.com/shirou/gopsutil/v3.
type GopsutilProbe struct{}

// NewGopsutilProbe constructs the default, OS-native Probe. On a
// platform where gopsutil cannot read process memory maps at all, the
// caller should catch the first SampleTree error, classify it with
// perr.MemoryProbeUnavailable, and fall back to unlimited mode — this
// constructor itself never fails, the degrade decision is the pool's.
func NewGopsutilProbe() GopsutilProbe { return GopsutilProbe{} }

func (GopsutilProbe) SampleTree(ctx context.Context, rootPID int) (Sample, error) {
	root, err := process.NewProcessWithContext(ctx, int32(rootPID))
	if err != nil {
		return Sample{}, perr.Wrap(perr.MemoryProbeUnavailable, err, "memprobe: root process not found")
	}

	var total Sample
	procs := []*process.Process{root}
	seen := map[int32]bool{}

	for len(procs) > 0 {
		p := procs[0]
		procs = procs[1:]
		if seen[p.Pid] {
			continue
		}
		seen[p.Pid] = true

		if s, ok := sampleOne(ctx, p); ok {
			total.ResidentBytes += s.ResidentBytes
			total.SharedBytes += s.SharedBytes
		} else if p == root {
			return Sample{}, perr.New(perr.MemoryProbeUnavailable, "memprobe: cannot read root process memory maps")
		}

		children, err := p.ChildrenWithContext(ctx)
		if err != nil {
			// Process exited or has no children left to enumerate;
			// this is the race the spec explicitly tolerates.
			continue
		}
		procs = append(procs, children...)
	}

	return total, nil
}

// sampleOne reads one process's grouped memory-maps aggregate (Rss
// and Shared_Clean+Shared_Dirty). A process that vanished between
// being discovered and being sampled is skipped (ok=false), never
// propagated as an error.
func sampleOne(ctx context.Context, p *process.Process) (Sample, bool) {
	maps, err := p.MemoryMapsWithContext(ctx, true)
	if err != nil || maps == nil || len(*maps) == 0 {
		return Sample{}, false
	}
	agg := (*maps)[0]
	return Sample{
		ResidentBytes: agg.Rss,
		SharedBytes:   agg.SharedClean + agg.SharedDirty,
	}, true
}
