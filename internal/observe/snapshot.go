package observe

import "github.com/guti2010/execpool/internal/execpool"

// defaultJlim is the jlim cap applied when the caller doesn't specify one.
const defaultJlim = 100

// Snapshot is the read-only view the embedder's HTTP/HTML status
// surface renders (spec.md §6).
type Snapshot struct {
	Failures []Entry // finished Jobs with non-zero exit code, and Tasks with a failed Job
	Jobs     []Entry // non-finished Jobs (waiting + active)
	Tasks    []Entry // Tasks whose first descendant Job has started
}

// Build constructs a Snapshot from a pool's current state.
func Build(p *execpool.ExecPool) Snapshot {
	var s Snapshot

	for _, j := range p.Waiting() {
		s.Jobs = append(s.Jobs, jobEntry(j))
	}
	for _, j := range p.Active() {
		s.Jobs = append(s.Jobs, jobEntry(j))
	}

	failedTaskNames := map[string]bool{}
	for _, j := range p.Finished() {
		if j.RCode() != 0 {
			e := jobEntry(j)
			s.Failures = append(s.Failures, e)
			if tn := j.TaskName(); tn != "" {
				failedTaskNames[tn] = true
			}
		}
	}

	for _, t := range p.Tasks() {
		if !t.Started() {
			continue
		}
		e := taskEntry(t)
		s.Tasks = append(s.Tasks, e)
		if failedTaskNames[t.Name] {
			s.Failures = append(s.Failures, e)
		}
	}

	return s
}

// FilterJobs returns the Jobs entries matching preds (AND-combined),
// capped at jlim entries (0 or negative => defaultJlim).
func (s Snapshot) FilterJobs(preds []Predicate, jlim int) []Entry {
	return filterCapped(s.Jobs, preds, jlim)
}

// FilterFailures returns the Failures entries matching preds, capped
// at jlim.
func (s Snapshot) FilterFailures(preds []Predicate, jlim int) []Entry {
	return filterCapped(s.Failures, preds, jlim)
}

// FilterTasks returns the Tasks entries matching preds, capped at jlim.
func (s Snapshot) FilterTasks(preds []Predicate, jlim int) []Entry {
	return filterCapped(s.Tasks, preds, jlim)
}

func filterCapped(entries []Entry, preds []Predicate, jlim int) []Entry {
	if jlim <= 0 {
		jlim = defaultJlim
	}
	out := make([]Entry, 0, jlim)
	for _, e := range entries {
		if !MatchAll(preds, e) {
			continue
		}
		out = append(out, e)
		if len(out) >= jlim {
			break
		}
	}
	return out
}
