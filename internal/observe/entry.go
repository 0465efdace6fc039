// Package observe builds the read-only observation snapshot the
// embedder's HTTP/HTML status surface renders (spec.md §6), and
// implements its predicate-filter grammar.
package observe

import (
	"strconv"
	"time"

	"github.com/guti2010/execpool/internal/job"
	"github.com/guti2010/execpool/internal/task"
)

// Entry is one row of a snapshot collection: the union of the fields
// spec.md §6 lists, with optional ones left nil when the underlying
// Job/Task has no value for them yet (e.g. a waiting Job has no pid).
type Entry struct {
	Category *string
	RCode    *int
	Duration *time.Duration
	MemKind  *string // "known" | "unknown"
	MemSize  *uint64
	Name     string
	NumAdded *int
	NumDone  *int
	NumTerm  *int
	PID      *int
	Task     *string
	TStart   *time.Time
	TStop    *time.Time
}

func strp(s string) *string { return &s }
func intp(v int) *int       { return &v }

func jobEntry(j *job.Job) Entry {
	e := Entry{Name: j.Name}
	if j.Category != "" {
		e.Category = strp(j.Category)
	}
	if v, ok := j.Size.Value(); ok {
		e.MemKind = strp("known")
		e.MemSize = &v
	} else {
		e.MemKind = strp("unknown")
	}
	if j.State() == job.StateFinishedOK || j.State() == job.StateFinishedFail {
		e.RCode = intp(j.RCode())
	}
	if pid := j.PID(); pid != 0 {
		e.PID = intp(pid)
	}
	if tn := j.TaskName(); tn != "" {
		e.Task = strp(tn)
	}
	if ts := j.TStart(); !ts.IsZero() {
		e.TStart = &ts
		d := j.Duration()
		e.Duration = &d
	}
	if tstop := j.TStop(); !tstop.IsZero() {
		e.TStop = &tstop
	}
	return e
}

func taskEntry(t *task.Task) Entry {
	added, done, term := t.Counters()
	e := Entry{
		Name:     t.Name,
		NumAdded: intp(added),
		NumDone:  intp(done),
		NumTerm:  intp(term),
	}
	if ts := t.TStart(); !ts.IsZero() {
		e.TStart = &ts
	}
	if tstop := t.TStop(); !tstop.IsZero() {
		e.TStop = &tstop
	}
	return e
}

// attr resolves a predicate property name to a numeric value (for
// range/exact matching), falling back to string comparison for
// non-numeric properties. present reports whether the Entry carries
// that property at all.
func (e Entry) attr(name string) (numeric float64, isNumeric bool, str string, present bool) {
	switch name {
	case "category":
		if e.Category == nil {
			return 0, false, "", false
		}
		return 0, false, *e.Category, true
	case "rcode":
		if e.RCode == nil {
			return 0, false, "", false
		}
		return float64(*e.RCode), true, "", true
	case "duration":
		if e.Duration == nil {
			return 0, false, "", false
		}
		return e.Duration.Seconds(), true, "", true
	case "memkind":
		if e.MemKind == nil {
			return 0, false, "", false
		}
		return 0, false, *e.MemKind, true
	case "memsize":
		if e.MemSize == nil {
			return 0, false, "", false
		}
		return float64(*e.MemSize), true, "", true
	case "name":
		return 0, false, e.Name, true
	case "numadded":
		if e.NumAdded == nil {
			return 0, false, "", false
		}
		return float64(*e.NumAdded), true, "", true
	case "numdone":
		if e.NumDone == nil {
			return 0, false, "", false
		}
		return float64(*e.NumDone), true, "", true
	case "numterm":
		if e.NumTerm == nil {
			return 0, false, "", false
		}
		return float64(*e.NumTerm), true, "", true
	case "pid":
		if e.PID == nil {
			return 0, false, "", false
		}
		return float64(*e.PID), true, "", true
	case "task":
		if e.Task == nil {
			return 0, false, "", false
		}
		return 0, false, *e.Task, true
	case "tstart":
		if e.TStart == nil {
			return 0, false, "", false
		}
		return float64(e.TStart.Unix()), true, "", true
	case "tstop":
		if e.TStop == nil {
			return 0, false, "", false
		}
		return float64(e.TStop.Unix()), true, "", true
	default:
		return 0, false, "", false
	}
}

func parseFloat(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
