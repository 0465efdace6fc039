package main

import (
	"encoding/json"
	"os"

	"github.com/guti2010/execpool/internal/job"
	"github.com/guti2010/execpool/internal/size"
)

// jobSpec is the on-disk shape of one entry in a jobs file: the
// embedder's batch-submission format for the demo CLI, distinct from
// the library's job.Spec which carries live callbacks and a clock.
type jobSpec struct {
	Name        string   `json:"name"`
	Argv        []string `json:"argv"`
	Category    string   `json:"category"`
	Size        *uint64  `json:"size"`
	TimeoutS    float64  `json:"timeout_s"`
	Restart     bool     `json:"restart_on_timeout"`
	StartDelayS float64  `json:"start_delay_s"`
	Slowdown    float64  `json:"slowdown"`
}

// loadJobsFile reads a JSON array of jobSpec and builds job.Job
// values ready for submission. Stdout/stderr are inherited from the
// CLI process so output is visible on the terminal running execpoold.
func loadJobsFile(path string) ([]*job.Job, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var specs []jobSpec
	if err := json.Unmarshal(raw, &specs); err != nil {
		return nil, err
	}

	jobs := make([]*job.Job, 0, len(specs))
	for _, js := range specs {
		onTimeout := job.OnTimeoutTerminate
		if js.Restart {
			onTimeout = job.OnTimeoutRestart
		}
		sz := size.Unknown()
		if js.Size != nil {
			sz = size.Known(*js.Size)
		}
		slowdown := js.Slowdown
		if slowdown <= 0 {
			slowdown = 1
		}
		j, err := job.New(job.Spec{
			Name:        js.Name,
			Argv:        js.Argv,
			TimeoutS:    js.TimeoutS,
			OnTimeout:   onTimeout,
			StartDelayS: js.StartDelayS,
			Category:    js.Category,
			Size:        sz,
			Slowdown:    slowdown,
			Stdout:      job.InheritStdio(),
			Stderr:      job.InheritStdio(),
		})
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}
