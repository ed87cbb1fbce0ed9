package preflight

import (
	"discdump/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the checks for a dump that will write imageBytes. A zero
// imageBytes skips the free-space check. Simulated drives skip the device
// check.
func RunAll(cfg *config.Config, imageBytes uint64, simulated bool) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir),
	}
	if imageBytes > 0 {
		results = append(results, CheckFreeSpace("Output space", cfg.Paths.OutputDir, imageBytes))
	}
	if !simulated {
		results = append(results, CheckDevice(cfg.Drive.Device))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
