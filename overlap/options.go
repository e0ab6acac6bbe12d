package overlap

import (
	"runtime"

	"github.com/google/uuid"
	"github.com/notargets/meshoverlap/locator"
)

type Option func(*Detector)

// WithTolerance widens the shrink applied to every cell before the exact
// test by half of tol, so overlaps thinner than tol are ignored.
func WithTolerance(tol float64) Option {
	return func(d *Detector) {
		d.Tolerance = tol
	}
}

func WithNumberOfPointsPerBucket(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.NumberOfPointsPerBucket = n
		}
	}
}

func WithParallelDegree(pd int) Option {
	return func(d *Detector) {
		if pd > 0 {
			d.ParallelDegree = pd
		}
	}
}

// WithRunID tags logs, spans and stats of the run. Ranks of one run should
// share it.
func WithRunID(id string) Option {
	return func(d *Detector) {
		d.RunID = id
	}
}

func defaultDetector() *Detector {
	return &Detector{
		NumberOfPointsPerBucket: locator.DefaultPointsPerBucket,
		ParallelDegree:          runtime.GOMAXPROCS(0),
		RunID:                   uuid.NewString(),
	}
}
