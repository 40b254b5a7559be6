// Package utils contains small helpers shared by the grabber packages.
package utils

import (
	"runtime"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// ParallelFactor controls the max level of parallelization. This might be useful
// to set in tests where too much parallelism actually slows tests down in
// aggregate.
var ParallelFactor = runtime.GOMAXPROCS(0)

func init() {
	if ParallelFactor <= 0 {
		ParallelFactor = 1
	}
}

// RowWorkFunc processes a single row of an image.
type RowWorkFunc func(y int) error

// ParallelForEachRow splits [0, height) into contiguous groups of rows and runs fn on every row,
// one goroutine per group. It returns once every group is done, with the first error seen.
// A panic in fn is reported as an error rather than crashing the process.
func ParallelForEachRow(height int, fn RowWorkFunc) error {
	if height <= 0 {
		return nil
	}
	numGroups := ParallelFactor
	if numGroups > height {
		numGroups = height
	}
	groupSize := height / numGroups
	extra := height % numGroups

	var group errgroup.Group
	from := 0
	for groupNum := 0; groupNum < numGroups; groupNum++ {
		to := from + groupSize
		if groupNum < extra {
			to++
		}
		start, end := from, to
		group.Go(func() (err error) {
			defer func() {
				if thePanic := recover(); thePanic != nil {
					err = errors.Errorf("got panic processing rows [%d, %d): %v", start, end, thePanic)
				}
			}()
			for y := start; y < end; y++ {
				if err := fn(y); err != nil {
					return err
				}
			}
			return nil
		})
		from = to
	}
	return group.Wait()
}
