package scan

import (
	"gonum.org/v1/gonum/stat"
)

// temporalResolution returns the time between two temporal positions in ms.
//
// The nominal R-R interval wins, then the heart rate. As a last resort the
// mean successive difference of the distinct acquisition times is used,
// ignoring every gap larger than twice the running mean; those gaps are the
// jumps between slices.
func temporalResolution(nominal, heartRate float64, temporal int, times []float64) float64 {
	t := float64(atLeastOne(temporal))
	switch {
	case nominal > 0:
		return nominal / t
	case heartRate > 0:
		return 60000 / (heartRate * t)
	case temporal <= 1:
		return 0
	}

	d := distinct(times)
	if len(d) < 2 {
		return 0
	}

	accepted := []float64{d[1] - d[0]}
	mean := accepted[0]
	for i := 2; i < len(d); i++ {
		gap := d[i] - d[i-1]
		if gap > 2*mean {
			continue
		}
		accepted = append(accepted, gap)
		mean = stat.Mean(accepted, nil)
	}
	return mean
}
