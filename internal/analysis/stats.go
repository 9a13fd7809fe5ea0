package analysis

import "math"

// meanWeightCap bounds the divisor of the incremental mean. Past this many samples
// every new sample weighs 1/meanWeightCap, like an exponential moving average.
const meanWeightCap = 1000

// Summary is the output of Summarize.
type Summary struct {
	Mean      float32
	Min       float32
	Max       float32
	Deviation float32 // mean absolute deviation from Mean
}

// Summarize computes mean, min, max and mean absolute deviation of points with the
// bounded incremental estimator used by the capture tools. Results on more than
// meanWeightCap samples intentionally differ from the arithmetic mean.
//
// Max starts at 0, so a series with only negative values reports a max of 0.
// This is a known defect kept for compatibility with existing stat dumps.
func Summarize(points []float32) Summary {
	s := Summary{Min: math.MaxFloat32}

	for i, v := range points {
		if v > s.Max {
			s.Max = v
		}
		if v < s.Min {
			s.Min = v
		}
		s.Mean = s.Mean + ((v - s.Mean) / boundedWeight(i))
	}

	for i, v := range points {
		d := abs32(v - s.Mean)
		s.Deviation = s.Deviation + ((d - s.Deviation) / boundedWeight(i))
	}

	return s
}

func boundedWeight(i int) float32 {
	return min(float32(i)+1, meanWeightCap)
}
