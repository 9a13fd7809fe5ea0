package analysis

const (
	positive = 1
	negative = -1
)

// Detector finds local extrema (peaks and valleys) and edges in a voltage series.
type Detector struct {
	// WindowFraction is the comparison window relative to the series length.
	WindowFraction float32
	// EdgeSensitivity is the absolute delta above which two samples differ.
	EdgeSensitivity float32
}

// Detect scans every interior sample of points. Index 0 and the last index are
// never classified, so a series shorter than 3 samples yields empty results.
func (d Detector) Detect(points []float32) ExtremaEdgeResult {
	res := ExtremaEdgeResult{
		Peaks:        []int64{},
		Edges:        []int64{},
		StartingSign: positive,
	}
	n := len(points)
	if n < 3 {
		return res
	}

	window := d.WindowFraction * float32(n)
	sens := d.EdgeSensitivity

	for i := 1; i < n-1; i++ {
		backward := min(float32(i), window)
		forward := min(float32(n-i-1), window)
		val := points[i]

		peak := true
		valley := true
		different := false
		trailingEdge := abs32(points[i-1]-val) > sens
		leadingEdge := abs32(points[i+1]-val) > sens

		// Backward scan. A sign change among the preceding samples clears the
		// leading edge flag (and the forward scan clears the trailing one); keep
		// this crossing as is, earlier results depend on it.
		sign := 0
		for r := 0; float32(r) < backward; r++ {
			p := points[i-r-1]
			c := negative
			if p > val {
				c = positive
			}
			if sign == 0 {
				sign = c
			} else if sign != c {
				leadingEdge = false
			}
			if abs32(val-p) > sens {
				different = true
			}
			if p >= val {
				peak = false
			}
			if p <= val {
				valley = false
			}
			if !peak && !valley && different && !leadingEdge {
				break
			}
		}

		sign = 0
		for l := 0; float32(l) < forward; l++ {
			p := points[i+l+1]
			c := negative
			if p > val {
				c = positive
			}
			if sign == 0 {
				sign = c
			} else if sign != c {
				trailingEdge = false
			}
			if abs32(val-p) > sens {
				different = true
			}
			if p >= val {
				peak = false
			}
			if p <= val {
				valley = false
			}
			if !peak && !valley && different && !trailingEdge {
				break
			}
		}

		if peak || valley {
			if len(res.Peaks) == 0 {
				if peak {
					res.StartingSign = positive
				} else {
					res.StartingSign = negative
				}
			}
			res.Peaks = append(res.Peaks, int64(i))
			res.Edges = append(res.Edges, int64(i))
			continue
		}

		if (leadingEdge || trailingEdge) && different {
			res.Edges = append(res.Edges, int64(i))
		}
	}

	return res
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
