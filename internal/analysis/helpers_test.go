package analysis_test

import "github.com/user/atx_analyzer_go/internal/analysis"

// captureMarkers places T1..OFF on frames 10, 20, 30, 40, 80 and 90.
func captureMarkers() []analysis.Marker {
	return []analysis.Marker{
		{FrameOffset: 10, TimeOffsetUs: 10000},
		{FrameOffset: 20, TimeOffsetUs: 20000},
		{FrameOffset: 30, TimeOffsetUs: 30000},
		{FrameOffset: 40, TimeOffsetUs: 140000},
		{FrameOffset: 80, TimeOffsetUs: 180000},
		{FrameOffset: 90, TimeOffsetUs: 190000},
	}
}

// syntheticRail is off until frame 20, ramps linearly to nominal at frame 30,
// holds nominal and drops to 0 at frame 90.
func syntheticRail(n int, nominal float32) []float32 {
	points := make([]float32, n)
	for i := range points {
		switch {
		case i < 20:
			points[i] = 0
		case i < 30:
			points[i] = nominal * float32(i-20) / 10
		case i < 90:
			points[i] = nominal
		default:
			points[i] = 0
		}
	}
	return points
}

func syntheticInput(n int) analysis.RunInput {
	return analysis.RunInput{
		Rails: []analysis.RailSeries{
			{Rail: analysis.V12, Points: syntheticRail(n, 12)},
			{Rail: analysis.V5, Points: syntheticRail(n, 5)},
			{Rail: analysis.V5SB, Points: syntheticRail(n, 5)},
			{Rail: analysis.V3_3, Points: syntheticRail(n, 3.3)},
		},
		Markers: captureMarkers(),
	}
}

func railStats(rail analysis.Rail) *analysis.RailStats {
	for _, spec := range analysis.DefaultRailSpecs() {
		if spec.Rail == rail {
			return &analysis.RailStats{Rail: rail, NominalVoltage: spec.Nominal, VoltageTolerance: spec.Tolerance}
		}
	}
	return &analysis.RailStats{Rail: rail}
}
