package analysis

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// AnalyzeSegment computes the statistics of one rail between the markers of stages
// start and end (indices into StageNames) and appends the segment to rs.
//
// Missing or inverted markers never fail: the segment is flagged MetadataIncomplete
// and carries no points. A marker past the end of the series is clamped with a
// warning. Starting at ON also fills rs.OnStage, starting at T2 fills rs.RampUp.
// A nil rs yields an incomplete segment.
func (a *Analyzer) AnalyzeSegment(points []float32, markers []Marker, start, end int, rs *RailStats) RailSegmentStats {
	seg := RailSegmentStats{
		FromSignal: stageName(start),
		ToSignal:   stageName(end),
	}
	if rs == nil {
		a.log.Errorf("segment %s-%s: no rail stats to record into", seg.FromSignal, seg.ToSignal)
		seg.MetadataIncomplete = true
		return seg
	}
	log := a.log.WithFields(logrus.Fields{
		"rail":    rs.Rail,
		"segment": seg.FromSignal + "-" + seg.ToSignal,
	})

	if start < 0 || end >= len(StageNames) || start >= end {
		log.Errorf("invalid stage pair %d..%d", start, end)
		seg.MetadataIncomplete = true
		rs.AppendSegment(seg)
		return seg
	}

	var startFrame, endFrame int64
	if start < len(markers) {
		startFrame = markers[start].FrameOffset
	}
	if end < len(markers) {
		endFrame = markers[end].FrameOffset
	}
	if startFrame < a.settings.MinStartFrame || endFrame < 1 || endFrame < startFrame || len(points) == 0 {
		seg.MetadataIncomplete = true
		rs.AppendSegment(seg)
		return seg
	}

	if startFrame < 0 {
		log.Warnf("WARNING!: start frame %d is before the first sample. Clamping.", startFrame)
		startFrame = 0
	}

	n := int64(len(points))
	if endFrame > n {
		log.Warnf("WARNING!: end frame %d is past the last sample (%d), metadata and data are not aligned. Clamping.", endFrame, n)
		endFrame = n
		if startFrame >= endFrame {
			startFrame = endFrame - 1
			log.Warnf("WARNING!: start frame realigned to %d.", startFrame)
		}
	}

	seg.Points = append([]float32(nil), points[startFrame:endFrame]...)
	seg.DurationUs = markers[end].TimeOffsetUs - markers[start].TimeOffsetUs
	seg.DurationFrames = endFrame - startFrame

	sum := Summarize(seg.Points)
	seg.MeanVoltage = sum.Mean
	seg.MaxVoltage = sum.Max
	seg.MinVoltage = sum.Min
	seg.Deviation = sum.Deviation

	if strings.EqualFold(seg.FromSignal, "ON") {
		a.onStage(log, seg, rs)
	}
	if strings.EqualFold(seg.FromSignal, "T2") {
		a.rampUpStage(log, seg, rs)
	}

	rs.AppendSegment(seg)
	return seg
}

func (a *Analyzer) onStage(log logrus.FieldLogger, seg RailSegmentStats, rs *RailStats) {
	if len(seg.Points) == 0 {
		log.Warn("WARNING!: ON stage has no samples, regulation stats skipped.")
		return
	}

	// Absolute band: nominal*tolerance alone is negative on the -12V and -5V rails.
	band := abs32(rs.NominalVoltage * rs.VoltageTolerance)
	var off int
	for _, v := range seg.Points {
		if abs32(v-rs.NominalVoltage) > band {
			off++
		}
	}

	on := OnStageStats{
		OffRegulationPercent: float32(off) / float32(len(seg.Points)),
		DeviationVoltage:     seg.Deviation,
		MeanVoltage:          seg.MeanVoltage,
	}
	on.InRegulationPercent = 1 - on.OffRegulationPercent
	rs.OnStage = Some(on)
}

func (a *Analyzer) rampUpStage(log logrus.FieldLogger, seg RailSegmentStats, rs *RailStats) {
	time := make([]float64, len(seg.Points))
	value := make([]float64, len(seg.Points))
	for i, v := range seg.Points {
		time[i] = float64(i)
		value[i] = float64(v)
	}

	t2 := RampUpStageStats{TimeAxis: time}

	if len(value) < 3 {
		log.Warn("WARNING!: Insufficient data to generate a polynomial curve of the T2 stage. Not enough sampling rate on the board.")
	} else {
		coef, err := fitPolynomial(time, value, 2)
		if err != nil {
			log.WithError(err).Warn("WARNING!: T2 stage polynomial fit failed.")
		} else {
			t2.CurveCoefficients = coef
			t2.Fitness = float32(rSquared(evalPolynomial(coef, time), value))
		}
	}

	if len(value) < 2 {
		log.Warn("WARNING!: Insufficient data to generate a linear regression of the T2 stage. Not enough sampling rate on the board.")
	} else {
		t2.Linear = Some(fitLine(time, value))
	}

	rs.RampUp = Some(t2)
}

func stageName(i int) string {
	if i < 0 || i >= len(StageNames) {
		return ""
	}
	return StageNames[i]
}
