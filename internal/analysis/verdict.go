package analysis

import (
	"fmt"
	"math"
)

// Outcome of a pass/fail check.
type Outcome int

const (
	NotJudged Outcome = iota
	Pass
	Fail
)

func (o Outcome) String() string {
	switch o {
	case Pass:
		return "PASS"
	case Fail:
		return "FAIL"
	default:
		return "NOT JUDGED"
	}
}

// VerdictSettings holds the limits a supply has to meet.
type VerdictSettings struct {
	MinInRegulation float32 // fraction of ON samples inside the tolerance band
	MinRampFitness  float32 // 0 disables the T2 fitness check
	PgOkMinUs       int64
	PgOkMaxUs       int64 // 0 disables the upper bound
}

// RailVerdict is the judgement of one rail.
type RailVerdict struct {
	Rail    Rail
	Outcome Outcome
	Reasons []string
}

// Verdict is the judgement of a whole run.
type Verdict struct {
	Outcome Outcome
	PgOk    Outcome
	Rails   []RailVerdict
	Reasons []string
}

// Judge grades a report. Checks without data are skipped rather than failed.
func Judge(r *AnalysisReport, vs VerdictSettings) Verdict {
	v := Verdict{Rails: make([]RailVerdict, 0, len(r.Rails))}

	for i := range r.Rails {
		rv := judgeRail(&r.Rails[i], vs)
		v.Rails = append(v.Rails, rv)
		for _, reason := range rv.Reasons {
			v.Reasons = append(v.Reasons, fmt.Sprintf("%s: %s", rv.Rail, reason))
		}
	}

	if delay, ok := r.PgOkDelayUs.Get(); ok {
		v.PgOk = Pass
		if delay < vs.PgOkMinUs || (vs.PgOkMaxUs > 0 && delay > vs.PgOkMaxUs) {
			v.PgOk = Fail
			v.Reasons = append(v.Reasons, fmt.Sprintf("PG_OK delay %dus outside [%d, %d]us", delay, vs.PgOkMinUs, vs.PgOkMaxUs))
		}
	} else if len(r.Markers) > 0 {
		v.Reasons = append(v.Reasons, "PG_OK delay not measured: T1 or ON marker missing")
	}

	outcomes := []Outcome{v.PgOk}
	for _, rv := range v.Rails {
		outcomes = append(outcomes, rv.Outcome)
	}
	v.Outcome = combine(outcomes...)
	return v
}

func judgeRail(rs *RailStats, vs VerdictSettings) RailVerdict {
	rv := RailVerdict{Rail: rs.Rail}
	if rs.Failed() {
		rv.Reasons = append(rv.Reasons, "analysis failed: "+rs.Err)
		return rv
	}

	on, onOK := rs.OnStage.Get()
	onOutcome := NotJudged
	if onOK {
		onOutcome = Pass
		if on.InRegulationPercent < vs.MinInRegulation {
			onOutcome = Fail
			rv.Reasons = append(rv.Reasons, fmt.Sprintf("%.1f%% of ON samples in regulation, need %.1f%%",
				on.InRegulationPercent*100, vs.MinInRegulation*100))
		}
	}

	rampOutcome := NotJudged
	if ramp, ok := rs.RampUp.Get(); ok && vs.MinRampFitness > 0 && len(ramp.CurveCoefficients) > 0 {
		rampOutcome = Pass
		if math.IsNaN(float64(ramp.Fitness)) || ramp.Fitness < vs.MinRampFitness {
			rampOutcome = Fail
			rv.Reasons = append(rv.Reasons, fmt.Sprintf("T2 ramp fitness %.3f below %.3f", ramp.Fitness, vs.MinRampFitness))
		}
	}

	rv.Outcome = combine(onOutcome, rampOutcome)
	return rv
}

func combine(outcomes ...Outcome) Outcome {
	res := NotJudged
	for _, o := range outcomes {
		switch o {
		case Fail:
			return Fail
		case Pass:
			res = Pass
		}
	}
	return res
}
