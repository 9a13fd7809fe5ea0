package report

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/user/atx_analyzer_go/internal/analysis"
)

// WriteSummary prints a per-rail table, the segment durations and the verdict.
func WriteSummary(w io.Writer, r *analysis.AnalysisReport, v *analysis.Verdict) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "RAIL\tNOMINAL\tMEAN\tMIN\tMAX\tPEAKS\tEDGES\tIN REG\tT2 SLOPE\tT2 FIT\t")
	for i := range r.Rails {
		rs := &r.Rails[i]
		if rs.Failed() {
			fmt.Fprintf(tw, "%s\t%.2f\tERROR: %s\t\t\t\t\t\t\t\t\n", rs.Rail, rs.NominalVoltage, rs.Err)
			continue
		}
		inReg, slope, fit := "-", "-", "-"
		if on, ok := rs.OnStage.Get(); ok {
			inReg = fmt.Sprintf("%.1f%%", on.InRegulationPercent*100)
		}
		if ramp, ok := rs.RampUp.Get(); ok {
			if line, ok := ramp.Linear.Get(); ok {
				slope = fmt.Sprintf("%.4f", line.Slope)
			}
			if len(ramp.CurveCoefficients) > 0 {
				fit = fmt.Sprintf("%.4f", ramp.Fitness)
			}
		}
		fmt.Fprintf(tw, "%s\t%.2f\t%.3f\t%.3f\t%.3f\t%d\t%d\t%s\t%s\t%s\t\n",
			rs.Rail, rs.NominalVoltage, rs.MeanVoltage, rs.MinVoltage, rs.MaxVoltage,
			len(rs.Peaks), len(rs.Edges), inReg, slope, fit)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(r.Markers) > 0 {
		fmt.Fprintln(w)
		if err := writeSegments(w, r); err != nil {
			return err
		}
	}

	fmt.Fprintln(w)
	if r.LastStageRecorded != "" {
		fmt.Fprintf(w, "Last stage recorded: %s\n", r.LastStageRecorded)
	}
	if delay, ok := r.PgOkDelayUs.Get(); ok {
		fmt.Fprintf(w, "PG_OK delay: %.1f ms\n", float64(delay)/1000)
	}
	if v == nil {
		return nil
	}
	fmt.Fprintf(w, "Verdict: %s\n", v.Outcome)
	for _, reason := range v.Reasons {
		fmt.Fprintf(w, "  - %s\n", reason)
	}
	return nil
}

// writeSegments prints one row per stage pair, durations taken from the first
// rail that has segments.
func writeSegments(w io.Writer, r *analysis.AnalysisReport) error {
	var segs []analysis.RailSegmentStats
	for i := range r.Rails {
		if len(r.Rails[i].Segments) > 0 {
			segs = r.Rails[i].Segments
			break
		}
	}
	if len(segs) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEGMENT\tFRAMES\tDURATION\t")
	for _, seg := range segs {
		name := seg.FromSignal + " -> " + seg.ToSignal
		if seg.MetadataIncomplete {
			fmt.Fprintf(tw, "%s\t-\tincomplete\t\n", name)
			continue
		}
		fmt.Fprintf(tw, "%s\t%d\t%.1f ms\t\n", name, seg.DurationFrames, float64(seg.DurationUs)/1000)
	}
	return tw.Flush()
}
