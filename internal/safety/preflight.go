package safety

import (
	"fmt"
	"sort"
	"time"
)

const preflightPause = 100 * time.Millisecond

// Preflight exercises every registered servo at three points across its
// soft-limit range (min+5, midpoint, max-5), pausing briefly between
// writes, then returns each servo to its center angle. Any single failed
// sweep write fails that servo and drives the aggregate status to
// "fail"; a failed recenter alone only warns (spec §4.3).
func (s *System) Preflight() *PreflightReport {
	snap := s.registry.Snapshot()

	ids := make([]string, 0, len(snap))
	for id := range snap {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	report := &PreflightReport{
		OverallStatus: "pass",
		ServoChecks:   make(map[string]*PreflightServoResult, len(ids)),
	}

	for i, id := range ids {
		svo := snap[id]
		testAngles := []float64{
			clampFloat(svo.MinDeg+5, svo.MinDeg, svo.MaxDeg),
			svo.Midpoint(),
			clampFloat(svo.MaxDeg-5, svo.MinDeg, svo.MaxDeg),
		}

		result := &PreflightServoResult{ServoID: id, Tests: make(map[float64]bool, len(testAngles))}
		passed := 0
		for j, angle := range testAngles {
			ok := s.writer.DriveAngle(id, angle)
			result.Tests[angle] = ok
			if ok {
				passed++
			} else {
				report.Errors = append(report.Errors, fmt.Sprintf("servo %s failed sweep write at %.1f degrees", id, angle))
			}
			if i < len(ids)-1 || j < len(testAngles)-1 {
				time.Sleep(preflightPause)
			}
		}

		result.Recentered = s.writer.DriveAngle(id, svo.CenterDeg)
		if !result.Recentered {
			report.Warnings = append(report.Warnings, "servo "+id+" failed to recenter during preflight")
		}

		switch {
		case passed < len(testAngles):
			result.Status = "fail"
		case !result.Recentered:
			result.Status = "warning"
		default:
			result.Status = "pass"
		}
		report.ServoChecks[id] = result
	}

	switch {
	case len(report.Errors) > 0:
		report.OverallStatus = "fail"
	case len(report.Warnings) > 0:
		report.OverallStatus = "warning"
	default:
		report.OverallStatus = "pass"
	}
	return report
}
