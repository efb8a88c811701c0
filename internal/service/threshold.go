package service

import (
	"fmt"

	"github.com/opswatch/alert-engine/internal/domain/model"
)

// criticalOvershootRatio is how far past a bound a reading must land,
// relative to the bound's magnitude, before the breach is CRITICAL.
const criticalOvershootRatio = 0.10

// ThresholdBreach is the outcome of evaluating a reading against its
// configured range. Producers feed breaches into IngressService.Raise.
type ThresholdBreach struct {
	IsAlert  bool
	Severity model.AlertSeverity
	Message  string
}

// ThresholdInput describes one reading and its allowed range.
type ThresholdInput struct {
	Metric string
	Value  float64
	Min    float64
	Max    float64
	Unit   string
}

// EvaluateThreshold compares a reading against its range. In-range readings
// yield a zero breach. A reading more than 10% past the violated bound is
// CRITICAL, anything else out of range is HIGH.
func EvaluateThreshold(in ThresholdInput) ThresholdBreach {
	switch {
	case in.Value > in.Max:
		return ThresholdBreach{
			IsAlert:  true,
			Severity: overshootSeverity(in.Value-in.Max, in.Max),
			Message:  formatBreach(in, "exceeds max", in.Max),
		}
	case in.Value < in.Min:
		return ThresholdBreach{
			IsAlert:  true,
			Severity: overshootSeverity(in.Min-in.Value, in.Min),
			Message:  formatBreach(in, "below min", in.Min),
		}
	default:
		return ThresholdBreach{}
	}
}

func overshootSeverity(overshoot, bound float64) model.AlertSeverity {
	if bound < 0 {
		bound = -bound
	}
	if bound == 0 || overshoot > bound*criticalOvershootRatio {
		return model.AlertSeverityCritical
	}
	return model.AlertSeverityHigh
}

func formatBreach(in ThresholdInput, direction string, bound float64) string {
	if in.Unit != "" {
		return fmt.Sprintf("%s %g%s %s %g%s", in.Metric, in.Value, in.Unit, direction, bound, in.Unit)
	}
	return fmt.Sprintf("%s %g %s %g", in.Metric, in.Value, direction, bound)
}
