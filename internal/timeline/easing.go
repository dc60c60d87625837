package timeline

import "math"

func linear(t float64) float64 { return t }

func easeInQuad(t float64) float64  { return t * t }
func easeOutQuad(t float64) float64 { return t * (2 - t) }
func easeInOutQuad(t float64) float64 {
	if t < 0.5 {
		return 2 * t * t
	}
	return -1 + (4-2*t)*t
}

func easeInCubic(t float64) float64 { return t * t * t }
func easeOutCubic(t float64) float64 {
	t -= 1
	return t*t*t + 1
}
func easeInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	t -= 1
	return 1 + t*(2*t)*(2*t)
}

func bounceOut(t float64) float64 {
	switch {
	case t < 1/2.75:
		return 7.5625 * t * t
	case t < 2/2.75:
		t -= 1.5 / 2.75
		return 7.5625*t*t + 0.75
	case t < 2.5/2.75:
		t -= 2.25 / 2.75
		return 7.5625*t*t + 0.9375
	default:
		t -= 2.625 / 2.75
		return 7.5625*t*t + 0.984375
	}
}

func elasticOut(t float64) float64 {
	if t == 0 || t == 1 {
		return t
	}
	return math.Pow(2, -10*t)*math.Sin((t-0.1)*5*math.Pi) + 1
}

// cubicBezierEase is kept as the original's literal, non-parametric
// simplification: it treats t as the Bezier parameter directly rather
// than solving for the parameter whose X matches t, so cp1.X/cp2.X are
// effectively unused. A decision to keep rather than "fix" (see
// DESIGN.md open questions).
func cubicBezierEase(t float64, cp1, cp2 Point2D) float64 {
	inv := 1 - t
	return inv*inv*inv*0 + 3*inv*inv*t*cp1.Y + 3*inv*t*t*cp2.Y + t*t*t*1
}

// applyEasing clamps t to [0,1] and dispatches to the curve named by
// ease, blending quad/cubic variants by tension for EaseIn/Out/InOut
// (spec §4.5).
func applyEasing(ease Ease, t, tension float64, cp1, cp2 Point2D) float64 {
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}

	switch ease {
	case Linear:
		return linear(t)
	case EaseIn:
		return easeInQuad(t)*(1-tension) + easeInCubic(t)*tension
	case EaseOut:
		return easeOutQuad(t)*(1-tension) + easeOutCubic(t)*tension
	case EaseInOut:
		return easeInOutQuad(t)*(1-tension) + easeInOutCubic(t)*tension
	case Bounce:
		return bounceOut(t)
	case Elastic:
		return elasticOut(t)
	case CubicBezier:
		return cubicBezierEase(t, cp1, cp2)
	default:
		return linear(t)
	}
}
