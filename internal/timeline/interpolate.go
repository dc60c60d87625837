package timeline

// interpolateTrackValue returns a track's value at timeMS given its
// keyframes, or (0, false) if there are none. Before the first keyframe
// and after the last, the boundary value holds (spec §4.5, §8
// invariant 6). Easing is attributed to the destination keyframe (kf2),
// matching AddKeyframe's convention of storing the ease that describes
// arrival at that keyframe. Takes a plain slice (not *Track) so callers
// can interpolate over a lock-free snapshot.
func interpolateTrackValue(keyframes []Keyframe, timeMS float64) (float64, bool) {
	if len(keyframes) == 0 {
		return 0, false
	}
	if timeMS <= keyframes[0].TimeMS {
		return keyframes[0].Value, true
	}
	last := keyframes[len(keyframes)-1]
	if timeMS >= last.TimeMS {
		return last.Value, true
	}

	for i := 0; i < len(keyframes)-1; i++ {
		kf1 := keyframes[i]
		kf2 := keyframes[i+1]
		if kf1.TimeMS <= timeMS && timeMS <= kf2.TimeMS {
			if kf2.TimeMS == kf1.TimeMS {
				return kf2.Value, true
			}
			timeRatio := (timeMS - kf1.TimeMS) / (kf2.TimeMS - kf1.TimeMS)
			eased := applyEasing(kf2.Ease, timeRatio, kf2.Tension, kf2.BezierCP1, kf2.BezierCP2)
			return kf1.Value + (kf2.Value-kf1.Value)*eased, true
		}
	}
	return 0, false
}
