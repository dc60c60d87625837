package preset

import (
	"math"
	"math/rand"
	"time"
)

// sineWave is Sine: a centered sinusoid at Frequency*Rate Hz.
func sineWave(p Params, phaseOffset, elapsed float64) float64 {
	phase := p.Phase + phaseOffset
	offset := math.Sin((2*math.Pi*elapsed*p.Frequency*p.Rate)+phase)
	return p.Center + offset*p.Depth
}

// pingPong is PingPong: linear travel between MinAngle and MaxAngle and
// back, one full cycle every 2/Rate seconds.
func pingPong(p Params, elapsed float64) float64 {
	cycle := 2.0 / p.Rate
	t := math.Mod(elapsed, cycle) / cycle

	var progress float64
	if t < 0.5 {
		progress = t * 2
	} else {
		progress = (1.0 - t) * 2
	}
	return p.MinAngle + progress*(p.MaxAngle-p.MinAngle)
}

// bounce is Bounce: PingPong's range with a quadratic ease applied to
// each half-cycle.
func bounce(p Params, elapsed float64) float64 {
	cycle := 2.0 / p.Rate
	t := math.Mod(elapsed, cycle) / cycle

	var progress float64
	if t < 0.5 {
		progress = 2 * t * t
	} else {
		tt := 1 - t
		progress = 1 - (2 * tt * tt)
	}
	return p.MinAngle + progress*(p.MaxAngle-p.MinAngle)
}

// randomWalk is RandomWalk: a velocity-damped random walk bounded to
// [MinAngle, MaxAngle], reflecting off either boundary.
func randomWalk(p Params, st *randomWalkState, dt float64) float64 {
	sigma := p.StepSize * dt
	velocityChange := st.rng.NormFloat64() * sigma
	st.velocity = st.velocity*p.Coherence + velocityChange

	maxVelocity := p.StepSize * 10
	if st.velocity > maxVelocity {
		st.velocity = maxVelocity
	} else if st.velocity < -maxVelocity {
		st.velocity = -maxVelocity
	}

	st.position += st.velocity * dt * p.Rate

	if st.position < p.MinAngle {
		st.position = p.MinAngle
		st.velocity = math.Abs(st.velocity)
	} else if st.position > p.MaxAngle {
		st.position = p.MaxAngle
		st.velocity = -math.Abs(st.velocity)
	}
	return st.position
}

// bezierPath is BezierPath: a cubic Bezier over ControlPoints (each
// fraction of [MinAngle, MaxAngle]), traversed once every 4/Rate
// seconds, looping or clamping at t=1 per Params.Loop.
func bezierPath(p Params, elapsed float64) float64 {
	cycle := 4.0 / p.Rate
	var t float64
	if p.Loop {
		t = math.Mod(elapsed, cycle) / cycle
	} else {
		t = math.Min(1.0, elapsed/cycle)
	}

	cp := p.ControlPoints
	if len(cp) < 4 {
		return p.Center
	}
	span := p.MaxAngle - p.MinAngle
	p0 := p.MinAngle + cp[0]*span
	p1 := p.MinAngle + cp[1]*span
	p2 := p.MinAngle + cp[2]*span
	p3 := p.MinAngle + cp[3]*span

	invT := 1 - t
	return invT*invT*invT*p0 +
		3*invT*invT*t*p1 +
		3*invT*t*t*p2 +
		t*t*t*p3
}

// stepSequence is Step: holds each Sequence value for HoldTime/Rate
// seconds before advancing, wrapping at the end.
func stepSequence(p Params, st *stepState) float64 {
	now := time.Now()
	last := time.Unix(0, st.lastStepTime)
	if now.Sub(last).Seconds() >= p.HoldTime/p.Rate {
		st.index = (st.index + 1) % len(p.Sequence)
		st.lastStepTime = now.UnixNano()
	}
	return p.Sequence[st.index]
}

// ripple is Ripple: a sine wave whose phase is delayed per target
// (phaseOffset, seeded 0.5s apart at creation) and whose amplitude
// decays with that same offset.
func ripple(p Params, phaseOffset, elapsed float64) float64 {
	wavePhase := (elapsed * p.WaveSpeed * p.Rate) - phaseOffset
	distanceDecay := math.Exp(-phaseOffset * p.Decay)
	wave := math.Sin(wavePhase*2*math.Pi) * distanceDecay
	return p.Center + wave*p.Depth
}

// swarm is Swarm: two summed sine waves per target, each target's
// frequency perturbed by its own random phase offset so a group of
// targets drifts in and out of sync.
func swarm(p Params, phaseOffset, elapsed float64) float64 {
	freqVariation := 1.0 + (phaseOffset/(2*math.Pi))*0.3
	primary := math.Sin(elapsed * p.Frequency * freqVariation * p.Rate)
	secondary := 0.3 * math.Sin(elapsed*p.Frequency*freqVariation*3*p.Rate+phaseOffset)
	combined := primary + secondary
	return p.Center + combined*p.Depth*0.7
}

// breath is Breath: an inhale/hold/exhale/hold cycle with quadratic
// easing on the inhale and exhale legs.
func breath(p Params, elapsed float64) float64 {
	cycle := (p.InhaleTime + p.ExhaleTime + 2*p.HoldTimeBreath) / p.Rate
	t := math.Mod(elapsed, cycle) * p.Rate

	var progress float64
	switch {
	case t < p.InhaleTime:
		progress = t / p.InhaleTime
		progress = progress * progress
	case t < p.InhaleTime+p.HoldTimeBreath:
		progress = 1.0
	case t < p.InhaleTime+p.HoldTimeBreath+p.ExhaleTime:
		exhaleStart := p.InhaleTime + p.HoldTimeBreath
		progress = 1.0 - ((t - exhaleStart) / p.ExhaleTime)
		progress = 1.0 - ((1.0 - progress) * (1.0 - progress))
	default:
		progress = 0.0
	}
	return p.Center + (progress-0.5)*p.Depth*2
}

// twitch is Twitch: holds near Center, occasionally snapping to a
// random offset scaled by Intensity, then easing 10%/tick back toward
// Center until the next scheduled twitch.
func twitch(p Params, st *twitchState, current float64) float64 {
	now := time.Now()
	if now.UnixNano() >= st.nextTwitch {
		amplitude := randRange(-p.Depth, p.Depth) * p.Intensity
		target := p.Center + amplitude

		interval := randRange(p.IntervalMin, p.IntervalMax)
		st.nextTwitch = now.Add(time.Duration((interval / p.Rate) * float64(time.Second))).UnixNano()
		return target
	}
	pull := (p.Center - current) * 0.1
	return current + pull
}

// glitch is Glitch: a sine base with a small, rate-scaled chance of an
// additive random spike each update.
func glitch(p Params, elapsed float64) float64 {
	base := math.Sin(elapsed * p.Frequency * p.Rate)

	var spike float64
	if rand.Float64() < 0.05*p.Rate {
		spike = randRange(-1, 1) * p.Intensity
	}
	return p.Center + (base+spike)*p.Depth
}
