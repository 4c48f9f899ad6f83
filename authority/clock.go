package authority

import (
	"time"
)

// TimeSample is one external clock reading, as an offset from the local clock.
type TimeSample struct {
	Source     string
	Offset     time.Duration
	Confidence float64
}

// ClockConsensus returns the confidence-weighted offset of samples and
// whether at least MinTimeSources distinct sources agree with it within
// MaxClockDrift. Samples with non-positive confidence are ignored.
func ClockConsensus(samples []TimeSample, rules Rules) (time.Duration, bool) {
	var sum, weight float64
	for _, s := range samples {
		if s.Confidence <= 0 {
			continue
		}
		sum += float64(s.Offset) * s.Confidence
		weight += s.Confidence
	}
	if weight == 0 {
		return 0, false
	}
	offset := time.Duration(sum / weight)

	agreeing := make(map[string]struct{})
	for _, s := range samples {
		if s.Confidence <= 0 {
			continue
		}
		drift := s.Offset - offset
		if drift < 0 {
			drift = -drift
		}
		if drift <= rules.MaxClockDrift {
			agreeing[s.Source] = struct{}{}
		}
	}
	return offset, len(agreeing) >= rules.MinTimeSources
}
