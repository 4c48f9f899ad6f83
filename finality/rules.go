package finality

import (
	"errors"
	"time"
)

// Rules are the finality thresholds and the checkpoint cadence.
type Rules struct {
	SoftThreshold   uint64
	MediumThreshold uint64
	HardThreshold   uint64

	// CheckpointInterval is the wall-clock span of one checkpoint.
	CheckpointInterval time.Duration
	// CheckpointsPerBoundary is how many checkpoints one UTC boundary
	// contributes.
	CheckpointsPerBoundary uint64
}

// DefaultRules returns thresholds of 1, 100 and 1000 checkpoints with one
// checkpoint per minute boundary.
func DefaultRules() Rules {
	return Rules{
		SoftThreshold:          1,
		MediumThreshold:        100,
		HardThreshold:          1000,
		CheckpointInterval:     time.Minute,
		CheckpointsPerBoundary: 1,
	}
}

// FakeRules keeps the production thresholds but shortens the cadence.
func FakeRules() Rules {
	cfg := DefaultRules()
	cfg.CheckpointInterval = time.Second
	return cfg
}

// Validate checks that thresholds are positive and strictly ordered.
func (r Rules) Validate() error {
	if r.SoftThreshold == 0 {
		return errors.New("soft finality threshold must be positive")
	}
	if !(r.SoftThreshold < r.MediumThreshold && r.MediumThreshold < r.HardThreshold) {
		return errors.New("finality thresholds must be strictly increasing")
	}
	if r.CheckpointsPerBoundary == 0 {
		return errors.New("zero checkpoints per boundary")
	}
	return nil
}

// Level classifies a checkpoint count.
func (r Rules) Level(checkpoints uint64) Level {
	switch {
	case checkpoints >= r.HardThreshold:
		return Hard
	case checkpoints >= r.MediumThreshold:
		return Medium
	case checkpoints >= r.SoftThreshold:
		return Soft
	}
	return None
}

// Threshold returns the checkpoints needed to reach level.
func (r Rules) Threshold(level Level) uint64 {
	switch level {
	case Soft:
		return r.SoftThreshold
	case Medium:
		return r.MediumThreshold
	case Hard:
		return r.HardThreshold
	}
	return 0
}

// CheckpointsForBoundaries converts passed UTC boundaries to checkpoints.
func (r Rules) CheckpointsForBoundaries(boundaries uint64) uint64 {
	return boundaries * r.CheckpointsPerBoundary
}

// BoundariesToLevel is the finality reached after the given UTC boundaries.
func (r Rules) BoundariesToLevel(boundaries uint64) Level {
	return r.Level(r.CheckpointsForBoundaries(boundaries))
}

// TimeToLevel is the minimal wall-clock time for a fresh block to reach level.
func (r Rules) TimeToLevel(level Level) time.Duration {
	return time.Duration(r.Threshold(level)) * r.CheckpointInterval
}
