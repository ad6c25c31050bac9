package config

import (
	"time"
)

type SweepConfig struct {
	// Interval between automatic stale-operation sweeps, zero disables the engine
	Interval time.Duration
	// StaleAfter is the age after which a non-terminal operation is failed by a sweep
	StaleAfter time.Duration
	// PurgeAfter is how long finished operations are kept; zero disables purging in sweeps
	PurgeAfter time.Duration
}

func NewSweepConfig() *SweepConfig {
	return &SweepConfig{
		Interval:   getSecondsEnv("SWEEP_INTERVAL_SEC", 0),
		StaleAfter: getSecondsEnv("SWEEP_STALE_AFTER_SEC", 6*60*60),
		PurgeAfter: getSecondsEnv("SWEEP_PURGE_AFTER_SEC", 7*24*60*60),
	}
}
