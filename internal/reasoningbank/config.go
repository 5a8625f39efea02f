package reasoningbank

import "time"

// Config enumerates the tunables named in §6/§4.4 of the specification.
// Callers start from DefaultConfig() and override fields; zero values are
// used as given, not replaced by defaults.
type Config struct {
	MATTSParallelEnabled    bool
	MATTSSequentialEnabled  bool
	MATTSParallelVariants   int
	MATTSSequentialMaxIter  int
	EmbeddingDim            int
	LowQualityThreshold     float64
	MinRetrievalsForPrune   int
	DupSimilarityThreshold  float64
	StaleDays               int
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		MATTSParallelEnabled:   true,
		MATTSSequentialEnabled: true,
		MATTSParallelVariants:  3,
		MATTSSequentialMaxIter: 3,
		EmbeddingDim:           768,
		LowQualityThreshold:    0.30,
		MinRetrievalsForPrune:  10,
		DupSimilarityThreshold: 0.95,
		StaleDays:              90,
	}
}

// staleDuration converts StaleDays to a time.Duration for use against
// time.Now().Sub(...).
func (c Config) staleDuration() time.Duration {
	return time.Duration(c.StaleDays) * 24 * time.Hour
}
