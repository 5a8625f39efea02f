package reasoningbank

// Score implements TrajectoryScorer: a pure, deterministic function of a
// TrajectoryResult in [0,1]. Used verbatim by both MaTTS strategies.
func Score(result *TrajectoryResult) float64 {
	if result == nil || !result.Success {
		return 0
	}
	s := 0.5
	if result.Steps != nil && *result.Steps < 10 {
		s += 0.2
	}
	if result.ExecutionTime != nil && *result.ExecutionTime < 5000 {
		s += 0.1
	}
	if len(result.OutputData) > 5 {
		s += 0.1
	}
	if len(result.HTMLReport) > 1000 {
		s += 0.1
	}
	if s > 1.0 {
		s = 1.0
	}
	return s
}
