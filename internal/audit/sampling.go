package audit

import "math/rand/v2"

// SamplingConfig controls audit log sampling rates.
type SamplingConfig struct {
	Rate      float64 // successful turns (0.0-1.0)
	ErrorRate float64 // failed or rejected turns (0.0-1.0)
}

// ShouldLog determines if an entry should be logged based on its status.
// Failed and rejected entries use ErrorRate, everything else uses Rate.
func (s SamplingConfig) ShouldLog(status string) bool {
	switch status {
	case StatusRejected, StatusError:
		return s.ErrorRate >= 1.0 || rand.Float64() < s.ErrorRate
	default:
		return s.Rate >= 1.0 || rand.Float64() < s.Rate
	}
}
