package engine

import "time"

//go:generate mockgen -destination=mock/mock_time_provider.go -package=mockengine -source=time_provider.go TimeProvider

// TimeProvider supplies the clock used for frame timing
type TimeProvider interface {
	Now() time.Time
}

// RealTimeProvider reads the wall clock
type RealTimeProvider struct{}

// Now returns time.Now()
func (RealTimeProvider) Now() time.Time {
	return time.Now()
}
