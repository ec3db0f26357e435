package engine

// State is the lifecycle state of the game loop
type State int32

const (
	StateStopped State = iota
	StateRunning
	StatePaused
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateRunning:
		return "Running"
	case StatePaused:
		return "Paused"
	default:
		return "Unknown"
	}
}
