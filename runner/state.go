package runner

// State is the position of the worker loop in its cycle.
type State int32

const (
	StateIdle State = iota
	StatePolling
	StateBatchRunning
	StateScoring
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateBatchRunning:
		return "batch_running"
	case StateScoring:
		return "scoring"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// lifecycle of a Worker instance
const (
	statusInit = iota
	statusStarting
	statusStarted
	statusStopped
)
