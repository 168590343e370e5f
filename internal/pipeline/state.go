package pipeline

// State is the lifecycle position of a run.
type State int

const (
	StateConfigured State = iota
	StateSetUp
	StateRunning
	StateDraining
	StateFailed
	StateKilling
	StateTornDown
)

func (s State) String() string {
	switch s {
	case StateConfigured:
		return "configured"
	case StateSetUp:
		return "set-up"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateFailed:
		return "failed"
	case StateKilling:
		return "killing"
	case StateTornDown:
		return "torn-down"
	default:
		return "unknown"
	}
}
