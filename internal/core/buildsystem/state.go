package buildsystem

// State is the scheduler's update state.
type State int32

const (
	Idle State = iota
	FullUpdatePending
	PartialUpdatePending
	InProgress
	ShuttingDown
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case FullUpdatePending:
		return "full_update_pending"
	case PartialUpdatePending:
		return "partial_update_pending"
	case InProgress:
		return "in_progress"
	case ShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

// Delay selects between an immediate parse and the debounced one.
type Delay int

const (
	ParseNow Delay = iota
	ParseLater
)

func (d Delay) String() string {
	if d == ParseLater {
		return "later"
	}
	return "now"
}
