package lifecycle

import "fmt"

// State is a lifecycle state of the host.
type State int32

const (
	Created State = iota
	Configuring
	Starting
	Running
	Stopping
	Stopped
	Failed
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Configuring:
		return "configuring"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// transitions lists the allowed successor states.
var transitions = map[State][]State{
	Created:     {Configuring, Failed},
	Configuring: {Starting, Failed},
	Starting:    {Running, Failed},
	Running:     {Stopping},
	Stopping:    {Stopped},
}

// CanTransition reports whether from → to is allowed.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Stopped || s == Failed
}
