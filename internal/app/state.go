package app

// State is the orchestrator pipeline state.
type State int32

const (
	StateIdle State = iota
	StatePushing
	StatePulling
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePushing:
		return "pushing"
	case StatePulling:
		return "pulling"
	case StateError:
		return "error"
	}
	return "unknown"
}
