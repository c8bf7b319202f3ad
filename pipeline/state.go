package pipeline

// State is the stage a cycle is in.
type State int32

// The orchestrator moves through these states in order every cycle and returns to
// StateIdle when the cycle ends, however it ends.
const (
	StateIdle State = iota
	StateLoading
	StateStaging
	StateInferring
	StateTransforming
	StatePublishing
)

var stateNames = [...]string{
	StateIdle:         "IDLE",
	StateLoading:      "LOADING",
	StateStaging:      "STAGING",
	StateInferring:    "INFERRING",
	StateTransforming: "TRANSFORMING",
	StatePublishing:   "PUBLISHING",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// StateHook is called on every state change of a cycle, from the goroutine running it.
type StateHook func(cycle string, from, to State)
