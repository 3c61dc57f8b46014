package syncengine

// State is the engine's position in the sync state machine.
type State int32

// Engine states. A cycle moves IDLE -> PULLING -> MERGING -> PUSHING ->
// RECONCILED | FAILED and always ends back in IDLE.
const (
	StateIdle State = iota
	StatePulling
	StateMerging
	StatePushing
	StateReconciled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StatePulling:
		return "PULLING"
	case StateMerging:
		return "MERGING"
	case StatePushing:
		return "PUSHING"
	case StateReconciled:
		return "RECONCILED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}
