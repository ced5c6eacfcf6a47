package kernel

// State is a node of the agent loop state machine:
//
//	Idle → Loading → {StreamingText | RequestingTool} → (ToolExecuting → RequestingTool | Loading)* → Complete | Failed
type State string

const (
	StateIdle           State = "Idle"
	StateLoading        State = "Loading"
	StateStreamingText  State = "StreamingText"
	StateRequestingTool State = "RequestingTool"
	StateToolExecuting  State = "ToolExecuting"
	StateComplete       State = "Complete"
	StateFailed         State = "Failed"
)

// Terminal reports whether s ends a run.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed
}
