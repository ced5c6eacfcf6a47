package kernel

import "github.com/tailored-agentic-units/board-assistant/observability"

// Kernel event types emitted to the observer during a run.
const (
	EventRunStart     observability.EventType = "kernel.run.start"
	EventRunComplete  observability.EventType = "kernel.run.complete"
	EventRunFailed    observability.EventType = "kernel.run.failed"
	EventModelCall    observability.EventType = "kernel.model.call"
	EventToolDispatch observability.EventType = "kernel.tool.dispatch"
	EventToolComplete observability.EventType = "kernel.tool.complete"
	EventAssemble     observability.EventType = "kernel.assemble"
)
