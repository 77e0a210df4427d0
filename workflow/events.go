package workflow

import "github.com/tailored-agentic-units/workflow/observability"

const (
	EventMarkingInitialize observability.EventType = "marking.initialize"
	EventTransitionApply   observability.EventType = "transition.apply"
	EventTransitionBlocked observability.EventType = "transition.blocked"
	EventTransitionDone    observability.EventType = "transition.complete"
)
