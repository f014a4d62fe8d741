package engine

import (
	"encoding/json"
	"fmt"
)

// Outcome is the observable result of one orchestrator invocation.
type Outcome string

const (
	// OutcomeApplied indicates exactly one step executed and was confirmed.
	OutcomeApplied Outcome = "applied"

	// OutcomeFailed indicates the first incomplete step failed.
	OutcomeFailed Outcome = "failed"

	// OutcomeComplete indicates every step was already satisfied.
	OutcomeComplete Outcome = "complete"
)

// IsSuccess returns true if the invocation did not fail.
func (o Outcome) IsSuccess() bool {
	return o == OutcomeApplied || o == OutcomeComplete
}

// Validate checks if the outcome is valid.
func (o Outcome) Validate() error {
	switch o {
	case OutcomeApplied, OutcomeFailed, OutcomeComplete:
		return nil
	default:
		return fmt.Errorf("invalid outcome: %s", o)
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (o Outcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(o))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (o *Outcome) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*o = Outcome(str)
	return o.Validate()
}

// StepKind is the action a step performs.
type StepKind string

const (
	// StepKindDeploy deploys a contract without constructor arguments.
	StepKindDeploy StepKind = "deploy"

	// StepKindDeployProxy deploys an admin-upgradeable proxy in front of a logic contract.
	StepKindDeployProxy StepKind = "deploy-proxy"

	// StepKindInitialize calls the initializer of a proxied contract.
	StepKindInitialize StepKind = "initialize"

	// StepKindSetter calls a post-initialization setter.
	StepKindSetter StepKind = "setter"

	// StepKindConfigure resolves a value through a read-only query, then calls a method.
	StepKindConfigure StepKind = "configure"
)

// IsDeployment returns true if the step creates a contract.
func (k StepKind) IsDeployment() bool {
	return k == StepKindDeploy || k == StepKindDeployProxy
}

// Validate checks if the step kind is valid.
func (k StepKind) Validate() error {
	switch k {
	case StepKindDeploy, StepKindDeployProxy, StepKindInitialize, StepKindSetter, StepKindConfigure:
		return nil
	default:
		return fmt.Errorf("invalid step kind: %s", k)
	}
}

// StepState is the position of a step relative to a record.
type StepState string

const (
	// StepStateDone indicates the completion predicate holds.
	StepStateDone StepState = "done"

	// StepStateNext indicates the step is the resume point.
	StepStateNext StepState = "next"

	// StepStatePending indicates the step waits behind the resume point.
	StepStatePending StepState = "pending"
)

// EventType represents the type of event in the run timeline.
type EventType string

const (
	EventTypeRunStarted    EventType = "run_started"
	EventTypeRunCompleted  EventType = "run_completed"
	EventTypeRunFailed     EventType = "run_failed"
	EventTypeStepSkipped   EventType = "step_skipped"
	EventTypeStepStarted   EventType = "step_started"
	EventTypeStepSubmitted EventType = "step_submitted"
	EventTypeStepSucceeded EventType = "step_succeeded"
	EventTypeStepFailed    EventType = "step_failed"
)

// Severity returns the severity level of the event type.
func (e EventType) Severity() string {
	switch e {
	case EventTypeRunFailed, EventTypeStepFailed:
		return "error"
	case EventTypeStepSkipped:
		return "debug"
	default:
		return "info"
	}
}
