// Package publicsign models the public signing flow as the signer sees it.
//
// The flow is a state machine observed from the client:
//
//	code --> identity --> fields --> complete
//
// with error reachable from every step. The session only ever moves to a
// step it has observed on the page, and every observed transition is checked
// against the allowed table, so a page that skips identity or returns to the
// code step after verification fails loudly.
package publicsign

import (
	"fmt"
	"slices"
)

// Step is a client-observed step of the signing flow.
type Step string

const (
	// StepNone is the step before the link has been opened.
	StepNone     Step = ""
	StepCode     Step = "code"
	StepIdentity Step = "identity"
	StepFields   Step = "fields"
	StepComplete Step = "complete"
	StepError    Step = "error"
)

func (s Step) String() string {
	if s == StepNone {
		return "none"
	}
	return string(s)
}

// Terminal reports whether nothing follows the step.
func (s Step) Terminal() bool { return s == StepComplete || s == StepError }

var transitions = map[Step][]Step{
	StepNone:     {StepCode, StepError},
	StepCode:     {StepCode, StepIdentity, StepError},
	StepIdentity: {StepIdentity, StepFields, StepError},
	StepFields:   {StepFields, StepComplete, StepError},
	StepComplete: {StepComplete},
	StepError:    {StepError},
}

// Allowed reports whether the flow may move from one step to another.
func Allowed(from, to Step) bool {
	return slices.Contains(transitions[from], to)
}

// TransitionError is an observed transition the flow does not allow.
type TransitionError struct {
	From Step
	To   Step
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal signing transition %s -> %s", e.From, e.To)
}
