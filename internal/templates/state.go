// Package templates models authoring an agreement template in the editor.
//
// The editor is a state machine:
//
//	no-template --Create--> document-scope <--> signatory-scope(i) --Save--> saved
//
// Fields land in the current scope on the current page. Saved is terminal;
// Reopen starts a new editing session on an existing template.
package templates

import "fmt"

// State is the authoring state.
type State int

const (
	StateNoTemplate State = iota
	StateDocumentScope
	StateSignatoryScope
	StateSaved
)

func (s State) String() string {
	switch s {
	case StateNoTemplate:
		return "no-template"
	case StateDocumentScope:
		return "document-scope"
	case StateSignatoryScope:
		return "signatory-scope"
	case StateSaved:
		return "saved"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Editing reports whether fields and roles can be added.
func (s State) Editing() bool {
	return s == StateDocumentScope || s == StateSignatoryScope
}

// TransitionError is returned for an action that is illegal in the current
// state.
type TransitionError struct {
	Action string
	From   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s in state %s", e.Action, e.From)
}

// allowed lists the states each action may start from.
var allowed = map[string][]State{
	"create":                 {StateNoTemplate},
	"reopen":                 {StateNoTemplate, StateSaved},
	"select document fields": {StateDocumentScope, StateSignatoryScope},
	"add signatory":          {StateDocumentScope, StateSignatoryScope},
	"select signatory":       {StateDocumentScope, StateSignatoryScope},
	"add field":              {StateDocumentScope, StateSignatoryScope},
	"go to page":             {StateDocumentScope, StateSignatoryScope},
	"save":                   {StateDocumentScope, StateSignatoryScope},
}

func check(action string, from State) error {
	for _, s := range allowed[action] {
		if s == from {
			return nil
		}
	}
	return &TransitionError{Action: action, From: from}
}
