package testing

import (
	"errors"
	"fmt"
	"strings"
)

// InvalidFilterError reports an unknown category or concept filter.
type InvalidFilterError struct {
	Kind  string
	Value string
	Valid []string
}

func (e *InvalidFilterError) Error() string {
	return fmt.Sprintf("invalid %s '%s', must be one of: %s", e.Kind, e.Value, strings.Join(e.Valid, ", "))
}

// ErrExpectation marks a step whose outcome disagreed with its expectation.
var ErrExpectation = errors.New("step expectations not met")

// expectationError lists every unmet expectation of a step.
type expectationError struct {
	problems []string
}

func (e *expectationError) Error() string {
	return ErrExpectation.Error() + ": " + strings.Join(e.problems, "; ")
}

func (e *expectationError) Unwrap() error { return ErrExpectation }

func categoryNames() []string {
	out := make([]string, len(AllCategories))
	for i, c := range AllCategories {
		out[i] = string(c)
	}
	return out
}

func conceptNames() []string {
	out := make([]string, len(AllConcepts))
	for i, c := range AllConcepts {
		out[i] = string(c)
	}
	return out
}

// ArgumentError reports a step argument that is missing or malformed. It is
// a scenario authoring error, not an observation about the system under test.
type ArgumentError struct {
	Name    string
	Problem string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("argument '%s' %s", e.Name, e.Problem)
}
