package flow2

import (
	"context"
)

// Test state types used across tests

// Counter is a simple state for testing incrementing.
type Counter struct {
	Value int
}

// Review is the state shape exercised by gate and resume tests.
type Review struct {
	DocID    string    `json:"doc_id"`
	Progress []string  `json:"progress"`
	Stage1   *Decision `json:"stage1,omitempty"`
	EDD      *Decision `json:"edd,omitempty"`
	Done     bool      `json:"done"`
	GoLeft   bool      `json:"go_left"`
}

// Helper node functions

// increment is a node that increments the counter.
func increment(ctx Context, s Counter) (Result[Counter], error) {
	s.Value++
	return Continue(s), nil
}

// passthrough returns the state unchanged.
func passthrough[S any](ctx Context, s S) (Result[S], error) {
	return Continue(s), nil
}

// makeTrackingNode creates a node that records its execution.
func makeTrackingNode(name string, tracker *[]string) NodeFunc[Review] {
	return func(ctx Context, s Review) (Result[Review], error) {
		*tracker = append(*tracker, name)
		s.Progress = append(s.Progress, name)
		return Continue(s), nil
	}
}

// makeFailingNode creates a node that returns the given error.
func makeFailingNode(err error) NodeFunc[Review] {
	return func(ctx Context, s Review) (Result[Review], error) {
		return Continue(s), err
	}
}

// makePanicNode creates a node that panics with the given value.
func makePanicNode(value any) NodeFunc[Review] {
	return func(ctx Context, s Review) (Result[Review], error) {
		panic(value)
	}
}

// testCtx returns a fresh execution context for tests.
func testCtx() Context {
	return NewContext(context.Background())
}

// stage1Node builds the primary review gate used across tests.
func stage1Node() NodeFunc[Review] {
	return ReviewNode("stage1",
		func(s Review) *Decision { return s.Stage1 },
		func(s Review, d Decision) Review { s.Stage1 = &d; return s },
	)
}

// eddNode builds the escalated review gate used across tests.
func eddNode() NodeFunc[Review] {
	return ReviewNode("edd",
		func(s Review) *Decision { return s.EDD },
		func(s Review, d Decision) Review { s.EDD = &d; return s },
	)
}
