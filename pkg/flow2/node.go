package flow2

// END is the terminal node identifier.
// Use this as an edge target to indicate the graph should terminate.
const END = "__end__"

// NodeFunc is the signature for all node functions.
// Nodes receive the execution context and current state, and return a Result
// that either continues with updated state, pauses the run at a review gate,
// or terminates it.
//
// The state parameter is passed by value. Nodes should modify and return
// a new state value, not rely on pointer mutation.
//
// Example:
//
//	func classify(ctx flow2.Context, s Review) (flow2.Result[Review], error) {
//	    s.Risk = triage.Triage(s.Sections)
//	    return flow2.Continue(s), nil
//	}
type NodeFunc[S any] func(ctx Context, state S) (Result[S], error)

// RouterFunc determines the next node based on state.
// It is used for conditional edges where the next node depends on runtime state.
//
// The router should return a valid node ID or flow2.END.
// Returning an empty string or an unknown node ID causes a runtime error.
type RouterFunc[S any] func(ctx Context, state S) string

type resultKind int

const (
	kindContinue resultKind = iota
	kindPause
	kindTerminate
)

// Result is the outcome of a node execution: exactly one of continue,
// pause, or terminate. Construct values with Continue, Pause, or Terminate.
type Result[S any] struct {
	kind   resultKind
	state  S
	stage  string
	reason string
}

// Continue carries updated state to the next node.
func Continue[S any](state S) Result[S] {
	return Result[S]{kind: kindContinue, state: state}
}

// Pause suspends the run at the current node until a human decision for the
// named gate stage arrives. The driver persists a checkpoint and returns a
// waiting outcome to the caller.
func Pause[S any](state S, stage, reason string) Result[S] {
	return Result[S]{kind: kindPause, state: state, stage: stage, reason: reason}
}

// Terminate deliberately ends the run (e.g. a rejected review). The driver
// records a completed checkpoint; the reason is kept for audit.
func Terminate[S any](state S, reason string) Result[S] {
	return Result[S]{kind: kindTerminate, state: state, reason: reason}
}

// IsPause reports whether the result suspends the run.
func (r Result[S]) IsPause() bool { return r.kind == kindPause }

// IsTerminate reports whether the result deliberately ends the run.
func (r Result[S]) IsTerminate() bool { return r.kind == kindTerminate }

// State returns the state carried by the result.
func (r Result[S]) State() S { return r.state }

// Stage returns the gate stage for a pause result, empty otherwise.
func (r Result[S]) Stage() string { return r.stage }

// Reason returns the pause or termination reason.
func (r Result[S]) Reason() string { return r.reason }
