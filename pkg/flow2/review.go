package flow2

import "fmt"

// ReviewNode builds the human review gate for a named approval stage.
//
// The returned node is the only suspension point in the engine. On first
// entry no decision exists, so it pauses the run at its stage; the driver
// persists a checkpoint and hands an approval token to the caller. When the
// decision arrives, Resume re-enters this same node with the decision visible
// through the Context: the node annotates the state with it and either
// continues (approve) or terminates the run (reject). On any later pass the
// decision is already recorded in state and the node passes straight through,
// which keeps re-execution idempotent.
//
// recorded reports the decision previously annotated into state for this
// stage, or nil. annotate writes a fresh decision into state. Both operate on
// the caller's state type, so the engine never needs to know its shape.
//
// A second, escalated gate is just another ReviewNode with its own stage tag;
// the pause/resume contract is identical no matter how many gates a run
// passes through.
func ReviewNode[S any](stage string, recorded func(S) *Decision, annotate func(S, Decision) S) NodeFunc[S] {
	if stage == "" {
		panic("flow2: review stage cannot be empty")
	}
	if recorded == nil || annotate == nil {
		panic("flow2: review node requires recorded and annotate functions")
	}

	return func(ctx Context, state S) (Result[S], error) {
		if d := recorded(state); d != nil {
			if d.Approved() {
				return Continue(state), nil
			}
			return Terminate(state, fmt.Sprintf("stage %s rejected by %s", stage, d.DecidedBy)), nil
		}

		if d := ctx.Decision(stage); d != nil {
			state = annotate(state, *d)
			if d.Approved() {
				return Continue(state), nil
			}
			return Terminate(state, fmt.Sprintf("stage %s rejected by %s", stage, d.DecidedBy)), nil
		}

		return Pause(state, stage, fmt.Sprintf("awaiting %s approval", stage)), nil
	}
}
