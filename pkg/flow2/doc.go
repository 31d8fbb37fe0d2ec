/*
Package flow2 provides a checkpointed, human-in-the-loop workflow engine for
compliance document review.

# Overview

flow2 executes directed graphs of processing steps over a typed state. What
sets it apart from a plain pipeline runner is the review gate: a node can
pause the run mid-execution to await an asynchronous human decision. The
engine persists the run's exact execution state durably, returns control to
the caller, and resumes deterministically — potentially on a different
process invocation — when the decision arrives through a single-use approval
token.

Features:
  - Type-safe generics for state management
  - Compile-time validation of graph structure
  - Durable pause/resume with crash-safe checkpoint storage
  - Named approval gates (primary review, escalated EDD review, ...)
  - OpenTelemetry integration for observability

# Basic Usage

Create a graph with nodes and edges, then compile and run:

	type Review struct {
	    DocID    string
	    Sections []triage.TopicSection
	    Risk     triage.Result
	}

	func score(ctx flow2.Context, s Review) (flow2.Result[Review], error) {
	    s.Risk = triage.Triage(s.Sections)
	    return flow2.Continue(s), nil
	}

	graph := flow2.NewGraph[Review]("doc-review-v1").
	    AddNode("score", score).
	    AddEdge("score", flow2.END).
	    SetEntry("score")

	compiled, err := graph.Compile()
	if err != nil {
	    log.Fatal(err)
	}

	ctx := flow2.NewContext(context.Background())
	out, err := compiled.Run(ctx, Review{DocID: "doc-1"})

# Review Gates

A ReviewNode suspends the run until a human decides:

	graph.AddNode("approval", flow2.ReviewNode("stage1",
	    func(s Review) *flow2.Decision { return s.Stage1 },
	    func(s Review, d flow2.Decision) Review { s.Stage1 = &d; return s },
	))

Running a graph with review gates requires a checkpoint store:

	out, err := compiled.Run(ctx, state,
	    flow2.WithStore(store), flow2.WithRunID(runID))
	if out.Status == flow2.StatusWaitingHuman {
	    // deliver out.ApprovalToken to the approver, out of band
	}

When the approver acts, resume on any process with the same compiled graph:

	out, err = compiled.Resume(ctx, store, flow2.ResumeRequest{
	    Token:     token,
	    Decision:  flow2.DecisionApprove,
	    DecidedBy: "j.reviewer@example.com",
	})

A rejected decision terminates the run; an approval continues it, possibly
into a second escalated gate under the exact same contract.

# Conditional Branching

Use conditional edges for decision points such as triage routing:

	graph.AddConditionalEdge("score", func(ctx flow2.Context, s Review) string {
	    if s.Risk.Path == triage.PathHumanGate {
	        return "approval"
	    }
	    return "publish"
	})

The router function returns the ID of the next node to execute.
Invalid return values (referencing non-existent nodes) cause runtime errors.

# Error Handling

A node error marks the run failed and writes a final checkpoint carrying the
triggering error; a paused checkpoint is never left dangling for a failed
attempt. Resume refuses malformed, expired, or non-paused checkpoints with
typed errors (never silently treating them as fresh runs), and unknown tokens
resolve to checkpoint.ErrNotFound.
*/
package flow2
