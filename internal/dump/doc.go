// Package dump drives a disc acquisition: the main read loop, the retry
// passes over bad sectors and the lead-out recovery pass.
//
// The main loop is a small state machine. Scanning plans the next batch with
// PlanBatch, AwaitingCommand issues it through the mmc facade and classifies
// failures, Reconciling checks the subchannel against the track table and
// commits sectors, and Rewinding steps back after the table changed under
// sectors already read. Every exit goes through Terminated with one of the
// Termination values.
//
// The scheduler owns the session's extents, track table and resume state and
// is not safe for concurrent use. Abort may be called from any goroutine.
package dump
