// Package stream turns the notices of a run into the ordered event sequence
// a caller consumes.
//
// The hand-off is unbuffered from the producing run to the consumer: a slow
// consumer blocks the run instead of losing events, and cancelling the
// consumer's context stops the run at its next notice. Agent handoffs are
// rendered as immediately finished transfer_to_<agent> and
// transfer_back_to_supervisor tool pairs, so at most one tool is ever
// outstanding in the sequence.
package stream
