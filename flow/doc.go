// Package flow holds the building blocks shared by agents and the
// supervisor: a model call helper that forwards streamed text as notices and
// a sequential tool executor that pairs every tool call with exactly one
// result.
package flow
