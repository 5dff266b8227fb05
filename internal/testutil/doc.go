// Package testutil contains helpers shared by package tests: tool call
// builders for scripted models and a recorder draining run notices.
package testutil
