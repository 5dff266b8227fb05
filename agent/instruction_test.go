package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/crewmesh/core"
)

func newTestRunContext() *core.RunContext {
	return core.NewRunContext(context.Background(), "test-run", nil, func(o *core.RunOptions) {
		o.Namespace = core.NewNamespace("memories", "user_name")
		o.Now = func() time.Time { return time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC) }
	})
}

func TestInstruction_Static(t *testing.T) {
	inst := NewInstructionFromText("static {{.date}}")
	got, err := inst.Resolve(newTestRunContext())
	require.NoError(t, err)
	assert.Equal(t, "static {{.date}}", got)
	assert.False(t, inst.IsZero())
	assert.True(t, NewInstructionFromText("  ").IsZero())
	assert.True(t, Instruction{}.IsZero())
}

func TestInstruction_Func(t *testing.T) {
	inst := NewInstructionFromFunc(func(rc *core.RunContext) (string, error) { return "run " + rc.RunID, nil })
	got, err := inst.Resolve(newTestRunContext())
	require.NoError(t, err)
	assert.Equal(t, "run test-run", got)

	boom := errors.New("boom")
	_, err = NewInstructionFromFunc(func(*core.RunContext) (string, error) { return "", boom }).Resolve(newTestRunContext())
	assert.ErrorIs(t, err, boom)
}

func TestInstruction_TemplateWithRunData(t *testing.T) {
	rc := newTestRunContext().WithAgent("report_writer")
	got, err := NewInstructionFromTemplate("{{.agent}} on {{.date}} for {{.namespace}}", nil).Resolve(rc)
	require.NoError(t, err)
	assert.Equal(t, "report_writer on 2026-10-17 for memories/user_name", got)
}

func TestInstruction_TemplateWithData(t *testing.T) {
	inst := NewInstructionFromTemplate("Agents:\n{{.roster}}Memory: {{.namespace}}", func(rc *core.RunContext) map[string]any {
		return map[string]any{"roster": "1. a: does a\n", "namespace": rc.Namespace.Key()}
	})
	got, err := inst.Resolve(newTestRunContext())
	require.NoError(t, err)
	assert.Equal(t, "Agents:\n1. a: does a\nMemory: memories/user_name", got)
}

func TestInstruction_TemplateWithoutMarkers(t *testing.T) {
	got, err := NewInstructionFromTemplate("plain <text> & more", nil).Resolve(newTestRunContext())
	require.NoError(t, err)
	assert.Equal(t, "plain <text> & more", got)
}
