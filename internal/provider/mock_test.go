package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ReOpsIL/KAIX/internal/plan"
)

func TestMock_GeneratePlan_DefaultProducesSingleTask(t *testing.T) {
	m := NewMock()
	out, err := m.GeneratePlan(context.Background(), GeneratePlanRequest{UserPrompt: "write a poem"})
	require.NoError(t, err)
	require.Len(t, out.Tasks, 1)
	assert.Equal(t, string(plan.KindGenerateContent), out.Tasks[0].Kind)
}

func TestMock_GeneratePlan_ScriptConsumedInOrderThenRepeatsLast(t *testing.T) {
	m := NewMock().WithPlanScript(
		RawPlan{Description: "first"},
		RawPlan{Description: "second"},
	)
	ctx := context.Background()

	out1, err := m.GeneratePlan(ctx, GeneratePlanRequest{})
	require.NoError(t, err)
	out2, err := m.GeneratePlan(ctx, GeneratePlanRequest{})
	require.NoError(t, err)
	out3, err := m.GeneratePlan(ctx, GeneratePlanRequest{})
	require.NoError(t, err)

	assert.Equal(t, "first", out1.Description)
	assert.Equal(t, "second", out2.Description)
	assert.Equal(t, "second", out3.Description)
}

func TestMock_AnalyzeResult_DerivesVerdictFromSuccess(t *testing.T) {
	m := NewMock()
	ctx := context.Background()

	ok, err := m.AnalyzeResult(ctx, AnalyzeRequest{Result: &plan.TaskResult{Success: true}})
	require.NoError(t, err)
	assert.Equal(t, plan.VerdictOK, ok.Verdict)

	fail, err := m.AnalyzeResult(ctx, AnalyzeRequest{Result: &plan.TaskResult{Success: false}})
	require.NoError(t, err)
	assert.Equal(t, plan.VerdictNeedsRetry, fail.Verdict)
}

func TestMock_Determinism_SameInputsSameOutput(t *testing.T) {
	m1 := NewMock()
	m2 := NewMock()
	ctx := context.Background()
	req := GeneratePlanRequest{UserPrompt: "same prompt"}

	out1, err := m1.GeneratePlan(ctx, req)
	require.NoError(t, err)
	out2, err := m2.GeneratePlan(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, out1, out2)
}

func TestMock_Calls_TracksInvocationCounts(t *testing.T) {
	m := NewMock()
	ctx := context.Background()
	_, _ = m.GeneratePlan(ctx, GeneratePlanRequest{})
	_, _ = m.RefineInstruction(ctx, RefineRequest{})
	_, _ = m.AnalyzeResult(ctx, AnalyzeRequest{Result: &plan.TaskResult{Success: true}})
	_, _ = m.Summarize(ctx, "text", "")

	plans, refines, analyses, summaries := m.Calls()
	assert.EqualValues(t, 1, plans)
	assert.EqualValues(t, 1, refines)
	assert.EqualValues(t, 1, analyses)
	assert.EqualValues(t, 1, summaries)
}
