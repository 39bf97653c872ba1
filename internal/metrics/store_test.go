package metrics

import (
	"context"
	"testing"
	"time"

	"nutriplan/internal/shared"
	"nutriplan/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_RecordAndDailyUsage(t *testing.T) {
	ctx := context.Background()
	store := NewStore(testutil.NewTestDB(t))

	now := time.Now().UTC()
	require.NoError(t, store.Record(ctx, ExecutionMetric{AgentName: "RecipeGenerator", PromptTokens: 100, CompletionTokens: 50, LatencyMS: 200, Timestamp: now}))
	require.NoError(t, store.Record(ctx, ExecutionMetric{AgentName: "RecipeGenerator", PromptTokens: 10, CompletionTokens: 5, LatencyMS: 400, Timestamp: now}))
	require.NoError(t, store.Record(ctx, ExecutionMetric{AgentName: "RecipeExtractor", PromptTokens: 7, CompletionTokens: 3, Timestamp: now.AddDate(0, 0, -1)}))
	require.NoError(t, store.Record(ctx, ExecutionMetric{AgentName: "Old", PromptTokens: 1, CompletionTokens: 1, Timestamp: now.AddDate(0, 0, -40)}))

	usage, err := store.GetDailyUsage(ctx, 7)
	require.NoError(t, err)
	require.Len(t, usage, 2)

	assert.Equal(t, now.Format("2006-01-02"), usage[0].Date)
	assert.Equal(t, 110, usage[0].TotalPrompt)
	assert.Equal(t, 55, usage[0].TotalCompletion)
	assert.Equal(t, 2, usage[0].TotalExecution)
	assert.Equal(t, int64(300), usage[0].AvgLatencyMS)
	assert.Equal(t, now.AddDate(0, 0, -1).Format("2006-01-02"), usage[1].Date)

	agents, err := store.GetAgentUsage(ctx, 7)
	require.NoError(t, err)
	require.Len(t, agents, 2)
	assert.Equal(t, AgentUsage{AgentName: "RecipeGenerator", TotalTokens: 165, Executions: 2}, agents[0])
}

func TestStore_RecordMeta_SkipsEmptyUsage(t *testing.T) {
	ctx := context.Background()
	store := NewStore(testutil.NewTestDB(t))

	require.NoError(t, store.RecordMeta(ctx, shared.AgentMeta{AgentName: "RecipeGenerator"}))
	require.NoError(t, store.RecordMeta(ctx, shared.AgentMeta{
		AgentName: "RecipeGenerator",
		Usage:     shared.TokenUsage{PromptTokens: 12, CompletionTokens: 8, Model: "llama"},
		Latency:   1500 * time.Millisecond,
	}))

	usage, err := store.GetDailyUsage(ctx, 1)
	require.NoError(t, err)
	require.Len(t, usage, 1)
	assert.Equal(t, 1, usage[0].TotalExecution)
	assert.Equal(t, int64(1500), usage[0].AvgLatencyMS)
}

func TestStore_Cleanup(t *testing.T) {
	ctx := context.Background()
	store := NewStore(testutil.NewTestDB(t))

	now := time.Now().UTC()
	require.NoError(t, store.Record(ctx, ExecutionMetric{AgentName: "a", PromptTokens: 1, Timestamp: now.AddDate(0, 0, -31)}))
	require.NoError(t, store.Record(ctx, ExecutionMetric{AgentName: "b", PromptTokens: 1, Timestamp: now.AddDate(0, 0, -45)}))
	require.NoError(t, store.Record(ctx, ExecutionMetric{AgentName: "c", PromptTokens: 1, Timestamp: now}))

	n, err := store.Cleanup(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	usage, err := store.GetDailyUsage(ctx, 100)
	require.NoError(t, err)
	require.Len(t, usage, 1)
}

func TestMapUsage(t *testing.T) {
	m := MapUsage("Agent", shared.TokenUsage{PromptTokens: 3, CompletionTokens: 4, Model: "gemini"}, 2*time.Second)
	assert.Equal(t, "gemini", m.Model)
	assert.Equal(t, int64(2000), m.LatencyMS)
	assert.False(t, m.Timestamp.IsZero())
}
