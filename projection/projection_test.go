package projection_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conversantai/retrieval-engine/block"
	"github.com/conversantai/retrieval-engine/projection"
	"github.com/conversantai/retrieval-engine/streamevent"
)

func TestApplyBlockSetsSummaryAndFirstChunk(t *testing.T) {
	q := projection.New("s1", "hotels in paris")
	b := block.NewText("b1", "Paris has many great hotels.")
	q.Apply(streamevent.Event{EventID: "e1", SessionID: "s1", Type: streamevent.TypeBlock, Block: &b})

	assert.Equal(t, "Paris has many great hotels.", q.Summary)
	assert.True(t, q.HasReceivedFirstChunk)
	assert.Equal(t, projection.PhaseSearching, q.Phase)
}

func TestApplyUpdateBlockTransitionsPhase(t *testing.T) {
	q := projection.New("s1", "q")
	b := block.NewText("b1", "partial")
	q.Apply(streamevent.Event{EventID: "e1", SessionID: "s1", Type: streamevent.TypeBlock, Block: &b})
	require.Equal(t, projection.PhaseSearching, q.Phase)

	q.Apply(streamevent.Event{EventID: "e2", SessionID: "s1", BlockID: "b1", Type: streamevent.TypeUpdateBlock, Patch: block.ReplaceData("partial answer")})
	assert.Equal(t, projection.PhaseAnswering, q.Phase)
	assert.Equal(t, "partial answer", q.Summary)
}

func TestApplyIgnoresDuplicateEvents(t *testing.T) {
	q := projection.New("s1", "q")
	b := block.NewText("b1", "first")
	ev := streamevent.Event{EventID: "e1", SessionID: "s1", Type: streamevent.TypeBlock, Block: &b}
	q.Apply(ev)
	b2 := block.NewText("b1", "second")
	ev2 := streamevent.Event{EventID: "e1", SessionID: "s1", Type: streamevent.TypeBlock, Block: &b2}
	q.Apply(ev2)

	assert.Equal(t, "first", q.Summary)
}

func TestApplyEndFinalizes(t *testing.T) {
	q := projection.New("s1", "q")
	end := streamevent.EndPayload{
		FollowUpSuggestions: []string{"a?"},
		Scenario:            "general_answer",
		Sources:             []block.Source{{URL: "https://example.com", Title: "Example"}},
	}
	q.Apply(streamevent.Event{EventID: "e-end", SessionID: "s1", Type: streamevent.TypeEnd, End: &end})

	assert.True(t, q.IsFinalized)
	assert.False(t, q.IsStreaming)
	assert.Equal(t, projection.PhaseDone, q.Phase)
	assert.Equal(t, []string{"a?"}, q.FollowUpSuggestions)
	require.Len(t, q.Sources, 1)
}

func TestApplyIgnoresEventsAfterFinalization(t *testing.T) {
	q := projection.New("s1", "q")
	end := streamevent.EndPayload{}
	q.Apply(streamevent.Event{EventID: "e-end", SessionID: "s1", Type: streamevent.TypeEnd, End: &end})

	b := block.NewText("b1", "late arrival")
	q.Apply(streamevent.Event{EventID: "e-late", SessionID: "s1", Type: streamevent.TypeBlock, Block: &b})
	assert.Empty(t, q.Summary)
}

func TestApplyErrorSetsFieldsWithoutFinalizing(t *testing.T) {
	q := projection.New("s1", "q")
	q.Apply(streamevent.Event{EventID: "e1", SessionID: "s1", Type: streamevent.TypeError, Error: "boom"})

	assert.Equal(t, "boom", q.Error)
	assert.False(t, q.IsStreaming)
	assert.False(t, q.IsFinalized)
}

func TestApplyReasoningBlockAppendsStepNotSummary(t *testing.T) {
	q := projection.New("s1", "q")
	b := block.NewText("b1", "\U0001F4AD planning to search hotel sites")
	q.Apply(streamevent.Event{EventID: "e1", SessionID: "s1", Type: streamevent.TypeBlock, Block: &b})

	assert.Empty(t, q.Summary)
	require.Len(t, q.ReasoningSteps, 1)
	assert.Equal(t, "planning to search hotel sites", q.ReasoningSteps[0])
}

func TestCancelSetsCanceledErrorWithoutFinalizing(t *testing.T) {
	q := projection.New("s1", "hotels in paris")
	q.HasReceivedFirstChunk = true

	q.Cancel()

	assert.Equal(t, projection.CanceledError, q.Error)
	assert.False(t, q.IsStreaming)
	assert.False(t, q.IsFinalized)
}

func TestCancelIsNoOpAfterFinalization(t *testing.T) {
	q := projection.New("s1", "q")
	end := streamevent.EndPayload{}
	q.Apply(streamevent.Event{EventID: "e-end", SessionID: "s1", Type: streamevent.TypeEnd, End: &end})

	q.Cancel()

	assert.Empty(t, q.Error)
	assert.True(t, q.IsFinalized)
}

func TestSubmissionsBlocksResendOfCleanFinalizedSession(t *testing.T) {
	subs := projection.NewSubmissions()
	now := time.Now()

	first := projection.New("s1", "hotels in paris")
	require.True(t, subs.Allow("hotels in paris", "", first, now))
	first.Apply(streamevent.Event{EventID: "e-end", SessionID: "s1", Type: streamevent.TypeEnd, End: &streamevent.EndPayload{}})
	require.True(t, first.IsFinalized)

	second := projection.New("s2", "hotels in paris")
	assert.False(t, subs.Allow("hotels in paris", "", second, now))
}

func TestSubmissionsAllowsResendOfFinalizedErroredSession(t *testing.T) {
	subs := projection.NewSubmissions()
	now := time.Now()

	first := projection.New("s1", "hotels in paris")
	require.True(t, subs.Allow("hotels in paris", "", first, now))
	first.Apply(streamevent.Event{EventID: "e-end", SessionID: "s1", Type: streamevent.TypeEnd, End: &streamevent.EndPayload{}})
	first.Error = "provider unavailable"

	second := projection.New("s2", "hotels in paris")
	assert.True(t, subs.Allow("hotels in paris", "", second, now))
}

func TestSubmissionsBlocksActiveSessionWithinRetryWindow(t *testing.T) {
	subs := projection.NewSubmissions()
	now := time.Now()

	first := projection.New("s1", "hotels in paris")
	require.True(t, subs.Allow("hotels in paris", "", first, now))

	second := projection.New("s2", "hotels in paris")
	assert.False(t, subs.Allow("hotels in paris", "", second, now.Add(10*time.Second)))
}

func TestSubmissionsAllowsActiveSessionAfterRetryWindow(t *testing.T) {
	subs := projection.NewSubmissions()
	now := time.Now()

	first := projection.New("s1", "hotels in paris")
	require.True(t, subs.Allow("hotels in paris", "", first, now))

	second := projection.New("s2", "hotels in paris")
	assert.True(t, subs.Allow("hotels in paris", "", second, now.Add(31*time.Second)))
}

func TestSubmissionsAllowsActiveSessionOnCancellation(t *testing.T) {
	subs := projection.NewSubmissions()
	now := time.Now()

	first := projection.New("s1", "hotels in paris")
	require.True(t, subs.Allow("hotels in paris", "", first, now))
	first.Cancel()

	second := projection.New("s2", "hotels in paris")
	assert.True(t, subs.Allow("hotels in paris", "", second, now.Add(1*time.Second)))
}

func TestSubmissionsTreatsDifferentImagesAsDistinctKeys(t *testing.T) {
	subs := projection.NewSubmissions()
	now := time.Now()

	first := projection.New("s1", "identify this plant")
	require.True(t, subs.Allow("identify this plant", "photo-a.jpg", first, now))

	second := projection.New("s2", "identify this plant")
	assert.True(t, subs.Allow("identify this plant", "photo-b.jpg", second, now))
}
