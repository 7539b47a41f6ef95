package researcher_test

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conversantai/retrieval-engine/action"
	"github.com/conversantai/retrieval-engine/classify"
	"github.com/conversantai/retrieval-engine/model"
	"github.com/conversantai/retrieval-engine/researcher"
	"github.com/conversantai/retrieval-engine/session"
)

// scriptedClient replays a fixed chunk sequence per call, one script per
// iteration of the researcher loop.
type scriptedClient struct {
	scripts [][]model.Chunk
	calls   int
}

func (c *scriptedClient) Complete(context.Context, *model.Request) (*model.Response, error) {
	return nil, model.ErrStreamingUnsupported
}

func (c *scriptedClient) Stream(context.Context, *model.Request) (model.Streamer, error) {
	if c.calls >= len(c.scripts) {
		return &scriptedStreamer{}, nil
	}
	s := &scriptedStreamer{chunks: c.scripts[c.calls]}
	c.calls++
	return s, nil
}

type scriptedStreamer struct {
	chunks []model.Chunk
	i      int
}

func (s *scriptedStreamer) Recv() (model.Chunk, error) {
	if s.i >= len(s.chunks) {
		return model.Chunk{}, io.EOF
	}
	c := s.chunks[s.i]
	s.i++
	return c, nil
}

func (s *scriptedStreamer) Close() error            { return nil }
func (s *scriptedStreamer) Metadata() map[string]any { return nil }

func webSearchSpec(calls *int) *action.Spec {
	return &action.Spec{
		Name:           action.WebSearch,
		ArgumentSchema: json.RawMessage(`{"type":"object","required":["queries"],"properties":{"queries":{"type":"array","items":{"type":"string"},"minItems":1}}}`),
		Execute: func(context.Context, json.RawMessage) (action.ActionOutput, error) {
			*calls++
			return action.ActionOutput{
				Kind: action.OutputSearchResults,
				SearchResults: []action.Chunk{
					{Content: "paris has many hotels", Metadata: action.ChunkMeta{Title: "Paris Hotels", URL: "https://example.com/paris?utm_source=x"}},
				},
			}, nil
		},
	}
}

func doneSpec() *action.Spec {
	return &action.Spec{
		Name: action.Done,
		Execute: func(context.Context, json.RawMessage) (action.ActionOutput, error) {
			return action.ActionOutput{Kind: action.OutputDone}, nil
		},
	}
}

func toolCallChunk(id, name string, args string) model.Chunk {
	return model.Chunk{Type: model.ChunkTypeToolCall, ToolCall: &model.ToolCall{ID: id, Name: name, Payload: json.RawMessage(args)}}
}

func TestRunStopsOnDoneAndFinalizesSources(t *testing.T) {
	var searchCalls int
	registry := action.NewRegistry()
	require.NoError(t, registry.Register(webSearchSpec(&searchCalls)))
	require.NoError(t, registry.Register(doneSpec()))

	client := &scriptedClient{scripts: [][]model.Chunk{
		{toolCallChunk("call1", "web_search", `{"queries":["paris hotels"]}`)},
		{toolCallChunk("call2", "done", `{}`)},
	}}

	r := researcher.New(client, registry, nil, nil, nil)
	sess := session.New("sess-1", nil, 0, nil)

	result, err := r.Run(context.Background(), sess, researcher.Request{
		Mode:         action.ModeBalanced,
		SystemPrompt: "you are a researcher",
		History:      []*model.Message{{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: "find me hotels in paris"}}}},
	})

	require.NoError(t, err)
	assert.Equal(t, 1, searchCalls)
	require.Len(t, result.Sources, 1)
	assert.Equal(t, "Paris Hotels", result.Sources[0].Title)
}

func TestRunStopsWhenNoToolCallsProduced(t *testing.T) {
	registry := action.NewRegistry()
	require.NoError(t, registry.Register(doneSpec()))

	client := &scriptedClient{scripts: [][]model.Chunk{{}}}

	r := researcher.New(client, registry, nil, nil, nil)
	sess := session.New("sess-2", nil, 0, nil)

	result, err := r.Run(context.Background(), sess, researcher.Request{Mode: action.ModeSpeed})
	require.NoError(t, err)
	assert.Empty(t, result.Sources)
}

func TestRunRespectsIterationBudget(t *testing.T) {
	var searchCalls int
	registry := action.NewRegistry()
	require.NoError(t, registry.Register(webSearchSpec(&searchCalls)))
	require.NoError(t, registry.Register(doneSpec()))

	scripts := make([][]model.Chunk, 0, action.ModeSpeed.MaxIterations())
	for i := 0; i < action.ModeSpeed.MaxIterations(); i++ {
		scripts = append(scripts, []model.Chunk{toolCallChunk("call", "web_search", `{"queries":["x"]}`)})
	}
	client := &scriptedClient{scripts: scripts}

	r := researcher.New(client, registry, nil, nil, nil)
	sess := session.New("sess-3", nil, 0, nil)

	_, err := r.Run(context.Background(), sess, researcher.Request{Mode: action.ModeSpeed})
	require.NoError(t, err)
	assert.Equal(t, action.ModeSpeed.MaxIterations(), searchCalls)
}

func TestRunSurfacesClassificationToPredicate(t *testing.T) {
	var sawSkipSearch bool
	registry := action.NewRegistry()
	require.NoError(t, registry.Register(doneSpec()))
	require.NoError(t, registry.Register(&action.Spec{
		Name: "gated",
		EnabledPredicate: func(c classify.Classification, _ action.Mode, _ []string) bool {
			sawSkipSearch = c.SkipSearch
			return !c.SkipSearch
		},
		Execute: func(context.Context, json.RawMessage) (action.ActionOutput, error) {
			return action.ActionOutput{Kind: action.OutputDone}, nil
		},
	}))

	client := &scriptedClient{scripts: [][]model.Chunk{{}}}
	r := researcher.New(client, registry, nil, nil, nil)
	sess := session.New("sess-4", nil, 0, nil)

	_, err := r.Run(context.Background(), sess, researcher.Request{
		Mode:           action.ModeSpeed,
		Classification: classify.Classification{SkipSearch: true},
	})
	require.NoError(t, err)
}
