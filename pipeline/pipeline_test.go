package pipeline_test

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conversantai/retrieval-engine/action"
	"github.com/conversantai/retrieval-engine/block"
	"github.com/conversantai/retrieval-engine/classify"
	"github.com/conversantai/retrieval-engine/model"
	"github.com/conversantai/retrieval-engine/pipeline"
	"github.com/conversantai/retrieval-engine/researcher"
	"github.com/conversantai/retrieval-engine/session"
	"github.com/conversantai/retrieval-engine/streamevent"
	"github.com/conversantai/retrieval-engine/synth"
	"github.com/conversantai/retrieval-engine/widget"
)

type fakeStreamer struct {
	chunks []model.Chunk
	i      int
}

func (s *fakeStreamer) Recv() (model.Chunk, error) {
	if s.i >= len(s.chunks) {
		return model.Chunk{}, io.EOF
	}
	c := s.chunks[s.i]
	s.i++
	return c, nil
}
func (s *fakeStreamer) Close() error             { return nil }
func (s *fakeStreamer) Metadata() map[string]any { return nil }

// fakeClient answers every Complete call with a fixed follow-up payload (which
// the classifier cannot parse, so it falls back to its default) and every
// Stream call with a stream holding only a stop chunk, regardless of request
// content — sufficient to exercise the pipeline's wiring without a real
// provider.
type fakeClient struct{}

func (fakeClient) Complete(context.Context, *model.Request) (*model.Response, error) {
	return &model.Response{Content: []model.Message{{
		Role:  model.ConversationRoleAssistant,
		Parts: []model.Part{model.TextPart{Text: `["What else?"]`}},
	}}}, nil
}

func (fakeClient) Stream(context.Context, *model.Request) (model.Streamer, error) {
	return &fakeStreamer{chunks: []model.Chunk{
		{Type: model.ChunkTypeStop},
	}}, nil
}

// searchingClient scripts the researcher's planning calls to request one
// web_search tool call then done, and answers every other Stream call (the
// writer's) with a stream holding only a stop chunk.
type searchingClient struct {
	fakeClient
	streamCalls int
}

func (c *searchingClient) Stream(context.Context, *model.Request) (model.Streamer, error) {
	c.streamCalls++
	switch c.streamCalls {
	case 1:
		return &fakeStreamer{chunks: []model.Chunk{
			{Type: model.ChunkTypeToolCall, ToolCall: &model.ToolCall{ID: "call1", Name: "web_search", Payload: json.RawMessage(`{"queries":["paris hotels"]}`)}},
		}}, nil
	case 2:
		return &fakeStreamer{chunks: []model.Chunk{
			{Type: model.ChunkTypeToolCall, ToolCall: &model.ToolCall{ID: "call2", Name: "done", Payload: json.RawMessage(`{}`)}},
		}}, nil
	default:
		return &fakeStreamer{chunks: []model.Chunk{
			{Type: model.ChunkTypeStop},
		}}, nil
	}
}

type recordingSink struct {
	events []streamevent.Event
}

func (r *recordingSink) Send(_ context.Context, ev streamevent.Event) error {
	r.events = append(r.events, ev)
	return nil
}

func TestPipelineRunEmitsTerminalEnd(t *testing.T) {
	client := fakeClient{}
	registry := action.NewRegistry()
	require.NoError(t, registry.Register(&action.Spec{
		Name: action.Done,
		Execute: func(context.Context, json.RawMessage) (action.ActionOutput, error) {
			return action.ActionOutput{Kind: action.OutputDone}, nil
		},
	}))

	p := pipeline.New(
		classify.New(client, nil),
		researcher.New(client, registry, nil, nil, nil),
		widget.NewRegistry(),
		synth.New(client, nil),
		synth.NewFollowUpGenerator(client, nil),
		nil,
	)

	sess := session.New("sess", nil, 0, nil)
	sink := &recordingSink{}
	unsub := sess.Subscribe(context.Background(), sink)
	defer unsub()

	p.Run(context.Background(), sess, pipeline.Request{
		Query: "hotels in paris",
		Mode:  action.ModeSpeed,
	})

	require.NotEmpty(t, sink.events)
	last := sink.events[len(sink.events)-1]
	assert.Equal(t, streamevent.TypeEnd, last.Type)
	require.NotNil(t, last.End)
}

func TestPipelineRunEmitsSourceBlockBeforeEnd(t *testing.T) {
	client := &searchingClient{}
	registry := action.NewRegistry()
	require.NoError(t, registry.Register(&action.Spec{
		Name:           action.WebSearch,
		ArgumentSchema: json.RawMessage(`{"type":"object","required":["queries"],"properties":{"queries":{"type":"array","items":{"type":"string"},"minItems":1}}}`),
		Execute: func(context.Context, json.RawMessage) (action.ActionOutput, error) {
			return action.ActionOutput{
				Kind: action.OutputSearchResults,
				SearchResults: []action.Chunk{
					{Content: "paris has many hotels", Metadata: action.ChunkMeta{Title: "Paris Hotels", URL: "https://example.com/paris"}},
				},
			}, nil
		},
	}))
	require.NoError(t, registry.Register(&action.Spec{
		Name: action.Done,
		Execute: func(context.Context, json.RawMessage) (action.ActionOutput, error) {
			return action.ActionOutput{Kind: action.OutputDone}, nil
		},
	}))

	p := pipeline.New(
		classify.New(client, nil),
		researcher.New(client, registry, nil, nil, nil),
		widget.NewRegistry(),
		synth.New(client, nil),
		synth.NewFollowUpGenerator(client, nil),
		nil,
	)

	sess := session.New("sess", nil, 0, nil)
	sink := &recordingSink{}
	unsub := sess.Subscribe(context.Background(), sink)
	defer unsub()

	p.Run(context.Background(), sess, pipeline.Request{
		Query: "hotels in paris",
		Mode:  action.ModeBalanced,
	})

	var sourceBlocks []block.Block
	for _, ev := range sink.events {
		if ev.Type == streamevent.TypeBlock && ev.Block != nil && ev.Block.Type == block.TypeSource {
			sourceBlocks = append(sourceBlocks, *ev.Block)
		}
	}
	require.Len(t, sourceBlocks, 1)
	sources, ok := sourceBlocks[0].Data.([]block.Source)
	require.True(t, ok)
	require.Len(t, sources, 1)
	assert.Equal(t, "Paris Hotels", sources[0].Title)

	last := sink.events[len(sink.events)-1]
	require.NotNil(t, last.End)
	require.Len(t, last.End.Sources, 1)
	assert.Equal(t, "Paris Hotels", last.End.Sources[0].Title)

	var sourceIdx, endIdx int
	for i, ev := range sink.events {
		if ev.Type == streamevent.TypeBlock && ev.Block != nil && ev.Block.Type == block.TypeSource {
			sourceIdx = i
		}
		if ev.Type == streamevent.TypeEnd {
			endIdx = i
		}
	}
	assert.Less(t, sourceIdx, endIdx, "source block must be emitted before the terminal end event")
}
