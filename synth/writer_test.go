package synth_test

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conversantai/retrieval-engine/model"
	"github.com/conversantai/retrieval-engine/session"
	"github.com/conversantai/retrieval-engine/synth"
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

type fakeClient struct {
	chunks []model.Chunk
}

func (c *fakeClient) Complete(context.Context, *model.Request) (*model.Response, error) {
	return nil, model.ErrStreamingUnsupported
}
func (c *fakeClient) Stream(context.Context, *model.Request) (model.Streamer, error) {
	return &fakeStreamer{chunks: c.chunks}, nil
}

func textChunk(s string) model.Chunk {
	return model.Chunk{Type: model.ChunkTypeText, Message: &model.Message{Parts: []model.Part{model.TextPart{Text: s}}}}
}

func TestStreamEmitsBlockThenUpdates(t *testing.T) {
	client := &fakeClient{chunks: []model.Chunk{textChunk("Hello, "), textChunk("world.")}}
	w := synth.New(client, nil)
	sess := session.New("s", nil, 0, nil)

	outcome, err := w.Stream(context.Background(), sess, synth.Request{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello, world.", outcome.Answer)

	b, ok := sess.Block(outcome.BlockID)
	require.True(t, ok)
	assert.Equal(t, "Hello, world.", b.Data)
}

func TestStreamFiresEarlyThresholdOnce(t *testing.T) {
	big := make([]model.Chunk, 0, 60)
	for i := 0; i < 60; i++ {
		big = append(big, textChunk("0123456789abcdefghij"))
	}
	client := &fakeClient{chunks: big}
	w := synth.New(client, nil)
	sess := session.New("s2", nil, 0, nil)

	var fired int
	var snapshot string
	_, err := w.Stream(context.Background(), sess, synth.Request{}, func(partial string) {
		fired++
		snapshot = partial
	})
	require.NoError(t, err)
	assert.Equal(t, 1, fired)
	assert.NotEmpty(t, snapshot)
}

func TestStreamRejectsToolCallChunk(t *testing.T) {
	client := &fakeClient{chunks: []model.Chunk{{Type: model.ChunkTypeToolCall, ToolCall: &model.ToolCall{Name: "x"}}}}
	w := synth.New(client, nil)
	sess := session.New("s3", nil, 0, nil)

	_, err := w.Stream(context.Background(), sess, synth.Request{}, nil)
	assert.Error(t, err)
}
