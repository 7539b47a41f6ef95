package synth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conversantai/retrieval-engine/model"
	"github.com/conversantai/retrieval-engine/synth"
)

type fakeCompleteClient struct {
	resp *model.Response
	err  error
}

func (c *fakeCompleteClient) Complete(context.Context, *model.Request) (*model.Response, error) {
	return c.resp, c.err
}
func (c *fakeCompleteClient) Stream(context.Context, *model.Request) (model.Streamer, error) {
	return nil, model.ErrStreamingUnsupported
}

func arrayResponse(json string) *model.Response {
	return &model.Response{Content: []model.Message{
		{Role: model.ConversationRoleAssistant, Parts: []model.Part{model.TextPart{Text: json}}},
	}}
}

func TestGenerateParsesAndCaps(t *testing.T) {
	client := &fakeCompleteClient{resp: arrayResponse(`["What about Rome?", "Any tips for Rome?", "Where to eat?", "What about flights?"]`)}
	g := synth.NewFollowUpGenerator(client, nil)

	out := g.Generate(context.Background(), synth.FollowUpRequest{Query: "hotels in paris"})
	require.LessOrEqual(t, len(out), synth.MaxFollowUps)
	assert.NotEmpty(t, out)
}

func TestGenerateReturnsNilOnProviderError(t *testing.T) {
	client := &fakeCompleteClient{err: errors.New("down")}
	g := synth.NewFollowUpGenerator(client, nil)
	out := g.Generate(context.Background(), synth.FollowUpRequest{Query: "x"})
	assert.Nil(t, out)
}

func TestGenerateReturnsNilOnParseFailure(t *testing.T) {
	client := &fakeCompleteClient{resp: arrayResponse("not json")}
	g := synth.NewFollowUpGenerator(client, nil)
	out := g.Generate(context.Background(), synth.FollowUpRequest{Query: "x"})
	assert.Nil(t, out)
}

func TestDedupeRemovesNearDuplicatesAndCaps(t *testing.T) {
	in := []string{
		"What is the best hotel in Paris?",
		"What's the best hotel in Paris",
		"What are good restaurants in Rome?",
		"What about flights to Rome?",
		"What is the weather in Tokyo?",
	}
	out := synth.Dedupe(in)
	assert.LessOrEqual(t, len(out), synth.MaxFollowUps)
	assert.Contains(t, out, "What is the best hotel in Paris?")
	assert.NotContains(t, out, "What's the best hotel in Paris")
}
