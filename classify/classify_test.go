package classify_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conversantai/retrieval-engine/classify"
	"github.com/conversantai/retrieval-engine/model"
)

type fakeClient struct {
	resp *model.Response
	err  error
}

func (f *fakeClient) Complete(context.Context, *model.Request) (*model.Response, error) {
	return f.resp, f.err
}

func (f *fakeClient) Stream(context.Context, *model.Request) (model.Streamer, error) {
	return nil, model.ErrStreamingUnsupported
}

func textResponse(text string) *model.Response {
	return &model.Response{
		Content: []model.Message{
			{Role: model.ConversationRoleAssistant, Parts: []model.Part{model.TextPart{Text: text}}},
		},
	}
}

func TestClassifyParsesStrictJSON(t *testing.T) {
	client := &fakeClient{resp: textResponse(`{
		"standaloneFollowUp": "what is the weather in paris",
		"classification": {
			"skipSearch": false,
			"academicSearch": false,
			"personalSearch": false,
			"showWeatherWidget": true,
			"showStockWidget": false,
			"showCalculationWidget": false,
			"showProductWidget": false,
			"showHotelWidget": false,
			"showPlaceWidget": false,
			"showMovieWidget": false
		}
	}`)}

	c := classify.New(client, nil)
	result := c.Classify(context.Background(), classify.Request{Query: "weather there?", EnabledSources: []string{"web"}})

	require.Equal(t, "what is the weather in paris", result.StandaloneFollowUp)
	assert.True(t, result.Classification.ShowWeatherWidget)
	assert.False(t, result.Classification.SkipSearch)
}

func TestClassifyFallsBackToDefaultOnParseFailure(t *testing.T) {
	client := &fakeClient{resp: textResponse("not json")}

	c := classify.New(client, nil)
	result := c.Classify(context.Background(), classify.Request{Query: "raw query"})

	assert.Equal(t, classify.Default("raw query"), result)
}

func TestClassifyFallsBackToDefaultOnProviderError(t *testing.T) {
	client := &fakeClient{err: errors.New("provider unavailable")}

	c := classify.New(client, nil)
	result := c.Classify(context.Background(), classify.Request{Query: "raw query"})

	assert.Equal(t, classify.Default("raw query"), result)
}

func TestClassifyFallsBackOnEmptyResponse(t *testing.T) {
	client := &fakeClient{resp: &model.Response{}}

	c := classify.New(client, nil)
	result := c.Classify(context.Background(), classify.Request{Query: "raw query"})

	assert.Equal(t, classify.Default("raw query"), result)
}
