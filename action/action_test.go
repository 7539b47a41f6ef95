package action_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conversantai/retrieval-engine/action"
	"github.com/conversantai/retrieval-engine/classify"
)

const webSearchSchema = `{
	"type": "object",
	"required": ["queries"],
	"properties": {
		"queries": {"type": "array", "items": {"type": "string"}, "minItems": 1}
	}
}`

func webSearchSpec() *action.Spec {
	return &action.Spec{
		Name:           action.WebSearch,
		Description:    "search the web",
		ArgumentSchema: json.RawMessage(webSearchSchema),
		EnabledPredicate: func(c classify.Classification, _ action.Mode, _ []string) bool {
			return !c.SkipSearch
		},
		Execute: func(context.Context, json.RawMessage) (action.ActionOutput, error) {
			return action.ActionOutput{Kind: action.OutputSearchResults}, nil
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

func TestRegisterRejectsDuplicateName(t *testing.T) {
	r := action.NewRegistry()
	require.NoError(t, r.Register(webSearchSpec()))
	assert.Error(t, r.Register(webSearchSpec()))
}

func TestValidateAcceptsAndRejectsArguments(t *testing.T) {
	r := action.NewRegistry()
	require.NoError(t, r.Register(webSearchSpec()))

	assert.NoError(t, r.Validate(action.WebSearch, json.RawMessage(`{"queries":["paris hotels"]}`)))
	assert.Error(t, r.Validate(action.WebSearch, json.RawMessage(`{"queries":[]}`)))
	assert.Error(t, r.Validate(action.WebSearch, json.RawMessage(`{}`)))
	assert.Error(t, r.Validate(action.WebSearch, json.RawMessage(`not json`)))
}

func TestEnabledAlwaysIncludesDone(t *testing.T) {
	r := action.NewRegistry()
	require.NoError(t, r.Register(doneSpec()))
	require.NoError(t, r.Register(webSearchSpec()))

	enabled := r.Enabled(classify.Classification{SkipSearch: true}, action.ModeBalanced, nil)

	var names []action.Ident
	for _, spec := range enabled {
		names = append(names, spec.Name)
	}
	assert.Contains(t, names, action.Done)
	assert.NotContains(t, names, action.WebSearch)
}

func TestEnabledAppliesPredicate(t *testing.T) {
	r := action.NewRegistry()
	require.NoError(t, r.Register(doneSpec()))
	require.NoError(t, r.Register(webSearchSpec()))

	enabled := r.Enabled(classify.Classification{SkipSearch: false}, action.ModeBalanced, nil)

	var names []action.Ident
	for _, spec := range enabled {
		names = append(names, spec.Name)
	}
	assert.Contains(t, names, action.WebSearch)
}

func TestModeMaxIterations(t *testing.T) {
	assert.Equal(t, 2, action.ModeSpeed.MaxIterations())
	assert.Equal(t, 6, action.ModeBalanced.MaxIterations())
	assert.Equal(t, 25, action.ModeQuality.MaxIterations())
	assert.Equal(t, 6, action.Mode("unknown").MaxIterations())
}

func TestDefinitionsCarriesSchema(t *testing.T) {
	defs := action.Definitions([]*action.Spec{webSearchSpec()})
	require.Len(t, defs, 1)
	assert.Equal(t, "web_search", defs[0].Name)
	assert.NotNil(t, defs[0].InputSchema)
}

func TestGetReturnsRegisteredSpec(t *testing.T) {
	r := action.NewRegistry()
	require.NoError(t, r.Register(webSearchSpec()))

	spec, ok := r.Get(action.WebSearch)
	require.True(t, ok)
	assert.Equal(t, action.WebSearch, spec.Name)

	_, ok = r.Get(action.Ident("missing"))
	assert.False(t, ok)
}
