package textsim_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/conversantai/retrieval-engine/textsim"
)

func TestDuplicateCatchesStopwordVariants(t *testing.T) {
	assert.True(t, textsim.Duplicate(
		"What is the best hotel in Paris?",
		"What's the best hotel in Paris",
	))
}

func TestDuplicateRejectsDistinctQuestions(t *testing.T) {
	assert.False(t, textsim.Duplicate(
		"What is the weather in Paris?",
		"What are the best restaurants in Tokyo?",
	))
}

func TestJaccardIdenticalIsOne(t *testing.T) {
	assert.Equal(t, 1.0, textsim.Jaccard("hotels in paris", "hotels in paris"))
}

func TestJaccardEmptyStringsAreIdentical(t *testing.T) {
	assert.Equal(t, 1.0, textsim.Jaccard("", ""))
}
