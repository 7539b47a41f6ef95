package model_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conversantai/retrieval-engine/model"
)

func TestAsProviderErrorUnwraps(t *testing.T) {
	cause := errors.New("boom")
	pe := model.NewProviderError("anthropic", "messages.new", 429, model.ProviderErrorKindRateLimited, "rate_limit_error", "too many requests", "req_123", true, cause)
	wrapped := fmt.Errorf("stream failed: %w", pe)

	got, ok := model.AsProviderError(wrapped)
	require.True(t, ok)
	assert.Equal(t, "anthropic", got.Provider())
	assert.Equal(t, model.ProviderErrorKindRateLimited, got.Kind())
	assert.True(t, got.Retryable())
	assert.ErrorIs(t, got, cause)
}

func TestAsProviderErrorNoMatch(t *testing.T) {
	_, ok := model.AsProviderError(errors.New("plain"))
	assert.False(t, ok)
}
