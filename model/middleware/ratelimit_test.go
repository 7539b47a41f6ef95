package middleware_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conversantai/retrieval-engine/model"
	"github.com/conversantai/retrieval-engine/model/middleware"
)

type fakeClient struct {
	completeErr error
	calls       int
}

func (f *fakeClient) Complete(context.Context, *model.Request) (*model.Response, error) {
	f.calls++
	return &model.Response{}, f.completeErr
}

func (f *fakeClient) Stream(context.Context, *model.Request) (model.Streamer, error) {
	return nil, nil
}

func TestAdaptiveRateLimiterBacksOffOnRateLimit(t *testing.T) {
	limiter := middleware.NewAdaptiveRateLimiter(1000, 1000)
	fake := &fakeClient{completeErr: model.ErrRateLimited}
	client := limiter.Middleware()(fake)

	req := &model.Request{Messages: []*model.Message{{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: "hi"}}}}}
	_, err := client.Complete(context.Background(), req)
	require.ErrorIs(t, err, model.ErrRateLimited)

	assert.Less(t, limiter.CurrentTPM(), 1000.0)
}

func TestAdaptiveRateLimiterProbesBackUpOnSuccess(t *testing.T) {
	limiter := middleware.NewAdaptiveRateLimiter(1000, 2000)
	fake := &fakeClient{completeErr: model.ErrRateLimited}
	client := limiter.Middleware()(fake)
	req := &model.Request{Messages: []*model.Message{{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: "hi"}}}}}

	_, _ = client.Complete(context.Background(), req)
	backedOff := limiter.CurrentTPM()

	fake.completeErr = nil
	_, err := client.Complete(context.Background(), req)
	require.NoError(t, err)

	assert.Greater(t, limiter.CurrentTPM(), backedOff)
}

func TestMiddlewareNilNextReturnsNil(t *testing.T) {
	limiter := middleware.NewAdaptiveRateLimiter(1000, 1000)
	assert.Nil(t, limiter.Middleware()(nil))
}
