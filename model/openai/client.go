// Package openai provides a model.Client implementation backed by the OpenAI
// Chat Completions API using github.com/openai/openai-go. It translates
// engine requests into ChatCompletion calls and maps responses and streamed
// chunks back into the generic model structures.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/openai/openai-go/shared"

	"github.com/conversantai/retrieval-engine/model"
)

type (
	// ChatClient captures the subset of the openai-go client used by the
	// adapter, satisfied by sdk.Client.Chat.Completions.
	ChatClient interface {
		New(ctx context.Context, params sdk.ChatCompletionNewParams, opts ...option.RequestOption) (*sdk.ChatCompletion, error)
		NewStreaming(ctx context.Context, params sdk.ChatCompletionNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.ChatCompletionChunk]
	}

	// Options configures the OpenAI adapter.
	Options struct {
		// DefaultModel is used when model.Request.Model is empty.
		DefaultModel string
		// HighModel is used for model.ModelClassHighReasoning.
		HighModel string
		// SmallModel is used for model.ModelClassSmall.
		SmallModel string
		// MaxTokens sets the default completion cap when a request does not specify MaxTokens.
		MaxTokens int
		// Temperature is used when a request does not specify Temperature.
		Temperature float64
	}

	// Client implements model.Client via the OpenAI Chat Completions API.
	Client struct {
		chat         ChatClient
		defaultModel string
		highModel    string
		smallModel   string
		maxTok       int
		temp         float64
	}
)

// New builds an OpenAI-backed model client from the given chat client and options.
func New(chat ChatClient, opts Options) (*Client, error) {
	if chat == nil {
		return nil, errors.New("openai: client is required")
	}
	if strings.TrimSpace(opts.DefaultModel) == "" {
		return nil, errors.New("openai: default model is required")
	}
	return &Client{
		chat:         chat,
		defaultModel: opts.DefaultModel,
		highModel:    opts.HighModel,
		smallModel:   opts.SmallModel,
		maxTok:       opts.MaxTokens,
		temp:         opts.Temperature,
	}, nil
}

// NewFromAPIKey constructs a client using the default openai-go HTTP client,
// authenticating with the given API key.
func NewFromAPIKey(apiKey string, opts Options) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("openai: api key is required")
	}
	c := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(c.Chat.Completions, opts)
}

// Complete renders a non-streaming chat completion.
func (c *Client) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	params, err := c.prepareParams(req)
	if err != nil {
		return nil, err
	}
	resp, err := c.chat.New(ctx, params)
	if err != nil {
		return nil, classifyError(err, "chat.completions.new")
	}
	return translateResponse(resp), nil
}

// Stream renders a streaming chat completion.
func (c *Client) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	params, err := c.prepareParams(req)
	if err != nil {
		return nil, err
	}
	params.StreamOptions = sdk.ChatCompletionStreamOptionsParam{IncludeUsage: sdk.Bool(true)}
	stream := c.chat.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		return nil, classifyError(err, "chat.completions.new.stream")
	}
	return newStreamer(ctx, stream), nil
}

func (c *Client) prepareParams(req *model.Request) (sdk.ChatCompletionNewParams, error) {
	if len(req.Messages) == 0 {
		return sdk.ChatCompletionNewParams{}, errors.New("openai: messages are required")
	}
	messages, err := encodeMessages(req.Messages)
	if err != nil {
		return sdk.ChatCompletionNewParams{}, err
	}
	tools, err := encodeTools(req.Tools)
	if err != nil {
		return sdk.ChatCompletionNewParams{}, err
	}
	params := sdk.ChatCompletionNewParams{
		Model:    c.resolveModelID(req),
		Messages: messages,
	}
	if len(tools) > 0 {
		params.Tools = tools
	}
	if maxTokens := c.effectiveMaxTokens(req.MaxTokens); maxTokens > 0 {
		params.MaxCompletionTokens = sdk.Int(int64(maxTokens))
	}
	if t := c.effectiveTemperature(req.Temperature); t > 0 {
		params.Temperature = sdk.Float(t)
	}
	if req.ToolChoice != nil {
		tc, err := encodeToolChoice(req.ToolChoice)
		if err != nil {
			return sdk.ChatCompletionNewParams{}, err
		}
		params.ToolChoice = tc
	}
	return params, nil
}

func (c *Client) resolveModelID(req *model.Request) string {
	if req.Model != "" {
		return req.Model
	}
	switch req.ModelClass {
	case model.ModelClassHighReasoning:
		if c.highModel != "" {
			return c.highModel
		}
	case model.ModelClassSmall:
		if c.smallModel != "" {
			return c.smallModel
		}
	}
	return c.defaultModel
}

func (c *Client) effectiveMaxTokens(requested int) int {
	if requested > 0 {
		return requested
	}
	return c.maxTok
}

func (c *Client) effectiveTemperature(requested float32) float64 {
	if requested > 0 {
		return float64(requested)
	}
	return c.temp
}

func encodeMessages(msgs []*model.Message) ([]sdk.ChatCompletionMessageParamUnion, error) {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		text := flattenText(m.Parts)
		switch m.Role {
		case model.ConversationRoleSystem:
			if text != "" {
				out = append(out, sdk.SystemMessage(text))
			}
		case model.ConversationRoleUser:
			toolResults := toolResultsOf(m.Parts)
			for _, tr := range toolResults {
				out = append(out, sdk.ToolMessage(contentString(tr.Content), tr.ToolUseID))
			}
			if text != "" {
				out = append(out, sdk.UserMessage(text))
			}
		case model.ConversationRoleAssistant:
			asst := sdk.ChatCompletionAssistantMessageParam{}
			if text != "" {
				asst.Content.OfString = sdk.String(text)
			}
			for _, p := range m.Parts {
				if v, ok := p.(model.ToolUsePart); ok {
					args, err := json.Marshal(v.Input)
					if err != nil {
						return nil, fmt.Errorf("openai: marshal tool_use input: %w", err)
					}
					asst.ToolCalls = append(asst.ToolCalls, sdk.ChatCompletionMessageToolCallParam{
						ID:   v.ID,
						Type: "function",
						Function: sdk.ChatCompletionMessageToolCallFunctionParam{
							Name:      v.Name,
							Arguments: string(args),
						},
					})
				}
			}
			out = append(out, sdk.ChatCompletionMessageParamUnion{OfAssistant: &asst})
		default:
			return nil, fmt.Errorf("openai: unsupported message role %q", m.Role)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("openai: at least one message is required")
	}
	return out, nil
}

func flattenText(parts []model.Part) string {
	var sb strings.Builder
	for _, p := range parts {
		if v, ok := p.(model.TextPart); ok {
			sb.WriteString(v.Text)
		}
	}
	return sb.String()
}

func toolResultsOf(parts []model.Part) []model.ToolResultPart {
	var out []model.ToolResultPart
	for _, p := range parts {
		if v, ok := p.(model.ToolResultPart); ok {
			out = append(out, v)
		}
	}
	return out
}

func contentString(content any) string {
	switch v := content.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

func encodeTools(defs []*model.ToolDefinition) ([]sdk.ChatCompletionToolParam, error) {
	if len(defs) == 0 {
		return nil, nil
	}
	out := make([]sdk.ChatCompletionToolParam, 0, len(defs))
	for _, def := range defs {
		if def == nil || def.Name == "" {
			continue
		}
		params, err := toFunctionParameters(def.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("openai: tool %q schema: %w", def.Name, err)
		}
		out = append(out, sdk.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        def.Name,
				Description: sdk.String(def.Description),
				Parameters:  params,
			},
		})
	}
	return out, nil
}

func toFunctionParameters(schema any) (shared.FunctionParameters, error) {
	if schema == nil {
		return shared.FunctionParameters{}, nil
	}
	var raw json.RawMessage
	switch v := schema.(type) {
	case json.RawMessage:
		raw = v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		raw = data
	}
	var m shared.FunctionParameters
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func encodeToolChoice(choice *model.ToolChoice) (sdk.ChatCompletionToolChoiceOptionUnionParam, error) {
	switch choice.Mode {
	case "", model.ToolChoiceModeAuto:
		return sdk.ChatCompletionToolChoiceOptionUnionParam{OfAuto: sdk.String("auto")}, nil
	case model.ToolChoiceModeNone:
		return sdk.ChatCompletionToolChoiceOptionUnionParam{OfAuto: sdk.String("none")}, nil
	case model.ToolChoiceModeAny:
		return sdk.ChatCompletionToolChoiceOptionUnionParam{OfAuto: sdk.String("required")}, nil
	case model.ToolChoiceModeTool:
		if choice.Name == "" {
			return sdk.ChatCompletionToolChoiceOptionUnionParam{}, fmt.Errorf("openai: tool choice mode %q requires a tool name", choice.Mode)
		}
		return sdk.ChatCompletionToolChoiceOptionUnionParam{
			OfChatCompletionNamedToolChoice: &sdk.ChatCompletionNamedToolChoiceParam{
				Function: sdk.ChatCompletionNamedToolChoiceFunctionParam{Name: choice.Name},
			},
		}, nil
	default:
		return sdk.ChatCompletionToolChoiceOptionUnionParam{}, fmt.Errorf("openai: unsupported tool choice mode %q", choice.Mode)
	}
}

func classifyError(err error, op string) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		kind := model.ProviderErrorKindUnknown
		retryable := false
		switch apiErr.StatusCode {
		case 401, 403:
			kind = model.ProviderErrorKindAuth
		case 400, 404, 422:
			kind = model.ProviderErrorKindInvalidRequest
		case 429:
			kind = model.ProviderErrorKindRateLimited
			retryable = true
		default:
			if apiErr.StatusCode >= 500 {
				kind = model.ProviderErrorKindUnavailable
				retryable = true
			}
		}
		pe := model.NewProviderError("openai", op, apiErr.StatusCode, kind, "", apiErr.Error(), apiErr.RequestID, retryable, err)
		if kind == model.ProviderErrorKindRateLimited {
			return fmt.Errorf("%w: %w", model.ErrRateLimited, pe)
		}
		return pe
	}
	return model.NewProviderError("openai", op, 0, model.ProviderErrorKindUnknown, "", err.Error(), "", false, err)
}

func translateResponse(resp *sdk.ChatCompletion) *model.Response {
	out := &model.Response{}
	for _, choice := range resp.Choices {
		msg := choice.Message
		if msg.Content != "" {
			out.Content = append(out.Content, model.Message{
				Role:  model.ConversationRoleAssistant,
				Parts: []model.Part{model.TextPart{Text: msg.Content}},
			})
		}
		for _, call := range msg.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, model.ToolCall{
				Name:    call.Function.Name,
				Payload: json.RawMessage(call.Function.Arguments),
				ID:      call.ID,
			})
		}
	}
	out.Usage = model.TokenUsage{
		InputTokens:     int(resp.Usage.PromptTokens),
		OutputTokens:    int(resp.Usage.CompletionTokens),
		TotalTokens:     int(resp.Usage.TotalTokens),
		CacheReadTokens: int(resp.Usage.PromptTokensDetails.CachedTokens),
	}
	if len(resp.Choices) > 0 {
		out.StopReason = string(resp.Choices[0].FinishReason)
	}
	return out
}
