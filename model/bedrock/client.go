// Package bedrock provides a model.Client implementation backed by Amazon
// Bedrock's Anthropic model family (InvokeModel / InvokeModelWithResponseStream).
// Bedrock's Claude wire format is the same Anthropic Messages shape used by
// model/anthropic, with an added anthropic_version envelope field and no
// native SSE framing; this adapter encodes/decodes that wire format directly
// rather than sharing code with model/anthropic, since the transports
// (HTTP SSE vs. a Smithy event stream) are different enough that sharing
// would mean threading a transport abstraction through both for no benefit.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"

	"github.com/conversantai/retrieval-engine/model"
)

const anthropicVersion = "bedrock-2023-05-31"

type (
	// InvokeAPI captures the subset of *bedrockruntime.Client used by the
	// adapter, so tests can substitute a fake.
	InvokeAPI interface {
		InvokeModel(ctx context.Context, in *bedrockruntime.InvokeModelInput, opts ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
		InvokeModelWithResponseStream(ctx context.Context, in *bedrockruntime.InvokeModelWithResponseStreamInput, opts ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelWithResponseStreamOutput, error)
	}

	// Options configures optional Bedrock adapter behavior, mirroring
	// model/anthropic.Options so callers can switch providers by swapping
	// the client construction alone.
	Options struct {
		DefaultModel string
		HighModel    string
		SmallModel   string
		MaxTokens    int
		Temperature  float64
	}

	// Client implements model.Client against Bedrock's InvokeModel APIs.
	Client struct {
		api          InvokeAPI
		defaultModel string
		highModel    string
		smallModel   string
		maxTok       int
		temp         float64
	}

	requestBody struct {
		AnthropicVersion string        `json:"anthropic_version"`
		MaxTokens        int           `json:"max_tokens"`
		Messages         []wireMessage `json:"messages"`
		System           string        `json:"system,omitempty"`
		Temperature      float64       `json:"temperature,omitempty"`
		Tools            []wireTool    `json:"tools,omitempty"`
	}

	wireMessage struct {
		Role    string      `json:"role"`
		Content []wireBlock `json:"content"`
	}

	wireBlock struct {
		Type      string          `json:"type"`
		Text      string          `json:"text,omitempty"`
		ID        string          `json:"id,omitempty"`
		Name      string          `json:"name,omitempty"`
		Input     json.RawMessage `json:"input,omitempty"`
		ToolUseID string          `json:"tool_use_id,omitempty"`
		Content   string          `json:"content,omitempty"`
		IsError   bool            `json:"is_error,omitempty"`
	}

	wireTool struct {
		Name        string `json:"name"`
		Description string `json:"description,omitempty"`
		InputSchema any    `json:"input_schema"`
	}

	responseBody struct {
		Content    []wireBlock `json:"content"`
		StopReason string      `json:"stop_reason"`
		Usage      struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
)

// New builds a Bedrock-backed model client around api, an already-configured
// *bedrockruntime.Client (region, credentials resolved by the caller via the
// standard AWS SDK config chain).
func New(api InvokeAPI, opts Options) (*Client, error) {
	if api == nil {
		return nil, errors.New("bedrock: client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("bedrock: default model id is required")
	}
	return &Client{
		api:          api,
		defaultModel: opts.DefaultModel,
		highModel:    opts.HighModel,
		smallModel:   opts.SmallModel,
		maxTok:       opts.MaxTokens,
		temp:         opts.Temperature,
	}, nil
}

// NewFromDefaultConfig constructs a client using the standard AWS SDK
// config resolution chain (environment, shared config, IAM role) for the
// given region.
func NewFromDefaultConfig(ctx context.Context, region string, opts Options) (*Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("bedrock: load aws config: %w", err)
	}
	return New(bedrockruntime.NewFromConfig(cfg), opts)
}

// Complete issues a non-streaming InvokeModel call.
func (c *Client) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	body, nameMap, err := c.encodeRequest(req)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("bedrock: encode request: %w", err)
	}
	modelID := c.resolveModelID(req)
	out, err := c.api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     &modelID,
		ContentType: strPtr("application/json"),
		Accept:      strPtr("application/json"),
		Body:        payload,
	})
	if err != nil {
		return nil, classifyError(err, "invoke_model")
	}
	var rb responseBody
	if err := json.Unmarshal(out.Body, &rb); err != nil {
		return nil, fmt.Errorf("bedrock: decode response: %w", err)
	}
	return translateResponse(rb, nameMap), nil
}

// Stream issues InvokeModelWithResponseStream and adapts the resulting
// Smithy event stream into model.Chunks.
func (c *Client) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	body, nameMap, err := c.encodeRequest(req)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("bedrock: encode request: %w", err)
	}
	modelID := c.resolveModelID(req)
	out, err := c.api.InvokeModelWithResponseStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
		ModelId:     &modelID,
		ContentType: strPtr("application/json"),
		Accept:      strPtr("application/json"),
		Body:        payload,
	})
	if err != nil {
		return nil, classifyError(err, "invoke_model_stream")
	}
	return newStreamer(out.GetStream(), nameMap), nil
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

func (c *Client) encodeRequest(req *model.Request) (*requestBody, map[string]string, error) {
	if len(req.Messages) == 0 {
		return nil, nil, errors.New("bedrock: messages are required")
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTok
	}
	if maxTokens <= 0 {
		return nil, nil, errors.New("bedrock: max_tokens must be positive")
	}
	temp := float64(req.Temperature)
	if temp <= 0 {
		temp = c.temp
	}

	nameMap := make(map[string]string, len(req.Tools))
	var tools []wireTool
	for _, t := range req.Tools {
		if t == nil || t.Name == "" {
			continue
		}
		nameMap[t.Name] = t.Name
		tools = append(tools, wireTool{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
	}

	var system string
	var messages []wireMessage
	for _, m := range req.Messages {
		if m == nil {
			continue
		}
		if m.Role == model.ConversationRoleSystem {
			for _, p := range m.Parts {
				if v, ok := p.(model.TextPart); ok {
					system += v.Text
				}
			}
			continue
		}
		blocks := encodeBlocks(m.Parts)
		if len(blocks) == 0 {
			continue
		}
		role := "user"
		if m.Role == model.ConversationRoleAssistant {
			role = "assistant"
		}
		messages = append(messages, wireMessage{Role: role, Content: blocks})
	}
	if len(messages) == 0 {
		return nil, nil, errors.New("bedrock: at least one user/assistant message is required")
	}

	return &requestBody{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        maxTokens,
		Messages:         messages,
		System:           system,
		Temperature:      temp,
		Tools:            tools,
	}, nameMap, nil
}

func encodeBlocks(parts []model.Part) []wireBlock {
	blocks := make([]wireBlock, 0, len(parts))
	for _, part := range parts {
		switch v := part.(type) {
		case model.TextPart:
			if v.Text != "" {
				blocks = append(blocks, wireBlock{Type: "text", Text: v.Text})
			}
		case model.ToolUsePart:
			blocks = append(blocks, wireBlock{Type: "tool_use", ID: v.ID, Name: v.Name, Input: toRaw(v.Input)})
		case model.ToolResultPart:
			blocks = append(blocks, wireBlock{Type: "tool_result", ToolUseID: v.ToolUseID, Content: toolResultText(v.Content), IsError: v.IsError})
		}
	}
	return blocks
}

func toRaw(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

func toolResultText(content any) string {
	switch c := content.(type) {
	case nil:
		return ""
	case string:
		return c
	case []byte:
		return string(c)
	default:
		data, err := json.Marshal(c)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

func translateResponse(rb responseBody, nameMap map[string]string) *model.Response {
	resp := &model.Response{StopReason: rb.StopReason}
	for _, b := range rb.Content {
		switch b.Type {
		case "text":
			if b.Text == "" {
				continue
			}
			resp.Content = append(resp.Content, model.Message{
				Role:  model.ConversationRoleAssistant,
				Parts: []model.Part{model.TextPart{Text: b.Text}},
			})
		case "tool_use":
			name := b.Name
			if canonical, ok := nameMap[name]; ok {
				name = canonical
			}
			resp.ToolCalls = append(resp.ToolCalls, model.ToolCall{Name: name, Payload: b.Input, ID: b.ID})
		}
	}
	if rb.Usage.InputTokens != 0 || rb.Usage.OutputTokens != 0 {
		resp.Usage = model.TokenUsage{
			InputTokens:  rb.Usage.InputTokens,
			OutputTokens: rb.Usage.OutputTokens,
			TotalTokens:  rb.Usage.InputTokens + rb.Usage.OutputTokens,
		}
	}
	return resp
}

func classifyError(err error, op string) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		kind := model.ProviderErrorKindUnknown
		retryable := false
		switch apiErr.ErrorCode() {
		case "AccessDeniedException":
			kind = model.ProviderErrorKindAuth
		case "ValidationException":
			kind = model.ProviderErrorKindInvalidRequest
		case "ThrottlingException":
			kind = model.ProviderErrorKindRateLimited
			retryable = true
		case "ServiceUnavailableException", "ModelTimeoutException":
			kind = model.ProviderErrorKindUnavailable
			retryable = true
		}
		pe := model.NewProviderError("bedrock", op, 0, kind, apiErr.ErrorCode(), apiErr.ErrorMessage(), "", retryable, err)
		if kind == model.ProviderErrorKindRateLimited {
			return fmt.Errorf("%w: %w", model.ErrRateLimited, pe)
		}
		return pe
	}
	return model.NewProviderError("bedrock", op, 0, model.ProviderErrorKindUnknown, "", err.Error(), "", false, err)
}

func strPtr(s string) *string { return &s }
