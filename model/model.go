// Package model defines the provider-agnostic request/response/streaming
// types shared by the researcher, classifier, and synthesizer, plus the
// Client/Streamer interfaces provider adapters implement. Messages are
// modeled as typed parts (text, thinking, tool use/result) rather than
// flattened strings, so a tool call's arguments and a provider's reasoning
// trace survive round-tripping through history.
package model

import (
	"context"
	"encoding/json"
	"errors"
)

// ConversationRole is the role for a message in a conversation.
type ConversationRole string

const (
	// ConversationRoleSystem is the role for system messages.
	ConversationRoleSystem ConversationRole = "system"
	// ConversationRoleUser is the role for user messages.
	ConversationRoleUser ConversationRole = "user"
	// ConversationRoleAssistant is the role for assistant messages.
	ConversationRoleAssistant ConversationRole = "assistant"
)

type (
	// Part is a marker interface implemented by every message content block.
	Part interface {
		isPart()
	}

	// TextPart is a plain text content block.
	TextPart struct {
		Text string
	}

	// ThinkingPart represents provider-issued reasoning content. Callers treat
	// it as opaque and surface it according to UI policy; the researcher
	// extracts the first reasoning text it sees across iterations and
	// surfaces it once as an explanation section.
	ThinkingPart struct {
		// Text is the provider-visible reasoning text when available.
		Text string
		// Signature is the provider-issued signature for Text when present.
		Signature string
		// Redacted carries provider-issued reasoning content in redacted form
		// when plaintext Text is not available.
		Redacted []byte
		// Final reports whether this is the last reasoning block for the turn.
		Final bool
	}

	// CitationsPart is generated content paired with citation metadata, used
	// by providers that support native document citations.
	CitationsPart struct {
		Text      string
		Citations []Citation
	}

	// Citation links generated content back to a source location.
	Citation struct {
		Title         string
		Source        string
		SourceContent []string
	}

	// ToolUsePart declares a tool invocation by the assistant.
	ToolUsePart struct {
		ID    string
		Name  string
		Input any
	}

	// ToolResultPart carries a tool result attached to a follow-up message so
	// the model can read it on the next turn.
	ToolResultPart struct {
		ToolUseID string
		Content   any
		IsError   bool
	}

	// Message is a single chat message: an ordered list of typed parts plus
	// optional application-specific metadata.
	Message struct {
		Role  ConversationRole
		Parts []Part
		Meta  map[string]any
	}

	// ToolDefinition describes a tool exposed to the model: its name,
	// description, and JSON Schema input shape.
	ToolDefinition struct {
		Name        string
		Description string
		InputSchema any
	}

	// ToolCall is a requested tool invocation from the model.
	ToolCall struct {
		// Name is the tool identifier requested by the model.
		Name string
		// Payload is the canonical JSON arguments supplied by the model.
		// Provider adapters populate this as canonical json.RawMessage;
		// callers treat it as opaque JSON.
		Payload json.RawMessage
		// ID is the provider-issued identifier for this tool call, used to
		// correlate streamed deltas and the eventual tool-result message.
		ID string
	}

	// ToolCallDelta is an incremental tool-call argument fragment streamed by
	// providers while they are still constructing the full input JSON. It is
	// a best-effort UX signal only; the canonical payload is the final
	// ToolCall delivered via ChunkTypeToolCall.
	ToolCallDelta struct {
		Name  string
		ID    string
		Delta string
	}

	// ToolChoiceMode controls how the model uses tools for a request.
	ToolChoiceMode string

	// ToolChoice configures optional tool-use behavior for a Request.
	ToolChoice struct {
		Mode ToolChoiceMode
		// Name identifies the tool to request when Mode is ToolChoiceModeTool.
		Name string
	}

	// TokenUsage tracks token counts for a model call.
	TokenUsage struct {
		InputTokens      int
		OutputTokens     int
		TotalTokens      int
		CacheReadTokens  int
		CacheWriteTokens int
	}

	// ThinkingOptions configures provider thinking/reasoning behavior.
	ThinkingOptions struct {
		Enable       bool
		Interleaved  bool
		BudgetTokens int
	}

	// CacheOptions configures prompt caching behavior for a request. Provider
	// adapters translate these into provider-specific caching directives and
	// ignore them when caching is unsupported.
	CacheOptions struct {
		// AfterSystem places a checkpoint after all system messages.
		AfterSystem bool
		// AfterTools places a checkpoint after tool definitions.
		AfterTools bool
	}

	// ModelClass identifies a model family; providers map classes to
	// concrete model identifiers.
	ModelClass string

	// Request captures the inputs for a single model invocation.
	Request struct {
		// Model is the provider-specific model identifier when specified.
		Model string
		// ModelClass selects a model family when Model is not specified.
		ModelClass ModelClass

		Messages []*Message

		Temperature float32
		MaxTokens   int

		Tools      []*ToolDefinition
		ToolChoice *ToolChoice

		Stream bool

		Thinking *ThinkingOptions
		Cache    *CacheOptions
	}

	// Response is the result of a non-streaming invocation.
	Response struct {
		Content   []Message
		ToolCalls []ToolCall
		Usage     TokenUsage
		// StopReason records why generation stopped (provider-specific).
		StopReason string
	}

	// Chunk is a single streaming event from the model, classified by Type.
	Chunk struct {
		Type string

		// Message carries incremental assistant content for text or thinking
		// chunks when present.
		Message *Message

		// Thinking carries incremental reasoning text for providers that
		// surface it out-of-band from Message.
		Thinking string

		// ToolCall carries a single completed tool invocation when Type is
		// ChunkTypeToolCall.
		ToolCall *ToolCall

		// ToolCallDelta carries an incremental argument fragment when Type is
		// ChunkTypeToolCallDelta.
		ToolCallDelta *ToolCallDelta

		UsageDelta *TokenUsage

		// StopReason records why streaming stopped when Type is ChunkTypeStop.
		StopReason string
	}

	// Client is the provider-agnostic model client implemented by each
	// provider adapter.
	Client interface {
		// Complete performs a non-streaming model invocation.
		Complete(ctx context.Context, req *Request) (*Response, error)
		// Stream performs a streaming model invocation.
		Stream(ctx context.Context, req *Request) (Streamer, error)
	}

	// Streamer delivers incremental model output. Callers drain Recv until it
	// returns io.EOF or another terminal error, then call Close.
	Streamer interface {
		Recv() (Chunk, error)
		Close() error
		// Metadata carries provider-specific metadata collected during the call.
		Metadata() map[string]any
	}
)

const (
	// ToolChoiceModeAuto lets the provider decide whether to call tools.
	ToolChoiceModeAuto ToolChoiceMode = "auto"
	// ToolChoiceModeNone disables tool use for the request.
	ToolChoiceModeNone ToolChoiceMode = "none"
	// ToolChoiceModeAny forces the model to request at least one tool.
	ToolChoiceModeAny ToolChoiceMode = "any"
	// ToolChoiceModeTool forces the model to request the tool named in ToolChoice.Name.
	ToolChoiceModeTool ToolChoiceMode = "tool"
)

const (
	// ChunkTypeText identifies a chunk carrying assistant text.
	ChunkTypeText = "text"
	// ChunkTypeToolCall identifies a chunk carrying a completed tool invocation.
	ChunkTypeToolCall = "tool_call"
	// ChunkTypeToolCallDelta identifies a chunk carrying an incremental tool-call argument fragment.
	ChunkTypeToolCallDelta = "tool_call_delta"
	// ChunkTypeThinking identifies a chunk carrying reasoning content.
	ChunkTypeThinking = "thinking"
	// ChunkTypeUsage identifies a chunk carrying a usage delta.
	ChunkTypeUsage = "usage"
	// ChunkTypeStop identifies the terminal chunk carrying a stop reason.
	ChunkTypeStop = "stop"
)

const (
	// ModelClassHighReasoning selects a high-reasoning model family, used for
	// quality-mode research and synthesis.
	ModelClassHighReasoning ModelClass = "high-reasoning"
	// ModelClassDefault selects the default model family.
	ModelClassDefault ModelClass = "default"
	// ModelClassSmall selects a small/cheap model family, used for
	// classification and follow-up generation.
	ModelClassSmall ModelClass = "small"
)

// ErrStreamingUnsupported indicates the provider does not support streaming.
var ErrStreamingUnsupported = errors.New("model: streaming not supported")

// ErrRateLimited indicates the provider rejected the request due to rate
// limiting after exhausting any configured retries.
var ErrRateLimited = errors.New("model: rate limited")

func (TextPart) isPart()       {}
func (ThinkingPart) isPart()   {}
func (CitationsPart) isPart()  {}
func (ToolUsePart) isPart()    {}
func (ToolResultPart) isPart() {}
