package bedrock

import (
	"encoding/json"
	"io"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/conversantai/retrieval-engine/model"
)

// wireEvent is the subset of Bedrock's Anthropic streaming event shapes this
// adapter interprets: message_start carries nothing we need, content_block_start
// announces a new block (text or tool_use), content_block_delta carries
// incremental text or partial_json, message_delta carries the stop reason and
// usage, message_stop ends the stream.
type wireEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
	Delta struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
		StopReason  string `json:"stop_reason"`
	} `json:"delta"`
	ContentBlock struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"content_block"`
	Usage struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// bedrockStreamer adapts *bedrockruntime.InvokeModelWithResponseStreamEventStream
// into a model.Streamer, tracking in-flight tool_use blocks by content index
// so the streamed JSON arguments (in content_block_delta) carry the tool
// call's ID announced in content_block_start. The name travels only on the
// first ChunkTypeToolCallDelta chunk of each call (the one emitted for
// content_block_start); later argument chunks carry the ID alone. No
// ChunkTypeToolCall chunk is emitted: callers assemble each call from its
// delta chunks.
type bedrockStreamer struct {
	stream    *bedrockruntime.InvokeModelWithResponseStreamEventStream
	nameMap   map[string]string
	toolByIdx map[int]string
	events    <-chan types.ResponseStreamUnion
}

func newStreamer(stream *bedrockruntime.InvokeModelWithResponseStreamEventStream, nameMap map[string]string) *bedrockStreamer {
	return &bedrockStreamer{
		stream:    stream,
		nameMap:   nameMap,
		toolByIdx: make(map[int]string),
		events:    stream.Events(),
	}
}

func (s *bedrockStreamer) Recv() (model.Chunk, error) {
	for raw := range s.events {
		member, ok := raw.(*types.ResponseStreamMemberChunk)
		if !ok || member == nil {
			continue
		}
		var ev wireEvent
		if err := json.Unmarshal(member.Value.Bytes, &ev); err != nil {
			return model.Chunk{}, err
		}
		chunk, ok := s.translate(ev)
		if !ok {
			continue
		}
		return chunk, nil
	}
	if err := s.stream.Err(); err != nil {
		return model.Chunk{}, classifyError(err, "invoke_model_stream.recv")
	}
	return model.Chunk{}, io.EOF
}

func (s *bedrockStreamer) translate(ev wireEvent) (model.Chunk, bool) {
	switch ev.Type {
	case "content_block_start":
		if ev.ContentBlock.Type == "tool_use" {
			name := ev.ContentBlock.Name
			if canonical, ok := s.nameMap[name]; ok {
				name = canonical
			}
			s.toolByIdx[ev.Index] = ev.ContentBlock.ID
			return model.Chunk{
				Type:          model.ChunkTypeToolCallDelta,
				ToolCallDelta: &model.ToolCallDelta{ID: ev.ContentBlock.ID, Name: name},
			}, true
		}
		return model.Chunk{}, false
	case "content_block_delta":
		switch ev.Delta.Type {
		case "text_delta":
			if ev.Delta.Text == "" {
				return model.Chunk{}, false
			}
			return model.Chunk{
				Type: model.ChunkTypeText,
				Message: &model.Message{
					Role:  model.ConversationRoleAssistant,
					Parts: []model.Part{model.TextPart{Text: ev.Delta.Text}},
				},
			}, true
		case "input_json_delta":
			id := s.toolByIdx[ev.Index]
			return model.Chunk{
				Type:          model.ChunkTypeToolCallDelta,
				ToolCallDelta: &model.ToolCallDelta{ID: id, Delta: ev.Delta.PartialJSON},
			}, true
		}
		return model.Chunk{}, false
	case "message_delta":
		return model.Chunk{
			Type:       model.ChunkTypeStop,
			StopReason: ev.Delta.StopReason,
			UsageDelta: &model.TokenUsage{OutputTokens: ev.Usage.OutputTokens},
		}, true
	case "message_stop":
		return model.Chunk{Type: model.ChunkTypeStop}, true
	default:
		return model.Chunk{}, false
	}
}

func (s *bedrockStreamer) Close() error {
	return s.stream.Close()
}

func (s *bedrockStreamer) Metadata() map[string]any {
	return nil
}
