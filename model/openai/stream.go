package openai

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/conversantai/retrieval-engine/model"
)

// streamer adapts an OpenAI chat completion streaming response to model.Streamer.
type streamer struct {
	ctx    context.Context
	cancel context.CancelFunc
	stream *ssestream.Stream[sdk.ChatCompletionChunk]

	chunks chan model.Chunk

	errMu    sync.Mutex
	errSet   bool
	finalErr error

	metaMu   sync.RWMutex
	metadata map[string]any

	toolCalls map[int]*toolCallBuffer
}

type toolCallBuffer struct {
	id   string
	name string
	args []string
}

func newStreamer(ctx context.Context, stream *ssestream.Stream[sdk.ChatCompletionChunk]) model.Streamer {
	cctx, cancel := context.WithCancel(ctx)
	s := &streamer{
		ctx:       cctx,
		cancel:    cancel,
		stream:    stream,
		chunks:    make(chan model.Chunk, 32),
		toolCalls: make(map[int]*toolCallBuffer),
	}
	go s.run()
	return s
}

func (s *streamer) Recv() (model.Chunk, error) {
	select {
	case chunk, ok := <-s.chunks:
		if ok {
			return chunk, nil
		}
		if err := s.err(); err != nil {
			return model.Chunk{}, err
		}
		return model.Chunk{}, io.EOF
	case <-s.ctx.Done():
		err := s.ctx.Err()
		s.setErr(err)
		return model.Chunk{}, err
	}
}

func (s *streamer) Close() error {
	s.cancel()
	if s.stream == nil {
		return nil
	}
	return s.stream.Close()
}

func (s *streamer) Metadata() map[string]any {
	s.metaMu.RLock()
	defer s.metaMu.RUnlock()
	if len(s.metadata) == 0 {
		return nil
	}
	out := make(map[string]any, len(s.metadata))
	for k, v := range s.metadata {
		out[k] = v
	}
	return out
}

func (s *streamer) run() {
	defer close(s.chunks)
	defer func() {
		if s.stream != nil {
			_ = s.stream.Close()
		}
	}()

	for {
		select {
		case <-s.ctx.Done():
			s.setErr(s.ctx.Err())
			return
		default:
		}
		if !s.stream.Next() {
			if err := s.stream.Err(); err != nil {
				s.setErr(classifyError(err, "chat.completions.stream.next"))
			} else if err := s.ctx.Err(); err != nil {
				s.setErr(err)
			} else {
				s.flushToolCalls()
				s.setErr(nil)
			}
			return
		}
		if err := s.handle(s.stream.Current()); err != nil {
			s.setErr(err)
			return
		}
	}
}

func (s *streamer) handle(chunk sdk.ChatCompletionChunk) error {
	if chunk.Usage.TotalTokens != 0 || chunk.Usage.PromptTokens != 0 || chunk.Usage.CompletionTokens != 0 {
		usage := model.TokenUsage{
			InputTokens:  int(chunk.Usage.PromptTokens),
			OutputTokens: int(chunk.Usage.CompletionTokens),
			TotalTokens:  int(chunk.Usage.TotalTokens),
		}
		s.metaMu.Lock()
		if s.metadata == nil {
			s.metadata = make(map[string]any)
		}
		s.metadata["usage"] = usage
		s.metaMu.Unlock()
		if err := s.emit(model.Chunk{Type: model.ChunkTypeUsage, UsageDelta: &usage}); err != nil {
			return err
		}
	}
	for _, choice := range chunk.Choices {
		if choice.Delta.Content != "" {
			if err := s.emit(model.Chunk{
				Type: model.ChunkTypeText,
				Message: &model.Message{
					Role:  model.ConversationRoleAssistant,
					Parts: []model.Part{model.TextPart{Text: choice.Delta.Content}},
				},
			}); err != nil {
				return err
			}
		}
		for _, tc := range choice.Delta.ToolCalls {
			idx := int(tc.Index)
			buf := s.toolCalls[idx]
			if buf == nil {
				buf = &toolCallBuffer{}
				s.toolCalls[idx] = buf
			}
			if tc.ID != "" {
				buf.id = tc.ID
			}
			if tc.Function.Name != "" {
				buf.name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				buf.args = append(buf.args, tc.Function.Arguments)
				if err := s.emit(model.Chunk{
					Type: model.ChunkTypeToolCallDelta,
					ToolCallDelta: &model.ToolCallDelta{
						Name:  buf.name,
						ID:    buf.id,
						Delta: tc.Function.Arguments,
					},
				}); err != nil {
					return err
				}
			}
		}
		if choice.FinishReason != "" {
			if err := s.flushToolCalls(); err != nil {
				return err
			}
			if err := s.emit(model.Chunk{Type: model.ChunkTypeStop, StopReason: string(choice.FinishReason)}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *streamer) flushToolCalls() error {
	for idx, buf := range s.toolCalls {
		payload := "{}"
		if len(buf.args) > 0 {
			payload = joinFragments(buf.args)
		}
		if err := s.emit(model.Chunk{
			Type: model.ChunkTypeToolCall,
			ToolCall: &model.ToolCall{
				Name:    buf.name,
				ID:      buf.id,
				Payload: json.RawMessage(payload),
			},
		}); err != nil {
			return err
		}
		delete(s.toolCalls, idx)
	}
	return nil
}

func joinFragments(frags []string) string {
	out := ""
	for _, f := range frags {
		out += f
	}
	return out
}

func (s *streamer) emit(chunk model.Chunk) error {
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	case s.chunks <- chunk:
		return nil
	}
}

func (s *streamer) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if !s.errSet {
		s.errSet = true
		s.finalErr = err
	}
}

func (s *streamer) err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.finalErr
}
