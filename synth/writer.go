// Package synth implements the synthesizer/writer that streams the final
// answer text onto a session's text block, plus the follow-up question
// generator that runs once the answer is far enough along to summarize.
package synth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/conversantai/retrieval-engine/block"
	"github.com/conversantai/retrieval-engine/model"
	"github.com/conversantai/retrieval-engine/session"
	"github.com/conversantai/retrieval-engine/telemetry"
)

// earlyFollowUpChars/earlyFollowUpChunks bound when follow-up generation
// kicks off early, using the in-progress answer.
const (
	earlyFollowUpChars  = 1000
	earlyFollowUpChunks = 50
)

type (
	// Writer streams a synthesizer's model output onto a session's text block.
	Writer struct {
		client model.Client
		log    telemetry.Logger
	}

	// Request captures one synthesis call's inputs.
	Request struct {
		SystemInstructions string
		History            []*model.Message
	}

	// Outcome is the writer's result.
	Outcome struct {
		Answer  string
		BlockID string
	}
)

// New constructs a Writer.
func New(client model.Client, log telemetry.Logger) *Writer {
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	return &Writer{client: client, log: log}
}

// Stream runs the synthesis call and streams its text onto sess, invoking
// onEarlyThreshold once (if non-nil) the first time the accumulated answer
// crosses the early follow-up threshold, passing the in-progress text.
func (w *Writer) Stream(ctx context.Context, sess *session.Session, req Request, onEarlyThreshold func(partial string)) (Outcome, error) {
	messages := req.History
	if req.SystemInstructions != "" {
		messages = append([]*model.Message{{Role: model.ConversationRoleSystem, Parts: []model.Part{model.TextPart{Text: req.SystemInstructions}}}}, messages...)
	}

	stream, err := w.client.Stream(ctx, &model.Request{Messages: messages, Stream: true})
	if err != nil {
		return Outcome{}, fmt.Errorf("synth: stream call failed: %w", err)
	}
	defer stream.Close()

	var (
		blockID    string
		answer     strings.Builder
		chunkCount int
		earlyFired bool
	)

	for {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}
		chunk, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Outcome{}, fmt.Errorf("synth: stream error: %w", err)
		}

		switch chunk.Type {
		case model.ChunkTypeToolCall, model.ChunkTypeToolCallDelta:
			return Outcome{}, fmt.Errorf("synth: unexpected tool-call chunk from synthesizer call")
		case model.ChunkTypeText:
			text := chunkText(chunk)
			if text == "" {
				continue
			}
			chunkCount++
			answer.WriteString(text)

			if err := ctx.Err(); err != nil {
				return Outcome{}, err
			}
			if blockID == "" {
				blockID = uuid.NewString()
				sess.EmitBlock(ctx, block.NewText(blockID, answer.String()))
			} else {
				sess.UpdateBlock(ctx, blockID, block.ReplaceData(answer.String()))
			}

			if !earlyFired && onEarlyThreshold != nil &&
				(answer.Len() >= earlyFollowUpChars || chunkCount >= earlyFollowUpChunks) {
				earlyFired = true
				onEarlyThreshold(answer.String())
			}
		}
	}

	return Outcome{Answer: answer.String(), BlockID: blockID}, nil
}

func chunkText(c model.Chunk) string {
	if c.Message == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range c.Message.Parts {
		if t, ok := part.(model.TextPart); ok {
			sb.WriteString(t.Text)
		}
	}
	return sb.String()
}
