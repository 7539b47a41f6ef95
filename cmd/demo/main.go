// Command demo drives one pipeline.Run against fake model, search, and
// widget providers and prints the resulting event stream as JSON lines. It
// requires no API key or external service, for local testing and as living
// documentation of the event protocol described in SPEC_FULL.md.
//
// Usage:
//
//	go run ./cmd/demo "3-star hotels near Shibuya with breakfast under $200"
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/conversantai/retrieval-engine/action"
	"github.com/conversantai/retrieval-engine/classify"
	"github.com/conversantai/retrieval-engine/demo"
	"github.com/conversantai/retrieval-engine/model"
	"github.com/conversantai/retrieval-engine/pipeline"
	"github.com/conversantai/retrieval-engine/researcher"
	"github.com/conversantai/retrieval-engine/session"
	"github.com/conversantai/retrieval-engine/streamevent"
	"github.com/conversantai/retrieval-engine/synth"
	"github.com/conversantai/retrieval-engine/widget"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	query := strings.Join(os.Args[1:], " ")
	if query == "" {
		query = "3-star hotels near Shibuya with breakfast under $200"
	}

	registry := action.NewRegistry()
	_ = registry.Register(&action.Spec{Name: action.Done})
	_ = registry.Register(demo.WebSearch())

	widgets := widget.NewRegistry()
	for _, spec := range demo.Widgets(nil) {
		widgets.Register(spec)
	}

	client := &fakeClient{}
	p := pipeline.New(
		classify.New(client, nil),
		researcher.New(client, registry, nil, nil, nil),
		widgets,
		synth.New(client, nil),
		synth.NewFollowUpGenerator(client, nil),
		nil,
	)

	ctx := context.Background()
	sess := session.New("demo", nil, 0, nil)
	unsub := sess.Subscribe(ctx, streamevent.SinkFunc(func(_ context.Context, ev streamevent.Event) error {
		return printEvent(os.Stdout, ev)
	}))
	defer unsub()

	p.Run(ctx, sess, pipeline.Request{
		Query: query,
		Mode:  action.ModeBalanced,
	})
	return nil
}

func printEvent(w io.Writer, ev streamevent.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

// fakeClient is an offline model.Client: Complete answers the classifier and
// follow-up generator with canned JSON; Stream answers the researcher's
// tool-calling loop with one web_search call followed by done, and answers
// the writer with a short canned answer naming the query.
type fakeClient struct {
	streamCalls int
}

func (c *fakeClient) Complete(_ context.Context, req *model.Request) (*model.Response, error) {
	if isClassifyRequest(req) {
		return jsonResponse(`{"standaloneFollowUp":"","classification":{"skipSearch":false,"academicSearch":false,"personalSearch":false,"showWeatherWidget":false,"showStockWidget":false,"showCalculationWidget":false,"showProductWidget":false,"showHotelWidget":true,"showPlaceWidget":false,"showMovieWidget":false}}`), nil
	}
	return jsonResponse(`["Tell me more about amenities?","What about nearby restaurants?"]`), nil
}

func (c *fakeClient) Stream(_ context.Context, req *model.Request) (model.Streamer, error) {
	if len(req.Tools) > 0 {
		c.streamCalls++
		switch c.streamCalls {
		case 1:
			return &fakeStreamer{chunks: []model.Chunk{
				{Type: model.ChunkTypeToolCall, ToolCall: &model.ToolCall{ID: "call1", Name: "web_search", Payload: json.RawMessage(`{"queries":["demo query"]}`)}},
			}}, nil
		default:
			return &fakeStreamer{chunks: []model.Chunk{
				{Type: model.ChunkTypeToolCall, ToolCall: &model.ToolCall{ID: "call2", Name: "done", Payload: json.RawMessage(`{}`)}},
			}}, nil
		}
	}
	return &fakeStreamer{chunks: []model.Chunk{
		textChunk("This is a demo answer produced by fake providers. "),
		textChunk("Replace cmd/demo's fakeClient with a real model.Client to see live results."),
		{Type: model.ChunkTypeStop},
	}}, nil
}

func isClassifyRequest(req *model.Request) bool {
	for _, m := range req.Messages {
		if m.Role != model.ConversationRoleSystem {
			continue
		}
		for _, p := range m.Parts {
			if t, ok := p.(model.TextPart); ok && strings.Contains(t.Text, "You classify a user query") {
				return true
			}
		}
	}
	return false
}

func textChunk(text string) model.Chunk {
	return model.Chunk{
		Type:    model.ChunkTypeText,
		Message: &model.Message{Role: model.ConversationRoleAssistant, Parts: []model.Part{model.TextPart{Text: text}}},
	}
}

func jsonResponse(text string) *model.Response {
	return &model.Response{Content: []model.Message{{
		Role:  model.ConversationRoleAssistant,
		Parts: []model.Part{model.TextPart{Text: text}},
	}}}
}

type fakeStreamer struct {
	chunks []model.Chunk
	i      int
}

func (s *fakeStreamer) Recv() (model.Chunk, error) {
	if s.i >= len(s.chunks) {
		return model.Chunk{}, io.EOF
	}
	c := s.chunks[s.i]
	s.i++
	return c, nil
}

func (s *fakeStreamer) Close() error             { return nil }
func (s *fakeStreamer) Metadata() map[string]any { return nil }
