// Package researcher implements the iterative tool-calling agent loop: at
// each iteration it calls the LLM in streaming tool-call mode, executes the
// valid tool calls it requests in parallel, and appends their results to the
// message history, until the model calls done, produces no tool calls, or
// the mode's iteration budget is exhausted.
package researcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/conversantai/retrieval-engine/action"
	"github.com/conversantai/retrieval-engine/block"
	"github.com/conversantai/retrieval-engine/classify"
	"github.com/conversantai/retrieval-engine/model"
	"github.com/conversantai/retrieval-engine/reminder"
	"github.com/conversantai/retrieval-engine/session"
	"github.com/conversantai/retrieval-engine/streamevent"
	"github.com/conversantai/retrieval-engine/telemetry"
	"github.com/conversantai/retrieval-engine/urlnorm"
)

type (
	// Researcher drives the tool-calling loop for a single request.
	Researcher struct {
		client   model.Client
		registry *action.Registry
		log      telemetry.Logger
		tracer   telemetry.Tracer
		metrics  telemetry.Metrics
	}

	// Request captures one research run's inputs.
	Request struct {
		Classification classify.Classification
		Mode           action.Mode
		Sources        []string
		SystemPrompt   string
		// History is the prior conversation plus the standalone question,
		// already converted to model.Message.
		History []*model.Message
	}

	// Result is the researcher's output after the loop and finalization.
	Result struct {
		// Sources is the deduplicated, normalized citation list.
		Sources []block.Source
		// Explanation is the first reasoning output seen, if any.
		Explanation string
		// History is the final message history, for the synthesizer to
		// append its own system prompt to.
		History []*model.Message
	}

	pendingToolCall struct {
		id   string
		name string
		args []byte
	}
)

// New constructs a Researcher.
func New(client model.Client, registry *action.Registry, log telemetry.Logger, tracer telemetry.Tracer, metrics telemetry.Metrics) *Researcher {
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	return &Researcher{client: client, registry: registry, log: log, tracer: tracer, metrics: metrics}
}

// Run executes the loop against sess, emitting researchProgress events as it
// goes, and returns the finalized retrieval context. A streaming error from
// the LLM aborts the loop and is returned to the caller, which is expected to
// emit a terminal error event; action execution errors never abort the loop.
func (r *Researcher) Run(ctx context.Context, sess *session.Session, req Request) (Result, error) {
	maxIterations := req.Mode.MaxIterations()
	budget := reminder.NewBudget(maxIterations)

	history := make([]*model.Message, len(req.History))
	copy(history, req.History)
	if req.SystemPrompt != "" {
		history = append([]*model.Message{{Role: model.ConversationRoleSystem, Parts: []model.Part{model.TextPart{Text: req.SystemPrompt}}}}, history...)
	}

	enabled := r.registry.Enabled(req.Classification, req.Mode, req.Sources)
	defs := action.Definitions(enabled)

	var allChunks []action.Chunk
	var explanation string
	explanationSeen := false

	for i := 0; i < maxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		sess.Emit(ctx, streamevent.Event{
			Type:             streamevent.TypeResearchProgress,
			ResearchStep:     i + 1,
			MaxResearchSteps: maxIterations,
			CurrentAction:    "Starting iteration",
		})

		for _, rem := range budget.Reminders(i) {
			history = appendReminder(history, rem.Text)
		}

		calls, assistantMsg, err := r.planIteration(ctx, history, defs)
		if err != nil {
			return Result{}, err
		}
		if len(calls) == 0 {
			break
		}
		if calls[len(calls)-1].name == string(action.Done) {
			break
		}

		valid, invalidNames := r.validateCalls(calls)
		if len(valid) == 0 {
			r.log.Debug(ctx, "researcher: no valid tool calls, skipping iteration", "invalid", invalidNames)
			continue
		}

		history = append(history, assistantMsg)

		sess.Emit(ctx, streamevent.Event{
			Type:             streamevent.TypeResearchProgress,
			ResearchStep:     i + 1,
			MaxResearchSteps: maxIterations,
			CurrentAction:    describeActions(valid),
		})

		results := r.executeParallel(ctx, valid)
		history = append(history, toolResultMessage(valid, results))

		for _, out := range results {
			if out.Kind == action.OutputSearchResults {
				allChunks = append(allChunks, out.SearchResults...)
			}
			if out.Kind == action.OutputReasoning && !explanationSeen && out.Reasoning != "" {
				explanation = out.Reasoning
				explanationSeen = true
			}
		}
	}

	sess.Emit(ctx, streamevent.Event{Type: streamevent.TypeResearchComplete})

	if explanationSeen {
		sess.AddSection(ctx, block.Section{
			ID:      "explanation",
			Title:   "How I approached this",
			Content: explanation,
			Kind:    "explanation",
		})
	}

	return Result{
		Sources:     finalizeSources(allChunks),
		Explanation: explanation,
		History:     history,
	}, nil
}

// planIteration calls the LLM in streaming tool-call mode and accumulates
// deltas keyed by tool-call id, as well as the assistant message to append to
// history if any tool calls survive validation.
func (r *Researcher) planIteration(ctx context.Context, history []*model.Message, defs []*model.ToolDefinition) ([]pendingToolCall, *model.Message, error) {
	ctx, span := r.startSpan(ctx, "researcher.iteration")
	defer span.End()

	stream, err := r.client.Stream(ctx, &model.Request{
		Messages:   history,
		Tools:      defs,
		ToolChoice: &model.ToolChoice{Mode: model.ToolChoiceModeAuto},
		Stream:     true,
	})
	if err != nil {
		span.RecordError(err)
		return nil, nil, fmt.Errorf("researcher: planning call failed: %w", err)
	}
	defer stream.Close()

	type partial struct {
		name string
		args []byte
	}
	order := make([]string, 0, 4)
	byID := make(map[string]*partial)

	for {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		chunk, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			span.RecordError(err)
			return nil, nil, fmt.Errorf("researcher: stream error: %w", err)
		}
		switch chunk.Type {
		case model.ChunkTypeToolCall:
			tc := chunk.ToolCall
			if tc == nil {
				continue
			}
			if _, ok := byID[tc.ID]; !ok {
				order = append(order, tc.ID)
			}
			byID[tc.ID] = &partial{name: tc.Name, args: []byte(tc.Payload)}
		case model.ChunkTypeToolCallDelta:
			d := chunk.ToolCallDelta
			if d == nil {
				continue
			}
			p, ok := byID[d.ID]
			if !ok {
				p = &partial{name: d.Name}
				byID[d.ID] = p
				order = append(order, d.ID)
			}
			p.args = append(p.args, []byte(d.Delta)...)
		case model.ChunkTypeStop:
		}
	}

	if len(order) == 0 {
		return nil, nil, nil
	}

	calls := make([]pendingToolCall, 0, len(order))
	parts := make([]model.Part, 0, len(order))
	for _, id := range order {
		p := byID[id]
		calls = append(calls, pendingToolCall{id: id, name: p.name, args: p.args})
		var input any
		_ = json.Unmarshal(p.args, &input)
		parts = append(parts, model.ToolUsePart{ID: id, Name: p.name, Input: input})
	}

	return calls, &model.Message{Role: model.ConversationRoleAssistant, Parts: parts}, nil
}

// validateCalls drops tool calls with arguments failing their registered
// schema, returning the names of any dropped calls for diagnostics.
func (r *Researcher) validateCalls(calls []pendingToolCall) ([]pendingToolCall, []string) {
	var valid []pendingToolCall
	var invalid []string
	for _, c := range calls {
		if c.name == string(action.Done) {
			continue
		}
		if err := r.registry.Validate(action.Ident(c.name), c.args); err != nil {
			invalid = append(invalid, c.name)
			continue
		}
		valid = append(valid, c)
	}
	return valid, invalid
}

// executeParallel runs every valid tool call concurrently and returns
// results in request order.
func (r *Researcher) executeParallel(ctx context.Context, calls []pendingToolCall) []action.ActionOutput {
	results := make([]action.ActionOutput, len(calls))
	var wg sync.WaitGroup
	for i, c := range calls {
		spec, ok := r.registry.Get(action.Ident(c.name))
		if !ok {
			results[i] = action.ActionOutput{IsError: true, ErrorMessage: fmt.Sprintf("unknown action %q", c.name)}
			continue
		}
		wg.Add(1)
		go func(i int, spec *action.Spec, args []byte) {
			defer wg.Done()
			ctx, span := r.startSpan(ctx, "researcher.action."+string(spec.Name))
			defer span.End()
			out, err := spec.Execute(ctx, json.RawMessage(args))
			if err != nil {
				span.RecordError(err)
				results[i] = action.ActionOutput{IsError: true, ErrorMessage: err.Error()}
				return
			}
			results[i] = out
		}(i, spec, c.args)
	}
	wg.Wait()
	return results
}

func (r *Researcher) startSpan(ctx context.Context, name string) (context.Context, telemetry.Span) {
	tracer := r.tracer
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}
	return tracer.Start(ctx, name)
}

func toolResultMessage(calls []pendingToolCall, results []action.ActionOutput) *model.Message {
	parts := make([]model.Part, 0, len(calls))
	for i, c := range calls {
		out := results[i]
		var content any = out
		parts = append(parts, model.ToolResultPart{ToolUseID: c.id, Content: content, IsError: out.IsError})
	}
	return &model.Message{Role: model.ConversationRoleUser, Parts: parts}
}

func appendReminder(history []*model.Message, text string) []*model.Message {
	return append(history, &model.Message{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: text}}})
}

func describeActions(calls []pendingToolCall) string {
	names := make([]string, 0, len(calls))
	for _, c := range calls {
		names = append(names, c.name)
	}
	return fmt.Sprintf("Running %v", names)
}

// finalizeSources flattens chunks into a deduplicated source list, merging
// the content of later duplicates (by normalized URL) onto the first-seen
// entry, preserving first-seen order.
func finalizeSources(chunks []action.Chunk) []block.Source {
	index := make(map[string]int)
	var out []block.Source
	for _, c := range chunks {
		key := urlnorm.Key(c.Metadata.URL)
		if i, ok := index[key]; ok {
			out[i].Snippet += "\n" + c.Content
			continue
		}
		index[key] = len(out)
		out = append(out, block.Source{
			URL:       c.Metadata.URL,
			Title:     c.Metadata.Title,
			Snippet:   c.Content,
			Thumbnail: c.Metadata.Thumbnail,
			Images:    c.Metadata.Images,
			Author:    c.Metadata.Author,
			Date:      c.Metadata.Date,
		})
	}
	return out
}
