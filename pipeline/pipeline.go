// Package pipeline wires the per-request orchestration: classify the query,
// fan out to the widget executor and the researcher concurrently, stream the
// synthesized answer, generate follow-ups, and emit the terminal end event.
// This is the cooperative-concurrency shape described for the engine: the
// agent loop awaits both the widget executor and the researcher, each of
// which internally dispatches its own parallel subtasks.
package pipeline

import (
	"context"
	"sync"

	"github.com/conversantai/retrieval-engine/action"
	"github.com/conversantai/retrieval-engine/block"
	"github.com/conversantai/retrieval-engine/classify"
	"github.com/conversantai/retrieval-engine/model"
	"github.com/conversantai/retrieval-engine/researcher"
	"github.com/conversantai/retrieval-engine/session"
	"github.com/conversantai/retrieval-engine/streamevent"
	"github.com/conversantai/retrieval-engine/synth"
	"github.com/conversantai/retrieval-engine/telemetry"
	"github.com/conversantai/retrieval-engine/widget"
)

type (
	// Turn captures one request's chat turn for the classifier/researcher.
	Turn struct {
		Role    string
		Content string
	}

	// Request captures one pipeline run's inputs, mirroring the external
	// request shape (message, history, optimization mode, system instructions).
	Request struct {
		Query              string
		History            []Turn
		Mode               action.Mode
		EnabledSources     []string
		SystemInstructions string
	}

	// Pipeline orchestrates one request end to end against a session.
	Pipeline struct {
		classifier *classify.Classifier
		researcher *researcher.Researcher
		widgets    *widget.Registry
		writer     *synth.Writer
		followups  *synth.FollowUpGenerator
		log        telemetry.Logger
	}
)

// New constructs a Pipeline from its component stages.
func New(
	classifier *classify.Classifier,
	researcherStage *researcher.Researcher,
	widgets *widget.Registry,
	writer *synth.Writer,
	followups *synth.FollowUpGenerator,
	log telemetry.Logger,
) *Pipeline {
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	return &Pipeline{
		classifier: classifier,
		researcher: researcherStage,
		widgets:    widgets,
		writer:     writer,
		followups:  followups,
		log:        log,
	}
}

// Run drives sess through classify → (widgets ‖ research) → synthesize →
// follow-ups → end. Any stage error is surfaced as a terminal error event on
// sess rather than returned, since the session itself is the caller's only
// remaining channel once streaming has started.
func (p *Pipeline) Run(ctx context.Context, sess *session.Session, req Request) {
	classification := p.classifier.Classify(ctx, classify.Request{
		History:        toClassifyHistory(req.History),
		Query:          req.Query,
		EnabledSources: req.EnabledSources,
	})

	var (
		widgetResults []widget.Result
		researchOut   researcher.Result
		researchErr   error
	)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		widgetResults = widget.Run(ctx, sess, p.widgets, classification.Classification, p.log)
	}()
	go func() {
		defer wg.Done()
		researchOut, researchErr = p.researcher.Run(ctx, sess, researcher.Request{
			Classification: classification.Classification,
			Mode:           req.Mode,
			Sources:        req.EnabledSources,
			History:        toResearchHistory(req.History, classification.StandaloneFollowUp),
		})
	}()
	wg.Wait()

	if researchErr != nil {
		sess.Emit(ctx, streamevent.Event{Type: streamevent.TypeError, Error: researchErr.Error()})
		return
	}

	if len(researchOut.Sources) > 0 {
		sess.EmitBlock(ctx, block.NewSource("sources", researchOut.Sources))
	}

	writerHistory := append(researchOut.History, &model.Message{
		Role:  model.ConversationRoleUser,
		Parts: []model.Part{model.TextPart{Text: "Write the final answer for the user now."}},
	})

	var (
		earlySuggestions []string
		earlyMu          sync.Mutex
		earlyWG          sync.WaitGroup
	)
	outcome, err := p.writer.Stream(ctx, sess, synth.Request{
		SystemInstructions: req.SystemInstructions,
		History:            writerHistory,
	}, func(partial string) {
		earlyWG.Add(1)
		go func() {
			defer earlyWG.Done()
			result := p.followups.Generate(ctx, synth.FollowUpRequest{
				Query:  req.Query,
				Answer: partial,
				Cards:  widgetCardLabels(widgetResults),
			})
			earlyMu.Lock()
			earlySuggestions = result
			earlyMu.Unlock()
		}()
	})
	if err != nil {
		sess.Emit(ctx, streamevent.Event{Type: streamevent.TypeError, Error: err.Error()})
		return
	}

	earlyWG.Wait()
	suggestions := earlySuggestions
	if len(suggestions) == 0 {
		suggestions = p.followups.Generate(ctx, synth.FollowUpRequest{
			Query:  req.Query,
			Answer: outcome.Answer,
			Cards:  widgetCardLabels(widgetResults),
		})
	}

	scenario, uiDecision := widget.Classify(widgetResults)

	sess.End(ctx, streamevent.EndPayload{
		FollowUpSuggestions: suggestions,
		Scenario:            scenario,
		UIDecision:          uiDecision,
		Sections:            sess.Sections(),
		Sources:             researchOut.Sources,
	})
}

func toClassifyHistory(turns []Turn) []classify.Turn {
	out := make([]classify.Turn, len(turns))
	for i, t := range turns {
		out[i] = classify.Turn{Role: t.Role, Content: t.Content}
	}
	return out
}

func toResearchHistory(turns []Turn, standalone string) []*model.Message {
	history := make([]*model.Message, 0, len(turns)+1)
	for _, t := range turns {
		role := model.ConversationRoleUser
		if t.Role == "assistant" {
			role = model.ConversationRoleAssistant
		}
		history = append(history, &model.Message{Role: role, Parts: []model.Part{model.TextPart{Text: t.Content}}})
	}
	history = append(history, &model.Message{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: standalone}}})
	return history
}

func widgetCardLabels(results []widget.Result) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, string(r.Kind))
	}
	return out
}
