package synth

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/conversantai/retrieval-engine/model"
	"github.com/conversantai/retrieval-engine/telemetry"
	"github.com/conversantai/retrieval-engine/textsim"
)

// MaxFollowUps is the cap on follow-up suggestions returned.
const MaxFollowUps = 3

type (
	// FollowUpRequest captures one follow-up generation call's inputs.
	FollowUpRequest struct {
		Query   string
		Answer  string
		Intent  string
		Cards   []string
		Session string
	}

	// FollowUpGenerator produces up to MaxFollowUps near-duplicate-free
	// suggested questions from a small LLM call.
	FollowUpGenerator struct {
		client model.Client
		log    telemetry.Logger
	}
)

// NewFollowUpGenerator constructs a FollowUpGenerator.
func NewFollowUpGenerator(client model.Client, log telemetry.Logger) *FollowUpGenerator {
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	return &FollowUpGenerator{client: client, log: log}
}

// Generate issues the follow-up call and returns up to MaxFollowUps
// deduplicated suggestions. On any failure it logs and returns an empty
// slice rather than propagating the error, since follow-ups are a
// best-effort enhancement.
func (g *FollowUpGenerator) Generate(ctx context.Context, req FollowUpRequest) []string {
	resp, err := g.client.Complete(ctx, g.buildRequest(req))
	if err != nil {
		g.log.Warn(ctx, "followup: provider call failed", "error", err.Error())
		return nil
	}
	raw := firstJSONArray(resp)
	if raw == "" {
		return nil
	}
	var candidates []string
	if err := json.Unmarshal([]byte(raw), &candidates); err != nil {
		g.log.Warn(ctx, "followup: parse failure", "error", err.Error())
		return nil
	}
	return Dedupe(candidates)
}

// Dedupe removes near-duplicate suggestions (token-set Jaccard similarity >
// 0.5 after stopword removal) and caps the result at MaxFollowUps.
func Dedupe(candidates []string) []string {
	var out []string
	for _, c := range candidates {
		if len(out) >= MaxFollowUps {
			break
		}
		duplicate := false
		for _, kept := range out {
			if textsim.Duplicate(c, kept) {
				duplicate = true
				break
			}
		}
		if !duplicate {
			out = append(out, c)
		}
	}
	return out
}

func (g *FollowUpGenerator) buildRequest(req FollowUpRequest) *model.Request {
	prompt := fmt.Sprintf(
		"Given the question %q and the answer below, suggest up to %d natural follow-up questions as a JSON array of strings and nothing else.\n\nAnswer:\n%s\n\nRelated items: %v",
		req.Query, MaxFollowUps, req.Answer, req.Cards,
	)
	return &model.Request{
		ModelClass: model.ModelClassSmall,
		Messages: []*model.Message{
			{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: prompt}}},
		},
		Temperature: 0.3,
		MaxTokens:   256,
	}
}

func firstJSONArray(resp *model.Response) string {
	for _, msg := range resp.Content {
		for _, part := range msg.Parts {
			if t, ok := part.(model.TextPart); ok && t.Text != "" {
				return t.Text
			}
		}
	}
	return ""
}
