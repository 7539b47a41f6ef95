// Package classify implements the single-call intent classifier: given chat
// history, the raw query, and the enabled source set, it produces a
// standalone rewritten question and a set of widget/search flags. The
// classifier is stateless and purely functional: given equal inputs it
// produces equal outputs, achieved by using a low sampling temperature and a
// strict output schema.
package classify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/conversantai/retrieval-engine/model"
	"github.com/conversantai/retrieval-engine/telemetry"
)

type (
	// Classification is the widget-enable and search-skip flag set produced
	// by a single classifier call.
	Classification struct {
		SkipSearch            bool `json:"skipSearch"`
		AcademicSearch        bool `json:"academicSearch"`
		PersonalSearch        bool `json:"personalSearch"`
		ShowWeatherWidget     bool `json:"showWeatherWidget"`
		ShowStockWidget       bool `json:"showStockWidget"`
		ShowCalculationWidget bool `json:"showCalculationWidget"`
		ShowProductWidget     bool `json:"showProductWidget"`
		ShowHotelWidget       bool `json:"showHotelWidget"`
		ShowPlaceWidget       bool `json:"showPlaceWidget"`
		ShowMovieWidget       bool `json:"showMovieWidget"`
	}

	// Result is the full classifier output.
	Result struct {
		StandaloneFollowUp string         `json:"standaloneFollowUp"`
		Classification     Classification `json:"classification"`
	}

	// Turn is one prior chat turn, ("human"|"assistant", content).
	Turn struct {
		Role    string
		Content string
	}

	// Request captures the classifier call's inputs.
	Request struct {
		History        []Turn
		Query          string
		EnabledSources []string
	}

	// Classifier runs the intent classification call.
	Classifier struct {
		client model.Client
		log    telemetry.Logger
	}
)

// outputSchema is the strict JSON Schema the model must satisfy. It is
// passed to the provider as the response format / tool input schema
// depending on adapter support; on parse failure the caller falls back to
// Default.
const outputSchema = `{
  "type": "object",
  "required": ["standaloneFollowUp", "classification"],
  "properties": {
    "standaloneFollowUp": {"type": "string"},
    "classification": {
      "type": "object",
      "required": [
        "skipSearch", "academicSearch", "personalSearch",
        "showWeatherWidget", "showStockWidget", "showCalculationWidget",
        "showProductWidget", "showHotelWidget", "showPlaceWidget", "showMovieWidget"
      ],
      "properties": {
        "skipSearch": {"type": "boolean"},
        "academicSearch": {"type": "boolean"},
        "personalSearch": {"type": "boolean"},
        "showWeatherWidget": {"type": "boolean"},
        "showStockWidget": {"type": "boolean"},
        "showCalculationWidget": {"type": "boolean"},
        "showProductWidget": {"type": "boolean"},
        "showHotelWidget": {"type": "boolean"},
        "showPlaceWidget": {"type": "boolean"},
        "showMovieWidget": {"type": "boolean"}
      }
    }
  }
}`

// New constructs a Classifier backed by client, a small/cheap model class by
// convention (see model.ModelClassSmall).
func New(client model.Client, log telemetry.Logger) *Classifier {
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	return &Classifier{client: client, log: log}
}

// Default returns the fallback result used on a classification parse error:
// no widgets, no skip-search, and the standalone question equal to the raw query.
func Default(query string) Result {
	return Result{StandaloneFollowUp: query}
}

// Classify issues the classification call and parses its JSON output. On any
// parse or provider failure it logs the cause and returns Default(req.Query)
// rather than propagating the error, per the "classification parse error"
// handling policy.
func (c *Classifier) Classify(ctx context.Context, req Request) Result {
	resp, err := c.client.Complete(ctx, c.buildRequest(req))
	if err != nil {
		c.log.Warn(ctx, "classify: provider call failed, using default", "error", err.Error())
		return Default(req.Query)
	}
	text := firstText(resp)
	if text == "" {
		c.log.Warn(ctx, "classify: empty response, using default")
		return Default(req.Query)
	}
	var result Result
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		c.log.Warn(ctx, "classify: parse failure, using default", "error", err.Error())
		return Default(req.Query)
	}
	if result.StandaloneFollowUp == "" {
		result.StandaloneFollowUp = req.Query
	}
	return result
}

func (c *Classifier) buildRequest(req Request) *model.Request {
	messages := make([]*model.Message, 0, len(req.History)+2)
	messages = append(messages, &model.Message{
		Role: model.ConversationRoleSystem,
		Parts: []model.Part{model.TextPart{Text: systemPrompt(req.EnabledSources)}},
	})
	for _, turn := range req.History {
		role := model.ConversationRoleUser
		if turn.Role == "assistant" {
			role = model.ConversationRoleAssistant
		}
		messages = append(messages, &model.Message{Role: role, Parts: []model.Part{model.TextPart{Text: turn.Content}}})
	}
	messages = append(messages, &model.Message{
		Role:  model.ConversationRoleUser,
		Parts: []model.Part{model.TextPart{Text: req.Query}},
	})
	return &model.Request{
		ModelClass:  model.ModelClassSmall,
		Messages:    messages,
		Temperature: 0,
		MaxTokens:   512,
	}
}

func systemPrompt(sources []string) string {
	return fmt.Sprintf(
		"You classify a user query against enabled sources %v. Respond with strict JSON matching this schema and nothing else:\n%s",
		sources, outputSchema,
	)
}

func firstText(resp *model.Response) string {
	for _, msg := range resp.Content {
		for _, part := range msg.Parts {
			if v, ok := part.(model.TextPart); ok && v.Text != "" {
				return v.Text
			}
		}
	}
	return ""
}
