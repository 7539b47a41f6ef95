// Package streamevent defines the wire-facing event envelope emitted by a
// session and the Sink interface transports implement to receive it. Event
// shapes mirror the external interface framing described for the engine: a
// small closed set of envelope types (block, updateBlock, section,
// researchProgress, researchComplete, end, error), each carrying a unique
// eventId and the owning sessionId.
package streamevent

import (
	"context"

	"github.com/conversantai/retrieval-engine/block"
)

// Type enumerates the event envelope kinds a session can emit.
type Type string

const (
	// TypeBlock announces a newly created block.
	TypeBlock Type = "block"
	// TypeUpdateBlock carries a patch applied to an existing block.
	TypeUpdateBlock Type = "updateBlock"
	// TypeSection announces a new narrative section.
	TypeSection Type = "section"
	// TypeResearchProgress reports iteration progress from the researcher.
	TypeResearchProgress Type = "researchProgress"
	// TypeResearchComplete marks the end of the research phase.
	TypeResearchComplete Type = "researchComplete"
	// TypeEnd is the terminal envelope for a request.
	TypeEnd Type = "end"
	// TypeError is a terminal error envelope.
	TypeError Type = "error"
)

type (
	// Event is the envelope delivered to subscribers and, ultimately, to
	// transports. Every event carries a unique EventID and the SessionID that
	// produced it; for updateBlock events the dedupe key additionally includes
	// BlockID.
	Event struct {
		EventID   string `json:"eventId"`
		SessionID string `json:"sessionId"`
		Type      Type   `json:"type"`

		Block *block.Block `json:"block,omitempty"`

		BlockID string      `json:"blockId,omitempty"`
		Patch   block.Patch `json:"patch,omitempty"`

		Section *block.Section `json:"section,omitempty"`

		ResearchStep     int    `json:"researchStep,omitempty"`
		MaxResearchSteps int    `json:"maxResearchSteps,omitempty"`
		CurrentAction    string `json:"currentAction,omitempty"`

		End *EndPayload `json:"end,omitempty"`

		Error string `json:"error,omitempty"`
	}

	// UIDecision is the backend-computed hint about which surfaces the client
	// should render, derived purely from widget output composition.
	UIDecision struct {
		ShowMap        bool `json:"showMap"`
		ShowCards      bool `json:"showCards"`
		ShowImages     bool `json:"showImages"`
		ShowComparison bool `json:"showComparison"`
	}

	// EndPayload is the terminal envelope content.
	EndPayload struct {
		FollowUpSuggestions []string        `json:"followUpSuggestions"`
		Scenario            string          `json:"scenario"`
		UIDecision          UIDecision      `json:"uiDecision"`
		Sections            []block.Section `json:"sections,omitempty"`
		Sources             []block.Source  `json:"sources,omitempty"`
		DestinationImages   []string        `json:"destination_images,omitempty"`
		Videos              []string        `json:"videos,omitempty"`
	}

	// Sink delivers events to clients over a transport (SSE, WebSocket, a
	// message bus). Implementations must be safe for concurrent Send calls:
	// the session may call Send from the goroutine driving the researcher and
	// the goroutine driving the widget executor at the same time.
	Sink interface {
		// Send publishes an event to the sink's underlying transport. An error
		// returned here propagates to the session bus, which detaches this
		// subscriber but leaves delivery to other subscribers unaffected.
		Send(ctx context.Context, event Event) error
	}

	// SinkFunc adapts a plain function to the Sink interface.
	SinkFunc func(ctx context.Context, event Event) error
)

// Send implements Sink.
func (f SinkFunc) Send(ctx context.Context, event Event) error { return f(ctx, event) }

// DedupeKey returns the idempotency key for this event: for updateBlock
// events, (sessionId, blockId, eventId); for all other events,
// (sessionId, eventId).
func (e Event) DedupeKey() string {
	if e.Type == TypeUpdateBlock {
		return e.SessionID + "|" + e.BlockID + "|" + e.EventID
	}
	return e.SessionID + "|" + e.EventID
}
