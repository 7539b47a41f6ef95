// Package block defines the typed answer-content units emitted on a session
// (text, source, widget, suggestion) and the JSON-Patch-style updates applied
// to them.
package block

import "encoding/json"

// Type identifies the concrete shape of a Block's Data payload.
type Type string

const (
	// TypeText marks a block whose Data is the accumulating answer text.
	TypeText Type = "text"
	// TypeSource marks a block whose Data is the final deduplicated citation list.
	TypeSource Type = "source"
	// TypeWidget marks a block whose Data is a single domain widget result.
	TypeWidget Type = "widget"
	// TypeSuggestion marks a block whose Data is the follow-up question list.
	TypeSuggestion Type = "suggestion"
)

type (
	// Block is the tagged-union unit of answer content stored on a session and
	// emitted to subscribers. Data holds the type-specific payload: a string for
	// text blocks, a []Source for source blocks, a WidgetData for widget blocks,
	// or a []string for suggestion blocks.
	Block struct {
		// ID uniquely identifies the block within its session.
		ID string `json:"id"`
		// Type selects the shape of Data.
		Type Type `json:"type"`
		// Data is the type-specific payload. Callers type-assert after checking Type.
		Data any `json:"data"`
	}

	// Source is a single citation. Dedupe key is the normalized URL (see package
	// urlnorm). Duplicate sources merge by concatenating Snippet.
	Source struct {
		URL       string   `json:"url"`
		Title     string   `json:"title"`
		Snippet   string   `json:"snippet,omitempty"`
		Thumbnail string   `json:"thumbnail,omitempty"`
		Images    []string `json:"images,omitempty"`
		Author    string   `json:"author,omitempty"`
		Date      string   `json:"date,omitempty"`
	}

	// WidgetData is the payload carried by a widget block.
	WidgetData struct {
		WidgetType string          `json:"widgetType"`
		Params     json.RawMessage `json:"params"`
	}

	// Section is a persistent, deduplicated narrative fragment attached to the
	// session (not a block), so late subscribers receive it via replay. The
	// canonical use is the researcher's "How I approached this" explanation.
	Section struct {
		ID      string `json:"id"`
		Title   string `json:"title"`
		Content string `json:"content"`
		Kind    string `json:"kind,omitempty"`
	}
)

// NewText constructs a text block with the given id and initial data.
func NewText(id, data string) Block { return Block{ID: id, Type: TypeText, Data: data} }

// NewSource constructs a source block carrying the final deduplicated citation list.
func NewSource(id string, sources []Source) Block { return Block{ID: id, Type: TypeSource, Data: sources} }

// NewWidget constructs a widget block for a single successful domain widget result.
func NewWidget(id, widgetType string, params json.RawMessage) Block {
	return Block{ID: id, Type: TypeWidget, Data: WidgetData{WidgetType: widgetType, Params: params}}
}

// NewSuggestion constructs a suggestion block carrying follow-up questions.
func NewSuggestion(id string, suggestions []string) Block {
	return Block{ID: id, Type: TypeSuggestion, Data: suggestions}
}
