// Package demo provides offline, deterministic stand-ins for the external
// providers the researcher and widget executor normally call out to: a web
// search action and the seven domain widget kinds. They exist so the
// shipped binaries (cmd/server, cmd/demo) have something to register for
// web_search and every widget.Kind instead of an empty registry — a real
// deployment replaces these with actions/widgets backed by an actual search
// API and domain providers (hotel/product/place/movie/weather/stock APIs),
// following the same action.Spec/widget.Spec shape.
package demo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/conversantai/retrieval-engine/action"
	"github.com/conversantai/retrieval-engine/classify"
	"github.com/conversantai/retrieval-engine/widget"
)

// WidgetToggle reports whether the named widget kind is enabled, matching
// config.Server.WidgetEnabled's signature so that package demo does not
// depend on package config.
type WidgetToggle func(kind string) bool

// WebSearch returns a web_search action.Spec that manufactures search
// results from the query terms instead of calling a real search API.
func WebSearch() *action.Spec {
	return &action.Spec{
		Name:        action.WebSearch,
		Description: "Search the web for information relevant to one or more queries.",
		ArgumentSchema: json.RawMessage(`{
			"type": "object",
			"required": ["queries"],
			"properties": {
				"queries": {"type": "array", "items": {"type": "string"}, "minItems": 1}
			}
		}`),
		Execute: func(_ context.Context, args json.RawMessage) (action.ActionOutput, error) {
			var in struct {
				Queries []string `json:"queries"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return action.ActionOutput{}, fmt.Errorf("demo: web_search: %w", err)
			}
			chunks := make([]action.Chunk, 0, len(in.Queries))
			for i, q := range in.Queries {
				slug := strings.ReplaceAll(strings.ToLower(q), " ", "-")
				chunks = append(chunks, action.Chunk{
					Content: fmt.Sprintf("Demo search result for %q. Replace demo.WebSearch with a real provider for production answers.", q),
					Metadata: action.ChunkMeta{
						Title: fmt.Sprintf("Result %d: %s", i+1, q),
						URL:   fmt.Sprintf("https://example.com/search/%s", slug),
					},
				})
			}
			return action.ActionOutput{Kind: action.OutputSearchResults, SearchResults: chunks}, nil
		},
	}
}

// Widgets returns an action.Spec-style widget.Spec for every widget.Kind,
// each enabled by its matching classifier flag and gated by enabled(kind).
// A nil enabled always allows every kind.
func Widgets(enabled WidgetToggle) []*widget.Spec {
	if enabled == nil {
		enabled = func(string) bool { return true }
	}
	specs := []*widget.Spec{
		{
			Kind:             widget.KindHotel,
			EnabledPredicate: gate(enabled, widget.KindHotel, func(c classify.Classification) bool { return c.ShowHotelWidget }),
			Execute:          canned(`{"name":"Demo Hotel","rating":4.3,"pricePerNight":189,"currency":"USD"}`),
		},
		{
			Kind:             widget.KindProduct,
			EnabledPredicate: gate(enabled, widget.KindProduct, func(c classify.Classification) bool { return c.ShowProductWidget }),
			Execute:          canned(`{"name":"Demo Product","price":49.99,"currency":"USD","rating":4.1}`),
		},
		{
			Kind:             widget.KindPlace,
			EnabledPredicate: gate(enabled, widget.KindPlace, func(c classify.Classification) bool { return c.ShowPlaceWidget }),
			Execute:          canned(`{"name":"Demo Place","category":"landmark","rating":4.6}`),
		},
		{
			Kind:             widget.KindMovie,
			EnabledPredicate: gate(enabled, widget.KindMovie, func(c classify.Classification) bool { return c.ShowMovieWidget }),
			Execute:          canned(`{"title":"Demo Movie","year":2024,"rating":7.8}`),
		},
		{
			Kind:             widget.KindWeather,
			EnabledPredicate: gate(enabled, widget.KindWeather, func(c classify.Classification) bool { return c.ShowWeatherWidget }),
			Execute:          canned(`{"location":"Demo City","tempC":21,"condition":"clear"}`),
		},
		{
			Kind:             widget.KindStock,
			EnabledPredicate: gate(enabled, widget.KindStock, func(c classify.Classification) bool { return c.ShowStockWidget }),
			Execute:          canned(`{"symbol":"DEMO","price":123.45,"changePercent":1.2}`),
		},
		{
			Kind:             widget.KindCalc,
			EnabledPredicate: gate(enabled, widget.KindCalc, func(c classify.Classification) bool { return c.ShowCalculationWidget }),
			Execute:          canned(`{"expression":"demo","result":0}`),
		},
	}
	return specs
}

func gate(enabled WidgetToggle, kind widget.Kind, flag func(classify.Classification) bool) func(classify.Classification) bool {
	return func(c classify.Classification) bool {
		return enabled(string(kind)) && flag(c)
	}
}

func canned(data string) func(context.Context) (json.RawMessage, error) {
	return func(context.Context) (json.RawMessage, error) {
		return json.RawMessage(data), nil
	}
}
