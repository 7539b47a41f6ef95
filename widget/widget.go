// Package widget implements the domain widget executor: a registry of
// widgets keyed by type, each deciding applicability from classifier flags
// and producing a typed result concurrently with the researcher. Widget
// failure is non-fatal and simply omits that widget's block from the
// output, reusing the same registry shape as package action.
package widget

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/conversantai/retrieval-engine/block"
	"github.com/conversantai/retrieval-engine/classify"
	"github.com/conversantai/retrieval-engine/session"
	"github.com/conversantai/retrieval-engine/telemetry"
)

type (
	// Kind identifies a widget type.
	Kind string

	// Result is a single successful widget output.
	Result struct {
		Kind   Kind
		Params json.RawMessage
	}

	// Spec declares one widget type.
	Spec struct {
		// Kind identifies the widget type, surfaced as block.WidgetData.WidgetType.
		Kind Kind
		// EnabledPredicate decides whether this widget runs for the given
		// classification. A nil predicate means always enabled.
		EnabledPredicate func(c classify.Classification) bool
		// Execute produces the widget's result. Returning an error marks the
		// widget as failed for this run; it is simply omitted from output.
		Execute func(ctx context.Context) (json.RawMessage, error)
	}

	// Registry holds the set of widgets available to a run.
	Registry struct {
		specs []*Spec
	}
)

const (
	KindHotel   Kind = "hotel"
	KindProduct Kind = "product"
	KindPlace   Kind = "place"
	KindMovie   Kind = "movie"
	KindWeather Kind = "weather"
	KindStock   Kind = "stock"
	KindCalc    Kind = "calculation"
)

// NewRegistry constructs an empty widget Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds spec to the registry.
func (r *Registry) Register(spec *Spec) {
	r.specs = append(r.specs, spec)
}

// Enabled returns the widgets whose predicate accepts c.
func (r *Registry) Enabled(c classify.Classification) []*Spec {
	var out []*Spec
	for _, spec := range r.specs {
		if spec.EnabledPredicate == nil || spec.EnabledPredicate(c) {
			out = append(out, spec)
		}
	}
	return out
}

// Run executes every enabled widget concurrently, emits a block for each
// successful result, and returns the successful results for end-of-stream
// scenario computation. Failed widgets are logged and omitted.
func Run(ctx context.Context, sess *session.Session, registry *Registry, c classify.Classification, log telemetry.Logger) []Result {
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	specs := registry.Enabled(c)
	results := make([]*Result, len(specs))
	var wg sync.WaitGroup
	for i, spec := range specs {
		wg.Add(1)
		go func(i int, spec *Spec) {
			defer wg.Done()
			params, err := spec.Execute(ctx)
			if err != nil {
				log.Warn(ctx, "widget: execution failed, omitting from output", "kind", string(spec.Kind), "error", err.Error())
				return
			}
			results[i] = &Result{Kind: spec.Kind, Params: params}
		}(i, spec)
	}
	wg.Wait()

	var out []Result
	for _, r := range results {
		if r == nil {
			continue
		}
		sess.EmitBlock(ctx, block.NewWidget(uuid.NewString(), string(r.Kind), r.Params))
		out = append(out, *r)
	}
	return out
}

// CountByKind tallies successful widget results by kind, used for the
// end-of-stream scenario/UI-decision computation.
func CountByKind(results []Result) map[Kind]int {
	counts := make(map[Kind]int)
	for _, r := range results {
		counts[r.Kind]++
	}
	return counts
}
