package widget

import "github.com/conversantai/retrieval-engine/streamevent"

// Scenario tags describing the widget-output composition of a run.
const (
	ScenarioHotelLookupSingle = "hotel_lookup_single"
	ScenarioHotelBrowse       = "hotel_browse"
	ScenarioProductBrowse     = "product_browse"
	ScenarioPlaceBrowse       = "place_browse"
	ScenarioGeneralAnswer     = "general_answer"
)

// Classify computes the scenario tag and UI decision for a run from its
// widget output composition alone, independent of any data-presence
// heuristics a client might otherwise apply.
func Classify(results []Result) (string, streamevent.UIDecision) {
	counts := CountByKind(results)
	hotels := counts[KindHotel]
	products := counts[KindProduct]
	places := counts[KindPlace]

	var scenario string
	switch {
	case hotels == 1:
		scenario = ScenarioHotelLookupSingle
	case hotels > 1:
		scenario = ScenarioHotelBrowse
	case products > 0:
		scenario = ScenarioProductBrowse
	case places > 0:
		scenario = ScenarioPlaceBrowse
	default:
		scenario = ScenarioGeneralAnswer
	}

	anyDomainWidget := hotels > 0 || products > 0 || places > 0 || counts[KindMovie] > 0

	decision := streamevent.UIDecision{
		ShowMap:        scenario == ScenarioHotelBrowse || scenario == ScenarioPlaceBrowse,
		ShowCards:      anyDomainWidget && scenario != ScenarioHotelLookupSingle,
		ShowImages:     anyDomainWidget && scenario != ScenarioHotelBrowse,
		ShowComparison: scenario == ScenarioHotelBrowse || scenario == ScenarioProductBrowse,
	}
	return scenario, decision
}
