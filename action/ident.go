package action

// Ident is the strong type for an action/tool identifier (e.g. "web_search",
// "done"). Using a distinct type keeps action names from accidentally mixing
// with free-form strings at call sites.
type Ident string

const (
	// WebSearch is the reserved web-search action. It requires a non-empty
	// queries argument and returns search_results outputs.
	WebSearch Ident = "web_search"
	// Done is the reserved sentinel action the model calls to end the
	// research loop.
	Done Ident = "done"
	// ReasoningPreamble names the non-tool plan action. The researcher gives
	// it no special handling: a call to it is validated and executed like any
	// other registered action, or reported as an unknown action when nothing
	// is registered under this name.
	ReasoningPreamble Ident = "reasoning_preamble"
)
