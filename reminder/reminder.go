// Package reminder defines budget-aware system reminders injected into the
// researcher's message history as the iteration budget runs down. The
// package is intentionally small and policy-agnostic: it describes what a
// reminder is, and Budget decides which ones apply for a given iteration
// count, leaving injection itself to the caller.
package reminder

import "fmt"

// Tier represents the priority of a reminder. Lower tiers carry higher
// precedence when a caller needs to cap how many reminders it injects.
type Tier int

const (
	// TierSafety reminders (iteration budget nearly exhausted) must never be
	// dropped.
	TierSafety Tier = iota
	// TierGuidance reminders are soft nudges, first to be dropped under a
	// tight budget.
	TierGuidance
)

// Reminder is one piece of guidance to inject into the researcher's message
// history, wrapped in a <system-reminder> tag by Text.
type Reminder struct {
	// ID identifies this reminder for de-duplication within a run.
	ID string
	// Text is the natural-language guidance, already wrapped in a
	// <system-reminder> tag.
	Text string
	// Priority controls suppression order under a tight budget.
	Priority Tier
}

// Budget evaluates the researcher's remaining iteration budget and produces
// the reminders that apply at the current iteration.
type Budget struct {
	MaxIterations int
}

// NewBudget constructs a Budget for the given iteration cap.
func NewBudget(maxIterations int) Budget {
	return Budget{MaxIterations: maxIterations}
}

// Reminders returns the reminders applicable after completing iteration
// (1-indexed). It returns nil once the budget is large enough that no nudge
// is warranted yet.
func (b Budget) Reminders(iteration int) []Reminder {
	if b.MaxIterations <= 0 {
		return nil
	}
	remaining := b.MaxIterations - iteration
	switch {
	case remaining <= 0:
		return []Reminder{{
			ID:       "iteration_budget.exhausted",
			Priority: TierSafety,
			Text:     wrap("You have used your entire research budget. Call done now with the best answer you can give from what you have gathered."),
		}}
	case remaining == 1:
		return []Reminder{{
			ID:       "iteration_budget.last_call",
			Priority: TierSafety,
			Text:     wrap("Only one more research step remains. Use it to fill the most important gap, then call done."),
		}}
	case b.MaxIterations >= 4 && remaining*2 <= b.MaxIterations:
		return []Reminder{{
			ID:       "iteration_budget.halfway",
			Priority: TierGuidance,
			Text:     fmt.Sprintf(wrap("%d of %d research steps remain. Prioritize the highest-value remaining gaps."), remaining, b.MaxIterations),
		}}
	default:
		return nil
	}
}

// DefaultExplanation documents <system-reminder> blocks for inclusion in the
// researcher's system prompt.
const DefaultExplanation = `
- **System reminders**
  - You may see <system-reminder>...</system-reminder> blocks in system text.
    These are added by the platform to provide contextual guidance about your
    remaining research budget. They are not part of the user's message and
    should never be quoted back to the user.`

func wrap(text string) string {
	return "<system-reminder>" + text + "</system-reminder>"
}
