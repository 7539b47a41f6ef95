// Package projection implements the client-side QuerySession reducer: given
// the event stream a session emits, it folds each event into a single
// denormalized record a UI can render directly, handling de-duplication,
// phase transitions, and the terminal commit semantics of the end event.
package projection

import (
	"strings"
	"sync"
	"time"

	"github.com/conversantai/retrieval-engine/block"
	"github.com/conversantai/retrieval-engine/streamevent"
)

// Phase is the QuerySession's lifecycle stage.
type Phase string

const (
	PhaseSearching Phase = "searching"
	PhaseAnswering Phase = "answering"
	PhaseDone      Phase = "done"
)

// reasoningMarker prefixes a text block's data when it carries a reasoning
// step rather than the answer summary.
const reasoningMarker = "\U0001F4AD " // 💭

// QuerySession is the reduced, render-ready projection of one session's
// event stream.
type QuerySession struct {
	SessionID             string
	Query                 string
	Phase                 Phase
	IsStreaming           bool
	IsFinalized           bool
	HasReceivedFirstChunk bool

	Summary string
	Answer  string

	Sections            []block.Section
	Sources             []block.Source
	FollowUpSuggestions []string
	CardsByDomain       map[string][]block.Block
	Scenario            string
	UIDecision          streamevent.UIDecision
	ReasoningSteps      []string

	ResearchStep     int
	MaxResearchSteps int
	CurrentAction    string

	Error string

	// Image is the optional image accompanying Query, used alongside Query as
	// the duplicate-submission dedupe key (see Submissions).
	Image string
	// CreatedAt is when this session was constructed, used to age out the
	// duplicate-submission retry window.
	CreatedAt time.Time

	seen        map[string]bool
	sectionSeen map[string]bool
}

// CanceledError is the literal text the client records on QuerySession.Error
// when the user cancels a request before it finalizes (spec.md §7
// "Cancellation" / end-to-end scenario 5). It is never sent by the server:
// cancellation is purely a client-side observation of an aborted request.
const CanceledError = "Query canceled by user"

// New constructs an empty QuerySession for sessionID/query, in the
// searching phase.
func New(sessionID, query string) *QuerySession {
	return &QuerySession{
		SessionID:     sessionID,
		Query:         query,
		Phase:         PhaseSearching,
		IsStreaming:   true,
		CreatedAt:     time.Now(),
		CardsByDomain: make(map[string][]block.Block),
		seen:          make(map[string]bool),
		sectionSeen:   make(map[string]bool),
	}
}

// Cancel records a client-initiated cancellation: it sets Error to
// CanceledError and stops streaming, but deliberately leaves IsFinalized
// untouched — per scenario 5, a canceled session is never finalized, since
// the server never emits `end` after an abort. Canceling an already
// finalized session is a no-op.
func (q *QuerySession) Cancel() {
	if q.IsFinalized {
		return
	}
	q.Error = CanceledError
	q.IsStreaming = false
}

// Apply folds ev into the projection. Events for a finalized session, and
// events already processed (by dedupe key), are ignored.
func (q *QuerySession) Apply(ev streamevent.Event) {
	if q.IsFinalized {
		return
	}
	key := ev.DedupeKey()
	if q.seen[key] {
		return
	}
	q.seen[key] = true

	switch ev.Type {
	case streamevent.TypeBlock:
		q.applyBlock(ev)
	case streamevent.TypeUpdateBlock:
		q.applyUpdateBlock(ev)
	case streamevent.TypeSection:
		q.applySection(ev)
	case streamevent.TypeResearchProgress:
		q.ResearchStep = ev.ResearchStep
		q.MaxResearchSteps = ev.MaxResearchSteps
		q.CurrentAction = ev.CurrentAction
	case streamevent.TypeResearchComplete:
		q.ResearchStep = 0
		q.MaxResearchSteps = 0
		q.CurrentAction = ""
		q.IsStreaming = true
	case streamevent.TypeEnd:
		q.applyEnd(ev)
	case streamevent.TypeError:
		q.Error = ev.Error
		q.IsStreaming = false
		q.IsFinalized = false
	}
}

func (q *QuerySession) applyBlock(ev streamevent.Event) {
	if ev.Block == nil {
		return
	}
	b := *ev.Block
	switch b.Type {
	case block.TypeText:
		text, _ := b.Data.(string)
		if strings.HasPrefix(text, reasoningMarker) {
			q.ReasoningSteps = append(q.ReasoningSteps, strings.TrimPrefix(text, reasoningMarker))
			q.IsStreaming = true
			return
		}
		q.Summary = text
		q.HasReceivedFirstChunk = true
		q.IsStreaming = true
	case block.TypeSource:
		if sources, ok := b.Data.([]block.Source); ok {
			q.mergeSources(sources)
		}
	case block.TypeWidget:
		if data, ok := b.Data.(block.WidgetData); ok {
			q.CardsByDomain[data.WidgetType] = append(q.CardsByDomain[data.WidgetType], b)
		}
	}
}

func (q *QuerySession) applyUpdateBlock(ev streamevent.Event) {
	for _, op := range ev.Patch {
		if op.Op != "replace" || op.Path != "/data" {
			continue
		}
		text, _ := op.Value.(string)
		wasSearching := q.Phase == PhaseSearching
		q.Summary = text
		if wasSearching {
			q.Phase = PhaseAnswering
		}
	}
}

func (q *QuerySession) applySection(ev streamevent.Event) {
	if ev.Section == nil {
		return
	}
	key := ev.Section.ID
	if key == "" {
		key = ev.Section.Title
	}
	if q.sectionSeen[key] {
		return
	}
	q.sectionSeen[key] = true
	q.Sections = append(q.Sections, *ev.Section)
}

func (q *QuerySession) applyEnd(ev streamevent.Event) {
	if ev.End == nil {
		return
	}
	end := ev.End

	// The committed answer is the longest of the streamed summary and
	// whatever answer text had already been committed; this wire shape
	// carries the answer only via the text block/updateBlock stream, not a
	// separate field on the end envelope.
	q.Answer = longest(q.Summary, q.Answer)

	for _, sec := range end.Sections {
		key := sec.ID
		if key == "" {
			key = sec.Title
		}
		if !q.sectionSeen[key] {
			q.sectionSeen[key] = true
			q.Sections = append(q.Sections, sec)
		}
	}
	q.mergeSources(end.Sources)
	q.FollowUpSuggestions = end.FollowUpSuggestions
	q.Scenario = end.Scenario
	q.UIDecision = end.UIDecision

	q.IsStreaming = false
	q.IsFinalized = true
	q.Phase = PhaseDone
}

func (q *QuerySession) mergeSources(sources []block.Source) {
	existing := make(map[string]int, len(q.Sources))
	for i, s := range q.Sources {
		existing[s.URL] = i
	}
	for _, s := range sources {
		if i, ok := existing[s.URL]; ok {
			q.Sources[i].Snippet += s.Snippet
			continue
		}
		existing[s.URL] = len(q.Sources)
		q.Sources = append(q.Sources, s)
	}
}

// DuplicateSubmissionRetryAfter is how long an active (non-errored) session
// must age before the client may resubmit the same query+image.
const DuplicateSubmissionRetryAfter = 30 * time.Second

// Submissions implements the "Duplicate-submission policy" from spec.md
// §4.8: before starting a new query, the client compares it against
// existing sessions by trimmed query+image. A non-errored finalized session
// blocks a resubmission outright; an active (non-finalized) session blocks
// one until it is older than DuplicateSubmissionRetryAfter or has recorded
// an error.
type Submissions struct {
	mu    sync.Mutex
	byKey map[string]*QuerySession
}

// NewSubmissions constructs an empty Submissions tracker.
func NewSubmissions() *Submissions {
	return &Submissions{byKey: make(map[string]*QuerySession)}
}

// SubmissionKey normalizes a query+image pair into the key Submissions dedupes on.
func SubmissionKey(query, image string) string {
	return strings.TrimSpace(query) + "\x00" + strings.TrimSpace(image)
}

// Allow reports whether starting sess for query/image is permitted at now.
// On success it starts tracking sess under that key (replacing whatever
// session previously held it); on rejection the caller must not proceed and
// the previously tracked session is left in place.
func (s *Submissions) Allow(query, image string, sess *QuerySession, now time.Time) bool {
	key := SubmissionKey(query, image)

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byKey[key]; ok && !permitsResubmission(existing, now) {
		return false
	}
	s.byKey[key] = sess
	return true
}

// permitsResubmission decides whether existing — the session currently
// tracked for a query+image key — permits a new submission of that same
// key at now.
func permitsResubmission(existing *QuerySession, now time.Time) bool {
	if existing.Error != "" {
		return true
	}
	if existing.IsFinalized {
		return false
	}
	return now.Sub(existing.CreatedAt) > DuplicateSubmissionRetryAfter
}

func longest(candidates ...string) string {
	best := ""
	for _, c := range candidates {
		if len(c) > len(best) {
			best = c
		}
	}
	return best
}
