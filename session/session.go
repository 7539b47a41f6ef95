// Package session implements the event-sourced, replayable conversation
// session: an ordered event log, a blockId-keyed block store, an ordered
// section list, and a synchronous, registration-ordered subscriber bus with
// per-subscriber error isolation. Sessions are TTL-bound; once the TTL
// elapses with no activity the session is torn down and its events dropped.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conversantai/retrieval-engine/block"
	"github.com/conversantai/retrieval-engine/streamevent"
	"github.com/conversantai/retrieval-engine/telemetry"
)

// DefaultTTL is the idle lifetime of a session: how long after its last
// emitted event it is torn down. Subscribers alone do not keep it alive.
const DefaultTTL = 30 * time.Minute

type (
	// Session is a single conversational turn's event-sourced state: every
	// event emitted so far (for replay), every block by id, and every section
	// in emission order. All methods are safe for concurrent use.
	Session struct {
		id  string
		log telemetry.Logger

		mu          sync.Mutex
		events      []streamevent.Event
		blocks      map[string]block.Block
		sections    []block.Section
		sectionSeen map[string]bool
		subs        []*subscriber
		nextSubID   int
		ended       bool

		ttl      time.Duration
		timer    *time.Timer
		onExpire func(sessionID string)
	}

	subscriber struct {
		id   int
		sink streamevent.Sink
	}

	// Unsubscribe detaches a subscriber previously registered with Subscribe.
	Unsubscribe func()
)

// New constructs a Session with the given id. onExpire, if non-nil, is
// invoked once when the session's TTL elapses without renewal; callers
// typically use it to remove the session from a Store.
func New(id string, log telemetry.Logger, ttl time.Duration, onExpire func(sessionID string)) *Session {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	s := &Session{
		id:          id,
		log:         log,
		blocks:      make(map[string]block.Block),
		sectionSeen: make(map[string]bool),
		ttl:         ttl,
		onExpire:    onExpire,
	}
	s.timer = time.AfterFunc(ttl, s.expire)
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

func (s *Session) expire() {
	s.mu.Lock()
	s.ended = true
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()
	for _, sub := range subs {
		_ = sub // subscribers simply stop receiving; no explicit close event is sent
	}
	if s.onExpire != nil {
		s.onExpire(s.id)
	}
}

func (s *Session) renew() {
	s.timer.Reset(s.ttl)
}

// Subscribe registers sink to receive this session's events. On registration
// sink synchronously receives, in order: every stored event, then every
// stored section (as synthetic TypeSection events), after which it begins
// receiving events live, in registration order relative to other subscribers.
// The returned Unsubscribe detaches sink; calling it more than once is safe.
func (s *Session) Subscribe(ctx context.Context, sink streamevent.Sink) Unsubscribe {
	s.mu.Lock()
	replay := make([]streamevent.Event, len(s.events))
	copy(replay, s.events)
	sections := make([]block.Section, len(s.sections))
	copy(sections, s.sections)

	s.nextSubID++
	id := s.nextSubID
	sub := &subscriber{id: id, sink: sink}
	s.subs = append(s.subs, sub)
	s.mu.Unlock()

	for _, ev := range replay {
		s.deliver(ctx, sub, ev)
	}
	for _, sec := range sections {
		sec := sec
		s.deliver(ctx, sub, streamevent.Event{
			EventID:   uuid.NewString(),
			SessionID: s.id,
			Type:      streamevent.TypeSection,
			Section:   &sec,
		})
	}

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, existing := range s.subs {
			if existing.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				break
			}
		}
	}
}

// deliver sends ev to sub, logging and detaching the subscriber on error.
// Errors in one subscriber's callback never affect other subscribers.
func (s *Session) deliver(ctx context.Context, sub *subscriber, ev streamevent.Event) {
	if err := sub.sink.Send(ctx, ev); err != nil {
		s.log.Warn(ctx, "session: subscriber send failed, detaching", "sessionId", s.id, "eventId", ev.EventID, "error", err.Error())
		s.mu.Lock()
		for i, existing := range s.subs {
			if existing.id == sub.id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
	}
}

// publish records ev in the log (unless it's a synthetic replay-only event)
// and fans it out to every current subscriber, in registration order.
func (s *Session) publish(ctx context.Context, ev streamevent.Event) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.events = append(s.events, ev)
	subs := make([]*subscriber, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()
	s.renew()

	for _, sub := range subs {
		s.deliver(ctx, sub, ev)
	}
}

// Emit records and broadcasts a free-form event such as researchProgress,
// researchComplete, or error. Callers building block/section events should
// use EmitBlock / UpdateBlock / AddSection instead, which also maintain
// session state.
func (s *Session) Emit(ctx context.Context, ev streamevent.Event) {
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	ev.SessionID = s.id
	s.publish(ctx, ev)
}

// EmitBlock stores b and broadcasts a TypeBlock event announcing it.
func (s *Session) EmitBlock(ctx context.Context, b block.Block) {
	s.mu.Lock()
	s.blocks[b.ID] = b
	s.mu.Unlock()
	s.Emit(ctx, streamevent.Event{Type: streamevent.TypeBlock, Block: &b})
}

// UpdateBlock applies patch to the stored block blockID and broadcasts a
// TypeUpdateBlock event carrying the patch. If the block is not known, the
// call is a no-op aside from logging, since there is nothing to patch.
func (s *Session) UpdateBlock(ctx context.Context, blockID string, patch block.Patch) {
	s.mu.Lock()
	b, ok := s.blocks[blockID]
	s.mu.Unlock()
	if !ok {
		s.log.Warn(ctx, "session: updateBlock for unknown block", "sessionId", s.id, "blockId", blockID)
		return
	}
	next, err := block.Apply(b, patch)
	if err != nil {
		s.log.Warn(ctx, "session: patch apply failed", "sessionId", s.id, "blockId", blockID, "error", err.Error())
	}
	s.mu.Lock()
	s.blocks[blockID] = next
	s.mu.Unlock()

	s.Emit(ctx, streamevent.Event{Type: streamevent.TypeUpdateBlock, BlockID: blockID, Patch: patch})
}

// AddSection appends sec to the session's section list and broadcasts a
// TypeSection event, unless a section with the same ID or Title was already
// added, in which case the call is a no-op.
func (s *Session) AddSection(ctx context.Context, sec block.Section) {
	key := sec.ID
	if key == "" {
		key = sec.Title
	}
	s.mu.Lock()
	if s.sectionSeen[key] {
		s.mu.Unlock()
		return
	}
	s.sectionSeen[key] = true
	s.sections = append(s.sections, sec)
	s.mu.Unlock()

	s.Emit(ctx, streamevent.Event{Type: streamevent.TypeSection, Section: &sec})
}

// Block returns the current state of the block with the given id.
func (s *Session) Block(id string) (block.Block, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blocks[id]
	return b, ok
}

// Sections returns a copy of the session's section list in emission order.
func (s *Session) Sections() []block.Section {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]block.Section, len(s.sections))
	copy(out, s.sections)
	return out
}

// End broadcasts the terminal end event and stops accepting further events.
// The session itself is not removed from any Store; TTL expiry (or explicit
// Store.Delete) governs teardown so that late subscribers can still replay.
func (s *Session) End(ctx context.Context, payload streamevent.EndPayload) {
	s.Emit(ctx, streamevent.Event{Type: streamevent.TypeEnd, End: &payload})
	s.mu.Lock()
	s.ended = true
	s.mu.Unlock()
}
