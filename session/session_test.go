package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conversantai/retrieval-engine/block"
	"github.com/conversantai/retrieval-engine/session"
	"github.com/conversantai/retrieval-engine/streamevent"
)

type recordingSink struct {
	mu     sync.Mutex
	events []streamevent.Event
	fail   bool
}

func (r *recordingSink) Send(_ context.Context, ev streamevent.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return assert.AnError
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingSink) snapshot() []streamevent.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]streamevent.Event, len(r.events))
	copy(out, r.events)
	return out
}

func TestEmitBlockThenUpdateBlock(t *testing.T) {
	sess := session.New("s1", nil, time.Minute, nil)
	sink := &recordingSink{}
	unsub := sess.Subscribe(context.Background(), sink)
	defer unsub()

	sess.EmitBlock(context.Background(), block.NewText("b1", "hello"))
	sess.UpdateBlock(context.Background(), "b1", block.ReplaceData("hello world"))

	events := sink.snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, streamevent.TypeBlock, events[0].Type)
	assert.Equal(t, streamevent.TypeUpdateBlock, events[1].Type)
	assert.Equal(t, "b1", events[1].BlockID)

	b, ok := sess.Block("b1")
	require.True(t, ok)
	assert.Equal(t, "hello world", b.Data)
}

func TestLateSubscriberReplaysEventsThenSections(t *testing.T) {
	sess := session.New("s1", nil, time.Minute, nil)
	sess.EmitBlock(context.Background(), block.NewText("b1", "hi"))
	sess.AddSection(context.Background(), block.Section{ID: "explain", Title: "How I approached this", Content: "x"})

	late := &recordingSink{}
	unsub := sess.Subscribe(context.Background(), late)
	defer unsub()

	events := late.snapshot()
	require.Len(t, events, 3)
	assert.Equal(t, streamevent.TypeBlock, events[0].Type)
	assert.Equal(t, streamevent.TypeSection, events[1].Type)
	assert.Equal(t, streamevent.TypeSection, events[2].Type, "section replay is followed by the live tail, which is empty here")
}

func TestAddSectionDeduplicatesByID(t *testing.T) {
	sess := session.New("s1", nil, time.Minute, nil)
	sink := &recordingSink{}
	unsub := sess.Subscribe(context.Background(), sink)
	defer unsub()

	sec := block.Section{ID: "explain", Title: "How I approached this", Content: "first"}
	sess.AddSection(context.Background(), sec)
	sess.AddSection(context.Background(), sec)

	assert.Len(t, sess.Sections(), 1)
	assert.Len(t, sink.snapshot(), 1)
}

func TestSubscriberErrorDoesNotAffectOthers(t *testing.T) {
	sess := session.New("s1", nil, time.Minute, nil)
	bad := &recordingSink{fail: true}
	good := &recordingSink{}
	sess.Subscribe(context.Background(), bad)
	sess.Subscribe(context.Background(), good)

	sess.EmitBlock(context.Background(), block.NewText("b1", "hi"))

	assert.Empty(t, bad.snapshot())
	assert.Len(t, good.snapshot(), 1)
}

func TestUpdateBlockOnUnknownBlockIsNoop(t *testing.T) {
	sess := session.New("s1", nil, time.Minute, nil)
	sink := &recordingSink{}
	unsub := sess.Subscribe(context.Background(), sink)
	defer unsub()

	sess.UpdateBlock(context.Background(), "missing", block.ReplaceData("x"))

	assert.Empty(t, sink.snapshot())
}

func TestEndEmitsTerminalEnvelope(t *testing.T) {
	sess := session.New("s1", nil, time.Minute, nil)
	sink := &recordingSink{}
	unsub := sess.Subscribe(context.Background(), sink)
	defer unsub()

	sess.End(context.Background(), streamevent.EndPayload{Scenario: "product_browse"})

	events := sink.snapshot()
	require.Len(t, events, 1)
	require.NotNil(t, events[0].End)
	assert.Equal(t, "product_browse", events[0].End.Scenario)
}

func TestSessionExpiresAfterTTL(t *testing.T) {
	var expired string
	done := make(chan struct{})
	sess := session.New("s1", nil, 10*time.Millisecond, func(id string) {
		expired = id
		close(done)
	})
	_ = sess

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("onExpire was not called within timeout")
	}
	assert.Equal(t, "s1", expired)
}

func TestStoreCreateGetDelete(t *testing.T) {
	store := session.NewStore(nil, time.Minute)
	sess := store.Create("s1")
	require.NotNil(t, sess)

	got, ok := store.Get("s1")
	require.True(t, ok)
	assert.Same(t, sess, got)

	store.Delete("s1")
	_, ok = store.Get("s1")
	assert.False(t, ok)
}

func TestStoreSessionRemovedOnExpiry(t *testing.T) {
	store := session.NewStore(nil, 10*time.Millisecond)
	store.Create("s1")

	require.Eventually(t, func() bool {
		return store.Len() == 0
	}, time.Second, 5*time.Millisecond)
}
