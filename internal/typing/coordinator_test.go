package typing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/pkg/types"
)

type recorded struct {
	sessionID string
	event     string
	payload   types.TypingEvent
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []recorded
}

func (r *recordingBroadcaster) Broadcast(_ context.Context, sessionID, event string, payload interface{}) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recorded{sessionID: sessionID, event: event, payload: payload.(types.TypingEvent)})
	return 1
}

func (r *recordingBroadcaster) snapshot() []recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recorded(nil), r.events...)
}

func (r *recordingBroadcaster) count(isTyping bool) int {
	n := 0
	for _, e := range r.snapshot() {
		if e.payload.IsTyping == isTyping {
			n++
		}
	}
	return n
}

type staticNames map[string]string

func (s staticNames) Username(_, userID string) string {
	if name, ok := s[userID]; ok {
		return name
	}
	return userID
}

func newTestCoordinator(expiry time.Duration) (*Coordinator, *recordingBroadcaster) {
	rec := &recordingBroadcaster{}
	return NewCoordinator(staticNames{"alice": "Alice"}, rec, expiry, nil), rec
}

func TestCoordinator_DefaultExpiry(t *testing.T) {
	c := NewCoordinator(nil, nil, 0, nil)
	assert.Equal(t, DefaultExpiry, c.Expiry())
}

func TestCoordinator_StartPublishesOnceAndRefreshes(t *testing.T) {
	c, rec := newTestCoordinator(time.Minute)
	defer c.StopAll()

	c.StartTyping("s1", "alice")
	c.StartTyping("s1", "alice")
	c.StartTyping("s1", "alice")

	events := rec.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, "s1", events[0].sessionID)
	assert.Equal(t, types.EventUserTyping, events[0].event)
	assert.Equal(t, types.TypingEvent{UserID: "alice", Username: "Alice", IsTyping: true}, events[0].payload)
	assert.Equal(t, []string{"alice"}, c.ListTyping("s1"))
}

func TestCoordinator_StopIsIdempotent(t *testing.T) {
	c, rec := newTestCoordinator(time.Minute)

	c.StartTyping("s1", "alice")
	assert.True(t, c.StopTyping("s1", "alice"))
	assert.False(t, c.StopTyping("s1", "alice"))
	assert.False(t, c.StopTyping("s1", "never-typed"))

	assert.Equal(t, 1, rec.count(true))
	assert.Equal(t, 1, rec.count(false))
	assert.Empty(t, c.ListTyping("s1"))
}

func TestCoordinator_ExpiryPublishesStopExactlyOnce(t *testing.T) {
	c, rec := newTestCoordinator(20 * time.Millisecond)

	c.StartTyping("s1", "alice")

	require.Eventually(t, func() bool { return rec.count(false) == 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, c.ListTyping("s1"))

	// A late explicit stop finds nothing to remove
	assert.False(t, c.StopTyping("s1", "alice"))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, rec.count(false))
}

func TestCoordinator_RefreshPostponesExpiry(t *testing.T) {
	c, rec := newTestCoordinator(60 * time.Millisecond)
	defer c.StopAll()

	c.StartTyping("s1", "alice")
	for i := 0; i < 4; i++ {
		time.Sleep(30 * time.Millisecond)
		c.StartTyping("s1", "alice")
	}

	// 120ms have passed, longer than one expiry window, yet still typing
	assert.Equal(t, []string{"alice"}, c.ListTyping("s1"))
	assert.Equal(t, 0, rec.count(false))
}

func TestCoordinator_StopRacingExpiry(t *testing.T) {
	for i := 0; i < 50; i++ {
		c, rec := newTestCoordinator(time.Millisecond)
		c.StartTyping("s1", "alice")
		time.Sleep(time.Millisecond)
		c.StopTyping("s1", "alice")
		time.Sleep(5 * time.Millisecond)

		require.Equal(t, 1, rec.count(false), "iteration %d", i)
	}
}

func TestCoordinator_ListTypingSortedAndScoped(t *testing.T) {
	c, _ := newTestCoordinator(time.Minute)
	defer c.StopAll()

	c.StartTyping("s1", "carol")
	c.StartTyping("s1", "alice")
	c.StartTyping("s1", "bob")
	c.StartTyping("s2", "dave")

	assert.Equal(t, []string{"alice", "bob", "carol"}, c.ListTyping("s1"))
	assert.Equal(t, []string{"dave"}, c.ListTyping("s2"))
	assert.Empty(t, c.ListTyping("s3"))
}

func TestCoordinator_StopAllIsSilent(t *testing.T) {
	c, rec := newTestCoordinator(20 * time.Millisecond)

	c.StartTyping("s1", "alice")
	c.StartTyping("s2", "bob")
	c.StopAll()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, rec.count(false))
	assert.Empty(t, c.ListTyping("s1"))
	assert.Empty(t, c.ListTyping("s2"))
}

func TestCoordinator_ConcurrentStartStop(t *testing.T) {
	c, rec := newTestCoordinator(time.Minute)
	defer c.StopAll()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.StartTyping("s1", "alice")
		}()
		go func() {
			defer wg.Done()
			c.StopTyping("s1", "alice")
		}()
	}
	wg.Wait()
	c.StopTyping("s1", "alice")

	// Every start transition is matched by exactly one stop
	assert.Equal(t, rec.count(true), rec.count(false))
}

func TestCoordinator_EventsFollowStateOrder(t *testing.T) {
	c, rec := newTestCoordinator(time.Minute)
	defer c.StopAll()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.StartTyping("s1", "alice")
		}()
		go func() {
			defer wg.Done()
			c.StopTyping("s1", "alice")
		}()
	}
	wg.Wait()

	events := rec.snapshot()
	for i, e := range events {
		// Transitions alternate starting from started
		assert.Equal(t, i%2 == 0, e.payload.IsTyping, "event %d", i)
	}

	typing := len(c.ListTyping("s1")) == 1
	if len(events) == 0 {
		assert.False(t, typing)
		return
	}
	assert.Equal(t, typing, events[len(events)-1].payload.IsTyping)
}
