package system

import (
	"time"

	"github.com/jiecolao/pyquest-game/internal/core/event"
	coresys "github.com/jiecolao/pyquest-game/internal/core/system"
	"github.com/jiecolao/pyquest-game/internal/handler"
	"github.com/jiecolao/pyquest-game/internal/net"
	"github.com/jiecolao/pyquest-game/internal/net/packet"
)

// FeedSystem swaps the event bus and turns last tick's events into console
// packets. Phase 1 (PreUpdate).
type FeedSystem struct {
	bus   *event.Bus
	store *net.SessionStore
}

func NewFeedSystem(bus *event.Bus, store *net.SessionStore) *FeedSystem {
	s := &FeedSystem{bus: bus, store: store}
	event.Subscribe(bus, s.onValueChanged)
	event.Subscribe(bus, s.onRunFinished)
	event.Subscribe(bus, s.onTrackerReset)
	return s
}

func (s *FeedSystem) Phase() coresys.Phase { return coresys.PhasePreUpdate }

func (s *FeedSystem) Update(_ time.Duration) {
	s.bus.SwapBuffers()
	s.bus.DispatchAll()
}

func (s *FeedSystem) onValueChanged(ev event.ValueChanged) {
	if sess, ok := s.live(ev.SessionID); ok {
		handler.SendChange(sess, ev)
	}
}

func (s *FeedSystem) onRunFinished(ev event.RunFinished) {
	if sess, ok := s.live(ev.SessionID); ok {
		handler.SendOutput(sess, ev.Result)
	}
}

func (s *FeedSystem) onTrackerReset(ev event.TrackerReset) {
	s.store.ForEach(func(sess *net.Session) {
		if sess.State() == packet.StateReady {
			handler.SendReset(sess, ev.Path)
		}
	})
}

func (s *FeedSystem) live(id uint64) (*net.Session, bool) {
	if id == 0 {
		return nil, false
	}
	sess, ok := s.store.Get(id)
	if !ok || sess.IsClosed() {
		return nil, false
	}
	return sess, true
}
