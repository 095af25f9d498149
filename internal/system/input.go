package system

import (
	"time"

	coresys "github.com/jiecolao/pyquest-game/internal/core/system"
	"github.com/jiecolao/pyquest-game/internal/handler"
	"github.com/jiecolao/pyquest-game/internal/net"
	"github.com/jiecolao/pyquest-game/internal/net/packet"
	"github.com/jiecolao/pyquest-game/internal/watch"
	"go.uber.org/zap"
)

// SessionSource hands over newly accepted console sessions.
type SessionSource interface {
	NewSessions() <-chan *net.Session
}

// InputSystem accepts new sessions and drains packet queues from all
// sessions through the packet registry. Phase 0 (Input).
type InputSystem struct {
	source     SessionSource
	registry   *packet.Registry
	store      *net.SessionStore
	observers  *handler.Observers
	tracker    *watch.Tracker
	maxPerTick int
	log        *zap.Logger
}

func NewInputSystem(
	source SessionSource,
	registry *packet.Registry,
	store *net.SessionStore,
	observers *handler.Observers,
	tracker *watch.Tracker,
	maxPerTick int,
	log *zap.Logger,
) *InputSystem {
	return &InputSystem{
		source:     source,
		registry:   registry,
		store:      store,
		observers:  observers,
		tracker:    tracker,
		maxPerTick: maxPerTick,
		log:        log,
	}
}

func (s *InputSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *InputSystem) Update(_ time.Duration) {
	// Accept new sessions
	for {
		select {
		case sess := <-s.source.NewSessions():
			s.store.Add(sess)
		default:
			goto doneNew
		}
	}
doneNew:

	// Drain packets from each session (up to maxPerTick per session)
	for id, sess := range s.store.Raw() {
		if sess.IsClosed() {
			s.handleDisconnect(sess)
			s.store.Remove(id)
			continue
		}

		s.drain(sess)
	}

	// Early flush so replies produced in this phase reach the writer
	// goroutines while the rest of the tick runs.
	s.store.ForEach(func(sess *net.Session) {
		sess.FlushOutput()
	})
}

// drain dispatches up to maxPerTick queued packets of one session.
func (s *InputSystem) drain(sess *net.Session) {
	for i := 0; i < s.maxPerTick; i++ {
		select {
		case data := <-sess.InQueue:
			if err := s.registry.Dispatch(sess, sess.State(), data); err != nil {
				s.log.Debug("packet dispatch failed",
					zap.Uint64("session", sess.ID),
					zap.Error(err),
				)
			}
		default:
			return
		}
	}
}

// handleDisconnect removes every watcher the session registered. Stored
// values stay.
func (s *InputSystem) handleDisconnect(sess *net.Session) {
	ids := s.observers.DropSession(sess.ID)
	for _, id := range ids {
		s.tracker.Unwatch(id)
	}
	s.log.Info("console disconnected",
		zap.Uint64("session", sess.ID),
		zap.String("ip", sess.IP),
		zap.Int("watchers_removed", len(ids)),
	)
}

// SessionCount returns the current number of active sessions.
func (s *InputSystem) SessionCount() int {
	return s.store.Len()
}
