package handler

import (
	"fmt"

	"github.com/jiecolao/pyquest-game/internal/config"
	"github.com/jiecolao/pyquest-game/internal/core/event"
	"github.com/jiecolao/pyquest-game/internal/data"
	"github.com/jiecolao/pyquest-game/internal/net"
	"github.com/jiecolao/pyquest-game/internal/net/packet"
	"github.com/jiecolao/pyquest-game/internal/scripting"
	"github.com/jiecolao/pyquest-game/internal/watch"
	"go.uber.org/zap"
)

// Recorder journals script results. sessionID is 0 for runs that did not
// come from a console session.
type Recorder interface {
	Record(sessionID uint64, res scripting.Result)
}

// Deps holds shared dependencies injected into all packet handlers.
// Handlers run on the game loop goroutine.
type Deps struct {
	Config    *config.Config
	Log       *zap.Logger
	Tracker   *watch.Tracker
	Runtime   *scripting.Runtime
	Queue     *scripting.Queue
	Bus       *event.Bus
	Observers *Observers
	Examples  *data.ExampleTable
	Journal   Recorder // optional
}

// RegisterAll registers all packet handlers into the registry.
func RegisterAll(reg *packet.Registry, deps *Deps) {
	// Login phase
	reg.Register(packet.C_OPCODE_LOGIN,
		[]packet.SessionState{packet.StateConnected},
		func(sess any, r *packet.Reader) {
			HandleLogin(sess.(*net.Session), r, deps)
		},
	)
	reg.Register(packet.C_OPCODE_PING,
		[]packet.SessionState{packet.StateConnected, packet.StateReady},
		func(sess any, r *packet.Reader) {
			HandlePing(sess.(*net.Session), r, deps)
		},
	)

	ready := []packet.SessionState{packet.StateReady}

	reg.Register(packet.C_OPCODE_VALIDATE, ready,
		func(sess any, r *packet.Reader) {
			HandleValidate(sess.(*net.Session), r, deps)
		},
	)
	reg.Register(packet.C_OPCODE_RUN, ready,
		func(sess any, r *packet.Reader) {
			HandleRun(sess.(*net.Session), r, deps)
		},
	)
	reg.Register(packet.C_OPCODE_WATCH, ready,
		func(sess any, r *packet.Reader) {
			HandleWatch(sess.(*net.Session), r, deps)
		},
	)
	reg.Register(packet.C_OPCODE_UNWATCH, ready,
		func(sess any, r *packet.Reader) {
			HandleUnwatch(sess.(*net.Session), r, deps)
		},
	)
	reg.Register(packet.C_OPCODE_GET, ready,
		func(sess any, r *packet.Reader) {
			HandleGet(sess.(*net.Session), r, deps)
		},
	)
	reg.Register(packet.C_OPCODE_GETALL, ready,
		func(sess any, r *packet.Reader) {
			HandleGetAll(sess.(*net.Session), r, deps)
		},
	)
	reg.Register(packet.C_OPCODE_RESET, ready,
		func(sess any, r *packet.Reader) {
			HandleReset(sess.(*net.Session), r, deps)
		},
	)
	reg.Register(packet.C_OPCODE_CLEAR, ready,
		func(sess any, r *packet.Reader) {
			HandleClear(sess.(*net.Session), r, deps)
		},
	)
	reg.Register(packet.C_OPCODE_EXAMPLES, ready,
		func(sess any, r *packet.Reader) {
			HandleExamples(sess.(*net.Session), r, deps)
		},
	)
}

// sendError sends S_ERROR with a human-readable message.
func sendError(sess *net.Session, msg string) {
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_ERROR)
	w.WriteS(msg)
	sess.Send(w.Bytes())
}

const (
	// maxOutputText leaves room in an S_OUTPUT frame for the opcode, run
	// id and accepted flag.
	maxOutputText   = packet.MaxPayload - 128
	truncatedMarker = "... (truncated)\n"
)

// sendList sends a counted list packet ([opcode][count H][entry]*) with as
// many entries as fit one frame. When some are left out the client gets
// an S_ERROR saying how many were sent.
func sendList(sess *net.Session, opcode byte, what string, entries [][]byte) {
	w := packet.NewWriterWithOpcode(opcode)
	body := packet.NewWriter()
	sent := 0
	for _, e := range entries {
		if w.Len()+2+body.Len()+len(e) > packet.MaxPayload {
			break
		}
		body.WriteBytes(e)
		sent++
	}
	w.WriteH(uint16(sent))
	w.WriteBytes(body.Bytes())
	sess.Send(w.Bytes())
	if sent < len(entries) {
		sendError(sess, fmt.Sprintf("%s truncated: %d of %d sent", what, sent, len(entries)))
	}
}
